package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix milliseconds so expiry comparisons behave
// the same on every driver.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		email         VARCHAR(191) NOT NULL,
		name          VARCHAR(191) NULL,
		password_hash VARCHAR(255) NULL,
		google_id     VARCHAR(191) NULL,
		github_id     VARCHAR(191) NULL,
		avatar_url    VARCHAR(1024) NULL,
		created_at    BIGINT       NOT NULL,
		updated_at    BIGINT       NOT NULL,
		UNIQUE KEY uq_users_email (email),
		UNIQUE KEY uq_users_google_id (google_id),
		UNIQUE KEY uq_users_github_id (github_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash CHAR(64) NOT NULL PRIMARY KEY,
		user_id    CHAR(36) NOT NULL,
		expires_at BIGINT   NOT NULL,
		created_at BIGINT   NOT NULL,
		KEY idx_refresh_tokens_user (user_id),
		KEY idx_refresh_tokens_expires (expires_at),
		CONSTRAINT fk_refresh_tokens_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT    NOT NULL PRIMARY KEY,
		email         TEXT    NOT NULL UNIQUE,
		name          TEXT    NULL,
		password_hash TEXT    NULL,
		google_id     TEXT    NULL UNIQUE,
		github_id     TEXT    NULL UNIQUE,
		avatar_url    TEXT    NULL,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_hash TEXT    NOT NULL PRIMARY KEY,
		user_id    TEXT    NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON refresh_tokens (expires_at)`,
}

// Migrate creates the tables used by the service if they are missing.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
