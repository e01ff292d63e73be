package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Options describe how to reach the database. DSN, when set, is used as-is
// (for sqlite it is a file path).
type Options struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	DSN    string
}

// Open connects to the configured database, verifies the connection and
// applies the schema.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverMySQL, "":
		db, err = openMySQL(opts)
	case DriverSQLite:
		db, err = openSQLite(opts)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverMySQL
	}
	if err := Migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openMySQL(opts Options) (*sql.DB, error) {
	dsn := opts.DSN
	if dsn == "" {
		// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
		cfg := mysql.NewConfig()
		cfg.User = opts.User
		cfg.Passwd = opts.Pass
		cfg.Net = "tcp"
		cfg.Addr = opts.Host + ":" + opts.Port
		cfg.DBName = opts.Name
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		cfg.Timeout = 5 * time.Second
		cfg.ReadTimeout = 10 * time.Second
		cfg.WriteTimeout = 10 * time.Second
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func openSQLite(opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("sqlite requires DB_DSN (file path)")
	}
	dsn := opts.DSN + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)
	return db, nil
}
