// Package dbtest opens throwaway SQLite databases with the service schema
// for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iliyamo/session-auth/internal/database"
)

// Open returns a migrated SQLite database that is closed when t finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "auth.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
