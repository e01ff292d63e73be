// Package repository persists users and refresh tokens. The sentinel errors
// below let higher layers tell failure scenarios apart without inspecting
// driver-specific errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// constraint, such as a duplicate email or token. Handlers should translate
// this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is a conflict on users.email.
var ErrEmailExists = errors.New("email already exists")

// isDuplicateKey recognizes unique violations from both supported drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// isEmailDuplicate reports whether a duplicate-key error concerns users.email.
func isEmailDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "uq_users_email") || strings.Contains(msg, "users.email")
}
