package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

const pgUniqueViolation = "23505"

// ConstraintError reports which unique constraint rejected a write.
// Constraint holds the PostgreSQL constraint name or the SQLite column list.
type ConstraintError struct {
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint %q violated", e.Constraint)
}

func (e *ConstraintError) Unwrap() []error {
	return []error{ErrUniqueViolation, e.Err}
}

// IsUniqueViolation reports whether err is a unique violation mentioning column.
// An empty column matches any unique violation.
func IsUniqueViolation(err error, column string) bool {
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		return false
	}
	return column == "" || strings.Contains(ce.Constraint, column)
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &ConstraintError{Constraint: pgErr.ConstraintName, Err: err}
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		msg := sqliteErr.Error()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE constraint failed")) {
			return &ConstraintError{Constraint: sqliteConstraint(msg), Err: err}
		}
	}
	return err
}

// sqliteConstraint extracts "users.email" from "UNIQUE constraint failed: users.email (2067)"
func sqliteConstraint(msg string) string {
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return msg
	}
	s := msg[i+len(marker):]
	if j := strings.Index(s, " ("); j >= 0 {
		s = s[:j]
	}
	return s
}
