package store

import (
	"errors"
	"strings"
)

// ErrProjectNameExists indicates a project create hit the unique-name
// constraint. Callers can show a friendly message instead of a raw SQL error.
var ErrProjectNameExists = errors.New("project name already exists")

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNothingToRollBack indicates no migration-history record with a usable
// backup exists. It is a reported condition, not a failure.
var ErrNothingToRollBack = errors.New("nothing to roll back")

// isUniqueConstraint reports whether err is a SQLite unique-constraint
// violation. modernc.org/sqlite exposes the extended result code through
// the error string.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		// SQLITE_CONSTRAINT_UNIQUE (2067) or SQLITE_CONSTRAINT_PRIMARYKEY (1555).
		if code := coder.Code(); code == 2067 || code == 1555 {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
