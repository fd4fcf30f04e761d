// Package repo implements the persistence gateway for the review lifecycle
// engine. This file defines the repository error vocabulary and the
// driver-agnostic translation of raw storage errors into it.
package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist (or is
// soft-deleted and the store is in active-only mode). It aliases
// gorm.ErrRecordNotFound for convenience.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrConflict signals a concurrent write: an optimistic version miss or a
	// storage level lock/serialization failure.
	ErrConflict = errors.New("concurrent modification")

	// ErrDuplicate signals a unique constraint violation.
	ErrDuplicate = errors.New("duplicate")
)

// translate maps raw driver errors onto the repository vocabulary. Errors
// that do not match any known pattern are returned unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err):
		return ErrDuplicate
	case isBusy(err):
		return ErrConflict
	}
	return err
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value";
	// MySQL: "Duplicate entry".
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// isBusy detects lock contention and serialization failures.
func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock wait timeout")
}
