// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers to distinguish
// between different failure scenarios without inspecting driver errors.
// Driver specific codes are classified by the database package and
// translated here.
package repository

import (
	"database/sql"
	"errors"

	"github.com/iliyamo/community-events/internal/database"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique index, such as
// a second attendee row for the same (event, user) pair or a reused email.
var ErrDuplicate = errors.New("duplicate")

// ErrMissingReference is returned when an insert points at a parent row
// that does not exist (e.g. an attendee for a deleted user).
var ErrMissingReference = errors.New("missing reference")

// ErrConflict is returned when the statement lost a lock wait, deadlock or
// serialization race.  The transaction was rolled back.
var ErrConflict = errors.New("conflict")

// translate maps driver errors onto the sentinels above and leaves
// everything else untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case database.IsUniqueViolation(err):
		return ErrDuplicate
	case database.IsForeignKeyViolation(err):
		return ErrMissingReference
	case database.IsTransient(err) && !isContextErr(err):
		return errors.Join(ErrConflict, err)
	}
	return err
}
