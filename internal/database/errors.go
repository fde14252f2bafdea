package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("database: not found")

// ErrStateConflict is returned when a preview state transition is attempted
// from the wrong current state.
var ErrStateConflict = errors.New("database: preview is not in the required state")

// ErrActivePreview is returned when a connection already has a preview in a
// non-terminal state.
var ErrActivePreview = errors.New("database: connection already has an active preview")

// isUniqueViolation reports whether err is a postgres unique constraint hit.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
