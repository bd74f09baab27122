// Package dberr defines the typed error taxonomy shared by every SynthDB
// storage package. It mirrors the sentinel-error pattern used by the
// storage/sqlite package this module was built from: a small set of
// exported sentinels plus a wrapper that callers compare against with
// errors.Is, rather than a hierarchy of concrete error types.
package dberr

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors identifying the kinds named by the storage engine's
// error taxonomy. Wrap one of these with Wrap/Wrapf so callers can branch
// on errors.Is while still getting a human-readable message.
var (
	ErrNameTaken          = errors.New("name already in use")
	ErrReservedName       = errors.New("name is reserved")
	ErrTableNotFound      = errors.New("table not found")
	ErrColumnNotFound     = errors.New("column not found")
	ErrUnknownType        = errors.New("unknown data type")
	ErrTypeCoercion       = errors.New("value cannot be coerced to column type")
	ErrConflict           = errors.New("conflicting concurrent change")
	ErrIO                 = errors.New("storage io error")
	ErrInvariantViolation = errors.New("internal invariant violation")
)

// Wrap attaches sentinel to err, preserving err's message via %w so both
// errors.Is(sentinel) and errors.Is(err) succeed against the result.
func Wrap(sentinel, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrapf is Wrap with a formatted message inserted ahead of err.
func Wrapf(sentinel error, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s: %w", sentinel, msg, err)
}

// New builds a sentinel-wrapped error with no underlying cause, for cases
// where the storage engine detects the condition itself rather than
// receiving it from the driver.
func New(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// FromSQL translates a database/sql error into the taxonomy, mapping
// sql.ErrNoRows to a not-found-shaped sentinel chosen by the caller since
// "not found" means different things depending on whether a row, table,
// or column was being looked up.
func FromSQL(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(sentinel, err)
	}
	return Wrap(ErrIO, err)
}

// IsNotFound reports whether err indicates a missing table or column.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTableNotFound) || errors.Is(err, ErrColumnNotFound)
}
