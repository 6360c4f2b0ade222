package migration

import (
	"errors"
	"fmt"
)

var (
	ErrMigrationFailed      = errors.New("migration execution failed")
	ErrInvalidMigrationFile = errors.New("invalid migration file name")
	ErrInvalidVersion       = errors.New("invalid migration version")
	ErrDuplicateVersion     = errors.New("duplicate migration version")
	ErrEmptyMigration       = errors.New("migration contains no SQL statements")
	// ErrChecksumMismatch means an applied migration file was edited afterwards.
	ErrChecksumMismatch = errors.New("applied migration checksum mismatch")
)

// Error records which migration step failed. File is empty for failures
// that happen inside the database rather than while reading sources.
type Error struct {
	Version string
	File    string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Version != "" && e.File != "":
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.File, e.Op, e.Err)
	case e.Version != "":
		return fmt.Sprintf("migration %s: %s: %v", e.Version, e.Op, e.Err)
	case e.File != "":
		return fmt.Sprintf("migration source %s: %s: %v", e.File, e.Op, e.Err)
	}
	return fmt.Sprintf("migration: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fileError(version, file, op string, err error) *Error {
	return &Error{Version: version, File: file, Op: op, Err: err}
}

func dbError(version, op string, err error) *Error {
	return &Error{Version: version, Op: op, Err: err}
}
