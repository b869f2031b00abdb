package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMigrationFile indicates a file name that does not follow {version}_{description}.sql.
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	// ErrDuplicateVersion indicates that two files share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrChecksumMismatch indicates that an applied file was edited afterwards.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
	// ErrMigrationFailed indicates that a statement in a migration failed.
	ErrMigrationFailed = errors.New("migration execution failed")
)

// MigrationError wraps a failure with the migration it belongs to.
type MigrationError struct {
	Version   string
	File      string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.File, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration (%s): %s: %v", e.File, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func newMigrationError(version, file, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, File: file, Operation: operation, Err: err}
}
