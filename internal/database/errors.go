package database

import "fmt"

// ConflictError reports a unique-key collision whose merge would have to
// overwrite a populated field with a different populated value. Both values
// are carried for manual resolution; the stored row is left untouched.
type ConflictError struct {
	UniqueKey string
	Field     string
	Existing  string
	Incoming  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s for key %q: existing %q vs incoming %q",
		e.Field, e.UniqueKey, e.Existing, e.Incoming)
}

// MigrationError reports a failed schema migration. The migration's
// transaction is fully rolled back before this is returned; any
// pre-migration backup is left in place for manual recovery.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration to version %d failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// StorageError reports an underlying I/O failure. Fatal to the current
// invocation; no partial writes are committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
