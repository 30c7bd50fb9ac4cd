package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/oodb/model"
)

var (
	// ErrNotFound is returned when an OID has no committed object.
	ErrNotFound = errors.New("object not found")

	// ErrConflict is returned when a commit is based on a version that is
	// no longer current.
	ErrConflict = errors.New("commit conflict")

	// ErrClassMismatch is returned when a write changes the class of an
	// existing OID.
	ErrClassMismatch = errors.New("class mismatch")

	// ErrClosed is returned when an operation is attempted on a closed engine.
	ErrClosed = errors.New("engine closed")

	// ErrStorage marks failures of the underlying store.
	ErrStorage = errors.New("storage fault")

	// ErrInvalidChangeSet is returned for change sets that touch an OID twice.
	ErrInvalidChangeSet = errors.New("invalid change set")
)

// StorageError wraps a store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage for every StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// ConflictError describes an optimistic concurrency failure.
type ConflictError struct {
	OID      model.OID
	Expected model.Version
	// Actual is 0 when the object was deleted.
	Actual model.Version
}

func (e *ConflictError) Error() string {
	if e.Actual == 0 && e.Expected != 0 {
		return fmt.Sprintf("commit conflict: %s was deleted (expected version %d)", e.OID, e.Expected)
	}
	return fmt.Sprintf("commit conflict: %s is at version %d, expected %d", e.OID, e.Actual, e.Expected)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
