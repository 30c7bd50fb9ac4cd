package oodb

import (
	"errors"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/serial"
)

var (
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoPendingTransaction is returned by Commit and Rollback when
	// nothing is staged.
	ErrNoPendingTransaction = errors.New("no pending transaction")

	// ErrNotPointer is returned for values that are not a pointer to a
	// struct.
	ErrNotPointer = errors.New("object must be a non-nil pointer to a struct")

	// ErrClassNotRegistered is returned when a record belongs to a class
	// whose Go type is not known to this process.
	ErrClassNotRegistered = errors.New("class not registered")
)

// Errors of the lower layers, re-exported so callers only import oodb.
var (
	ErrNotFound            = engine.ErrNotFound
	ErrConflict            = engine.ErrConflict
	ErrClassMismatch       = engine.ErrClassMismatch
	ErrStorage             = engine.ErrStorage
	ErrClosed              = engine.ErrClosed
	ErrDuplicateKey        = btree.ErrDuplicateKey
	ErrStructuralIntegrity = btree.ErrStructuralIntegrity
	ErrFormat              = serial.ErrFormat
)
