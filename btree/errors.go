package btree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key is not present. An empty tree is
	// not an error condition, it simply finds nothing.
	ErrNotFound = errors.New("btree: key not found")

	// ErrDuplicateKey is returned by Insert under the Reject policy.
	ErrDuplicateKey = errors.New("btree: duplicate key")

	// ErrStructuralIntegrity marks a malformed or corrupted node. It is
	// fatal for the operation and must not be retried.
	ErrStructuralIntegrity = errors.New("btree: structural integrity fault")

	// ErrInvalidDegree is returned for a degree below MinDegree or above
	// MaxDegree.
	ErrInvalidDegree = errors.New("btree: invalid degree")

	// ErrUnflushed is returned by Publish while dirty pages remain.
	ErrUnflushed = errors.New("btree: unflushed pages")

	// ErrPageNotFound is returned by persisters for unknown page ids.
	ErrPageNotFound = errors.New("btree: page not found")

	// ErrTooManyValues is returned by Insert when a MultiValue key already
	// holds MaxValuesPerKey values.
	ErrTooManyValues = errors.New("btree: too many values for key")
)

// CorruptNodeError describes a structural integrity fault.
type CorruptNodeError struct {
	Page   PageID
	Reason string
	Err    error
}

func (e *CorruptNodeError) Error() string {
	msg := fmt.Sprintf("btree: corrupt node %d: %s", e.Page, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrStructuralIntegrity.
func (e *CorruptNodeError) Is(target error) bool {
	return target == ErrStructuralIntegrity
}

func (e *CorruptNodeError) Unwrap() error { return e.Err }

func corrupt(id PageID, format string, args ...any) error {
	return &CorruptNodeError{Page: id, Reason: fmt.Sprintf(format, args...)}
}
