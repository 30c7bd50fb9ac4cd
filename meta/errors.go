package meta

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotStruct is returned when a type cannot describe a class.
	ErrNotStruct = errors.New("meta: type is not a named struct")

	// ErrDuplicateAttribute is returned when an attribute id or name is
	// already present in a class.
	ErrDuplicateAttribute = errors.New("meta: duplicate attribute")

	// ErrKindChanged is returned when a persisted attribute changes kind.
	ErrKindChanged = errors.New("meta: attribute kind changed")

	// ErrTypeMismatch is returned when an object is not an instance of the
	// class it is used with.
	ErrTypeMismatch = errors.New("meta: object type mismatch")

	// ErrClassMismatch is returned when a record belongs to another class.
	ErrClassMismatch = errors.New("meta: record class mismatch")

	// ErrUnresolvedReference is returned when a referenced object has no
	// OID at encoding time.
	ErrUnresolvedReference = errors.New("meta: unresolved reference")

	// ErrNoOID is returned by EnrichWithOID for an instance without OID.
	ErrNoOID = errors.New("meta: instance has no OID")

	// ErrUnknownField is returned when a Schema names a missing field.
	ErrUnknownField = errors.New("meta: unknown field")
)

// AttributeError describes a failure on one attribute.
type AttributeError struct {
	Class     string
	Attribute string
	Err       error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("meta: %s.%s: %v", e.Class, e.Attribute, e.Err)
}

func (e *AttributeError) Unwrap() error { return e.Err }

func typeMismatch(want reflect.Type, got any) error {
	return fmt.Errorf("%w: want *%v, got %T", ErrTypeMismatch, want, got)
}
