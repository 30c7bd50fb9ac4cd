package serial

import (
	"errors"
	"fmt"
)

// ErrFormat is returned when a buffer does not have the layout a serializer
// expects.
var ErrFormat = errors.New("serial: format fault")

// FormatError describes a buffer length mismatch.
type FormatError struct {
	Type string
	Want int
	Got  int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("serial: %s needs %d bytes, got %d", e.Type, e.Want, e.Got)
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}
