package serial

import (
	"encoding/binary"
)

// Serializer encodes values of type T into a fixed number of bytes.
type Serializer[T any] interface {
	// Size returns the encoded width in bytes.
	Size() int
	// Serialize writes v into buf starting at off.
	Serialize(buf []byte, off int, v T) error
	// Deserialize decodes a value from buf, which must be exactly Size() bytes.
	Deserialize(buf []byte) (T, error)
}

// DeserializeAt decodes the value stored at off in buf.
func DeserializeAt[T any](s Serializer[T], buf []byte, off int) (T, error) {
	end := off + s.Size()
	if off < 0 || end > len(buf) {
		var zero T
		return zero, &FormatError{Type: typeName(s), Want: end, Got: len(buf)}
	}
	return s.Deserialize(buf[off:end])
}

// Encode returns a fresh buffer holding v.
func Encode[T any](s Serializer[T], v T) ([]byte, error) {
	buf := make([]byte, s.Size())
	if err := s.Serialize(buf, 0, v); err != nil {
		return nil, err
	}
	return buf, nil
}

func checkRoom(name string, buf []byte, off, size int) error {
	if off < 0 || off+size > len(buf) {
		return &FormatError{Type: name, Want: off + size, Got: len(buf)}
	}
	return nil
}

func checkExact(name string, buf []byte, size int) error {
	if len(buf) != size {
		return &FormatError{Type: name, Want: size, Got: len(buf)}
	}
	return nil
}

type named interface{ name() string }

func typeName(s any) string {
	if n, ok := s.(named); ok {
		return n.name()
	}
	return "value"
}

// Int32 serializes int32 values in 4 bytes.
type Int32 struct{}

func (Int32) name() string { return "int32" }

// Size implements Serializer.
func (Int32) Size() int { return 4 }

// Serialize implements Serializer.
func (s Int32) Serialize(buf []byte, off int, v int32) error {
	if err := checkRoom(s.name(), buf, off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(v))
	return nil
}

// Deserialize implements Serializer.
func (s Int32) Deserialize(buf []byte) (int32, error) {
	if err := checkExact(s.name(), buf, 4); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

// Uint32 serializes uint32 values in 4 bytes.
type Uint32 struct{}

func (Uint32) name() string { return "uint32" }

// Size implements Serializer.
func (Uint32) Size() int { return 4 }

// Serialize implements Serializer.
func (s Uint32) Serialize(buf []byte, off int, v uint32) error {
	if err := checkRoom(s.name(), buf, off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[off:], v)
	return nil
}

// Deserialize implements Serializer.
func (s Uint32) Deserialize(buf []byte) (uint32, error) {
	if err := checkExact(s.name(), buf, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Int64 serializes int64 values in 8 bytes.
type Int64 struct{}

func (Int64) name() string { return "int64" }

// Size implements Serializer.
func (Int64) Size() int { return 8 }

// Serialize implements Serializer.
func (s Int64) Serialize(buf []byte, off int, v int64) error {
	if err := checkRoom(s.name(), buf, off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[off:], uint64(v))
	return nil
}

// Deserialize implements Serializer.
func (s Int64) Deserialize(buf []byte) (int64, error) {
	if err := checkExact(s.name(), buf, 8); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// Uint64 serializes uint64 values in 8 bytes.
type Uint64 struct{}

func (Uint64) name() string { return "uint64" }

// Size implements Serializer.
func (Uint64) Size() int { return 8 }

// Serialize implements Serializer.
func (s Uint64) Serialize(buf []byte, off int, v uint64) error {
	if err := checkRoom(s.name(), buf, off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[off:], v)
	return nil
}

// Deserialize implements Serializer.
func (s Uint64) Deserialize(buf []byte) (uint64, error) {
	if err := checkExact(s.name(), buf, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Empty serializes struct{} in zero bytes. It is used for set-like trees
// whose keys carry all information.
type Empty struct{}

func (Empty) name() string { return "empty" }

// Size implements Serializer.
func (Empty) Size() int { return 0 }

// Serialize implements Serializer.
func (s Empty) Serialize(buf []byte, off int, _ struct{}) error {
	return checkRoom(s.name(), buf, off, 0)
}

// Deserialize implements Serializer.
func (s Empty) Deserialize(buf []byte) (struct{}, error) {
	return struct{}{}, checkExact(s.name(), buf, 0)
}
