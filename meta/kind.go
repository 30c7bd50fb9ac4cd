package meta

import (
	"fmt"
	"reflect"
	"time"
)

// Kind classifies how an attribute is stored and compared.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindTime
	// KindReference is a pointer to another persisted struct.
	KindReference
	// KindReferenceSlice is a slice of pointers to persisted structs.
	KindReferenceSlice
	// KindComposite is any other value stored inline (maps, arrays,
	// value slices, nested structs).
	KindComposite
)

var kindNames = [...]string{
	KindInvalid:        "invalid",
	KindBool:           "bool",
	KindInt:            "int",
	KindUint:           "uint",
	KindFloat:          "float",
	KindString:         "string",
	KindBytes:          "bytes",
	KindTime:           "time",
	KindReference:      "ref",
	KindReferenceSlice: "refs",
	KindComposite:      "composite",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses the name returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && Kind(k) != KindInvalid {
			return Kind(k), nil
		}
	}
	return KindInvalid, fmt.Errorf("meta: unknown kind %q", s)
}

// IsReference reports whether values of k point to other objects.
func (k Kind) IsReference() bool {
	return k == KindReference || k == KindReferenceSlice
}

var timeType = reflect.TypeOf(time.Time{})

func isStructPtr(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && t.Elem() != timeType
}

// kindOf returns the kind of a field type and, for references, the
// referenced struct type. ok is false for types that cannot be persisted.
func kindOf(t reflect.Type) (k Kind, ref reflect.Type, ok bool) {
	if t == timeType {
		return KindTime, nil, true
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool, nil, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt, nil, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint, nil, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, nil, true
	case reflect.String:
		return KindString, nil, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, nil, true
		}
		if isStructPtr(t.Elem()) {
			return KindReferenceSlice, t.Elem().Elem(), true
		}
		return KindComposite, nil, true
	case reflect.Pointer:
		if isStructPtr(t) {
			return KindReference, t.Elem(), true
		}
		return KindComposite, nil, true
	case reflect.Struct, reflect.Map, reflect.Array:
		return KindComposite, nil, true
	default:
		return KindInvalid, nil, false
	}
}
