package model

import (
	"fmt"
	"strconv"
)

// OID is the unique, engine-assigned identifier of a persisted object.
// OIDs are allocated monotonically and never reused.
type OID uint64

// InvalidOID marks an object that has not been assigned an identifier yet.
const InvalidOID OID = 0

// IsValid reports whether the OID has been assigned.
func (o OID) IsValid() bool { return o != InvalidOID }

// String returns a string representation of the OID.
func (o OID) String() string {
	return "OID(" + strconv.FormatUint(uint64(o), 10) + ")"
}

// ClassID identifies a class in the catalog.
type ClassID uint32

// AttributeID identifies an attribute within its class.
type AttributeID uint16

// Version counts the commits that wrote an object. The first committed
// version of an object is 1.
type Version uint64

// Location identifies the committed version of an object.
type Location struct {
	Class   ClassID
	Version Version
}

// String returns a string representation of the Location.
func (l Location) String() string {
	return fmt.Sprintf("Loc(class=%d v=%d)", l.Class, l.Version)
}

// CompareOID orders OIDs ascending.
func CompareOID(a, b OID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
