package meta

import (
	"github.com/hupe1980/oodb/model"
)

// AbstractObjectInfo is the snapshot of one attribute value.
type AbstractObjectInfo interface {
	IsNull() bool
	isObjectInfo()
}

// NativeObjectInfo holds a value stored inline.
type NativeObjectInfo struct {
	Kind  Kind
	Value any
}

// ObjectReference points to another object. Object is set when the
// snapshot was taken from memory; records decode with OID only.
type ObjectReference struct {
	OID    model.OID
	Object any
}

// ReferenceList is a slice of references.
type ReferenceList struct {
	Refs []ObjectReference
}

// NullObjectInfo is a nil reference, nil slice or missing attribute.
type NullObjectInfo struct{}

// NonNativeObjectInfo is the structural snapshot of a persisted object: its
// class, its OID once known and one value per attribute position.
type NonNativeObjectInfo struct {
	OID    model.OID
	Class  *ClassInfo
	Values []AbstractObjectInfo
	// Object is the instance the snapshot was taken from, if any.
	Object any
}

func (NativeObjectInfo) IsNull() bool     { return false }
func (ObjectReference) IsNull() bool      { return false }
func (ReferenceList) IsNull() bool        { return false }
func (NullObjectInfo) IsNull() bool       { return true }
func (*NonNativeObjectInfo) IsNull() bool { return false }

func (NativeObjectInfo) isObjectInfo()     {}
func (ObjectReference) isObjectInfo()      {}
func (ReferenceList) isObjectInfo()        {}
func (NullObjectInfo) isObjectInfo()       {}
func (*NonNativeObjectInfo) isObjectInfo() {}

// Value returns the snapshot of an attribute by name.
func (o *NonNativeObjectInfo) Value(name string) (AbstractObjectInfo, bool) {
	a, ok := o.Class.AttributeByName(name)
	if !ok {
		return nil, false
	}
	return o.Values[o.Class.Position(a.ID)], true
}

// References returns the OIDs this snapshot points to, in attribute order.
func (o *NonNativeObjectInfo) References() []model.OID {
	var out []model.OID
	for _, v := range o.Values {
		switch r := v.(type) {
		case ObjectReference:
			out = append(out, r.OID)
		case ReferenceList:
			for _, e := range r.Refs {
				out = append(out, e.OID)
			}
		}
	}
	return out
}
