package meta

import (
	"reflect"
	"time"
)

// Change is one differing attribute found by a ChangeDetector.
type Change struct {
	Attribute *ClassAttributeInfo
	Position  int
	Old, New  AbstractObjectInfo
}

// ChangeDetector compares snapshots attribute by attribute. A detector is
// reusable; each HasChanged call starts from a cleared state.
type ChangeDetector struct {
	changes []Change
}

// HasChanged reports whether b differs from a. Inline values compare by
// value and references by OID, or by identity while a target has no OID.
// Snapshots of different classes differ in every position.
func (d *ChangeDetector) HasChanged(a, b *NonNativeObjectInfo) bool {
	d.Clear()

	sameClass := a.Class == b.Class || (a.Class.ID != 0 && a.Class.ID == b.Class.ID)
	n := max(len(a.Values), len(b.Values))
	for i := range n {
		var x, y AbstractObjectInfo = NullObjectInfo{}, NullObjectInfo{}
		if i < len(a.Values) {
			x = a.Values[i]
		}
		if i < len(b.Values) {
			y = b.Values[i]
		}
		if sameClass && equalInfo(x, y) {
			continue
		}
		var attr *ClassAttributeInfo
		if i < len(b.Class.attributes) {
			attr = b.Class.attributes[i]
		}
		d.changes = append(d.changes, Change{Attribute: attr, Position: i, Old: x, New: y})
	}
	return len(d.changes) > 0
}

// NbChanges returns the number of differing attributes of the last
// comparison.
func (d *ChangeDetector) NbChanges() int { return len(d.changes) }

// Changes returns the differences found by the last comparison.
func (d *ChangeDetector) Changes() []Change { return d.changes }

// Clear resets the detector.
func (d *ChangeDetector) Clear() { d.changes = d.changes[:0] }

func equalInfo(x, y AbstractObjectInfo) bool {
	if x == nil {
		x = NullObjectInfo{}
	}
	if y == nil {
		y = NullObjectInfo{}
	}
	if x.IsNull() || y.IsNull() {
		return x.IsNull() == y.IsNull()
	}

	switch a := x.(type) {
	case NativeObjectInfo:
		b, ok := y.(NativeObjectInfo)
		return ok && a.Kind == b.Kind && equalNative(a.Kind, a.Value, b.Value)
	case ObjectReference:
		b, ok := y.(ObjectReference)
		return ok && equalRef(a, b)
	case ReferenceList:
		b, ok := y.(ReferenceList)
		if !ok || len(a.Refs) != len(b.Refs) {
			return false
		}
		for i := range a.Refs {
			if !equalRef(a.Refs[i], b.Refs[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalRef(a, b ObjectReference) bool {
	if a.OID.IsValid() || b.OID.IsValid() {
		return a.OID == b.OID
	}
	return a.Object == b.Object
}

func equalNative(k Kind, a, b any) bool {
	switch k {
	case KindTime:
		ta, okA := a.(time.Time)
		tb, okB := b.(time.Time)
		if okA && okB {
			return ta.Equal(tb)
		}
	case KindBool, KindInt, KindUint, KindFloat, KindString:
		if a != nil && b != nil && reflect.TypeOf(a) == reflect.TypeOf(b) {
			return a == b
		}
	}
	return reflect.DeepEqual(a, b)
}
