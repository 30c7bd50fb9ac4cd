package meta

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/model"
)

// record is the stored form of a snapshot. Attributes are keyed by id and
// inline values are encoded individually with the codec, so they decode
// into their declared Go type.
type record struct {
	Class model.ClassID `json:"class"`
	Attrs []recordAttr  `json:"attrs"`
}

type recordAttr struct {
	ID    model.AttributeID `json:"id"`
	Ref   model.OID         `json:"ref,omitempty"`
	Refs  []model.OID       `json:"refs,omitempty"`
	Value []byte            `json:"value,omitempty"`
}

// Encode serializes a snapshot. Null attributes are omitted. Every
// reference must carry a valid OID.
func Encode(info *NonNativeObjectInfo, c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	ci := info.Class
	rec := record{Class: ci.ID, Attrs: make([]recordAttr, 0, len(info.Values))}

	for i, v := range info.Values {
		a := ci.attributes[i]
		ra := recordAttr{ID: a.ID}
		switch x := v.(type) {
		case nil, NullObjectInfo:
			continue
		case NativeObjectInfo:
			b, err := c.Marshal(x.Value)
			if err != nil {
				return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: err}
			}
			ra.Value = b
		case ObjectReference:
			if !x.OID.IsValid() {
				return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: ErrUnresolvedReference}
			}
			ra.Ref = x.OID
		case ReferenceList:
			ra.Refs = make([]model.OID, len(x.Refs))
			for j, r := range x.Refs {
				if !r.OID.IsValid() && r.Object != nil {
					return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: ErrUnresolvedReference}
				}
				ra.Refs[j] = r.OID
			}
			if len(ra.Refs) == 0 {
				// An empty list must stay distinguishable from null.
				ra.Value = []byte("[]")
			}
		default:
			return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: fmt.Errorf("cannot encode %T", v)}
		}
		rec.Attrs = append(rec.Attrs, ra)
	}
	return c.Marshal(rec)
}

// Decode parses a record of class ci. Unknown attribute ids are ignored and
// attributes missing from the record decode as null. Classes without a Go
// type decode inline values generically.
func Decode(ci *ClassInfo, oid model.OID, data []byte, c codec.Codec) (*NonNativeObjectInfo, error) {
	if c == nil {
		c = codec.Default
	}
	var rec record
	if err := c.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("meta: decode %s record: %w", ci.Name, err)
	}
	if rec.Class != ci.ID {
		return nil, fmt.Errorf("%w: record of class %d decoded as %s", ErrClassMismatch, rec.Class, ci)
	}

	info := &NonNativeObjectInfo{OID: oid, Class: ci, Values: make([]AbstractObjectInfo, len(ci.attributes))}
	for i := range info.Values {
		info.Values[i] = NullObjectInfo{}
	}

	for _, ra := range rec.Attrs {
		pos := ci.Position(ra.ID)
		if pos < 0 {
			continue
		}
		a := ci.attributes[pos]
		switch a.Kind {
		case KindReference:
			if ra.Ref.IsValid() {
				info.Values[pos] = ObjectReference{OID: ra.Ref}
			}
		case KindReferenceSlice:
			refs := make([]ObjectReference, len(ra.Refs))
			for j, oid := range ra.Refs {
				refs[j] = ObjectReference{OID: oid}
			}
			info.Values[pos] = ReferenceList{Refs: refs}
		default:
			v, err := decodeValue(a, ra.Value, c)
			if err != nil {
				return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: err}
			}
			info.Values[pos] = NativeObjectInfo{Kind: a.Kind, Value: v}
		}
	}
	return info, nil
}

func decodeValue(a *ClassAttributeInfo, data []byte, c codec.Codec) (any, error) {
	if a.Type == nil {
		var v any
		err := c.Unmarshal(data, &v)
		return v, err
	}
	p := reflect.New(a.Type)
	if err := c.Unmarshal(data, p.Interface()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}
