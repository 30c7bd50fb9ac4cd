package meta

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/oodb/model"
	"github.com/mitchellh/copystructure"
)

// OIDResolver returns the OID bound to an object, or model.InvalidOID.
type OIDResolver func(obj any) model.OID

// RefLoader materializes the object a reference points to.
type RefLoader func(ref ObjectReference, attr *ClassAttributeInfo) (any, error)

func resolveOID(resolve OIDResolver, obj any) model.OID {
	if resolve == nil || obj == nil {
		return model.InvalidOID
	}
	return resolve(obj)
}

// Snapshot captures the attribute values of obj, a pointer to an instance
// of ci. Inline values are deep copied so later mutations of obj do not
// leak into the snapshot.
func Snapshot(ci *ClassInfo, obj any, resolve OIDResolver) (*NonNativeObjectInfo, error) {
	v, err := ci.instance(obj)
	if err != nil {
		return nil, err
	}

	info := &NonNativeObjectInfo{
		OID:    resolveOID(resolve, obj),
		Class:  ci,
		Values: make([]AbstractObjectInfo, len(ci.attributes)),
		Object: obj,
	}
	for i, a := range ci.attributes {
		val, err := snapshotValue(a, v.FieldByIndex(a.index), resolve)
		if err != nil {
			return nil, &AttributeError{Class: ci.Name, Attribute: a.Name, Err: err}
		}
		info.Values[i] = val
	}
	return info, nil
}

func nillable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Pointer:
		return true
	}
	return false
}

func snapshotValue(a *ClassAttributeInfo, f reflect.Value, resolve OIDResolver) (AbstractObjectInfo, error) {
	switch a.Kind {
	case KindReference:
		if f.IsNil() {
			return NullObjectInfo{}, nil
		}
		p := f.Interface()
		return ObjectReference{OID: resolveOID(resolve, p), Object: p}, nil

	case KindReferenceSlice:
		if f.IsNil() {
			return NullObjectInfo{}, nil
		}
		refs := make([]ObjectReference, f.Len())
		for j := range refs {
			if e := f.Index(j); !e.IsNil() {
				p := e.Interface()
				refs[j] = ObjectReference{OID: resolveOID(resolve, p), Object: p}
			}
		}
		return ReferenceList{Refs: refs}, nil

	case KindBytes, KindComposite:
		if nillable(f) && f.IsNil() {
			return NullObjectInfo{}, nil
		}
		c, err := copystructure.Copy(f.Interface())
		if err != nil {
			return nil, err
		}
		return NativeObjectInfo{Kind: a.Kind, Value: c}, nil

	default:
		return NativeObjectInfo{Kind: a.Kind, Value: f.Interface()}, nil
	}
}

// EnrichWithOID binds info to the OID of instance and resolves references
// whose targets received an OID since the snapshot was taken.
func EnrichWithOID(info *NonNativeObjectInfo, instance any, resolve OIDResolver) error {
	oid := resolveOID(resolve, instance)
	if !oid.IsValid() {
		return fmt.Errorf("%w: %T", ErrNoOID, instance)
	}
	info.OID = oid
	info.Object = instance

	for i, v := range info.Values {
		switch r := v.(type) {
		case ObjectReference:
			if !r.OID.IsValid() && r.Object != nil {
				r.OID = resolveOID(resolve, r.Object)
				info.Values[i] = r
			}
		case ReferenceList:
			for j, e := range r.Refs {
				if !e.OID.IsValid() && e.Object != nil {
					r.Refs[j].OID = resolveOID(resolve, e.Object)
				}
			}
		}
	}
	return nil
}

// Apply writes a snapshot into target, a pointer to an instance of
// info.Class. References without an in-memory object are materialized
// through load.
func Apply(info *NonNativeObjectInfo, target any, load RefLoader) error {
	ci := info.Class
	v, err := ci.instance(target)
	if err != nil {
		return err
	}
	if len(info.Values) != len(ci.attributes) {
		return fmt.Errorf("meta: %s: snapshot has %d values, class has %d attributes", ci.Name, len(info.Values), len(ci.attributes))
	}

	for i, a := range ci.attributes {
		if err := applyValue(a, v.FieldByIndex(a.index), info.Values[i], load); err != nil {
			return &AttributeError{Class: ci.Name, Attribute: a.Name, Err: err}
		}
	}
	return nil
}

func applyValue(a *ClassAttributeInfo, f reflect.Value, val AbstractObjectInfo, load RefLoader) error {
	switch x := val.(type) {
	case nil, NullObjectInfo:
		f.SetZero()
		return nil

	case NativeObjectInfo:
		if x.Value == nil {
			f.SetZero()
			return nil
		}
		value := x.Value
		if x.Kind == KindBytes || x.Kind == KindComposite {
			c, err := copystructure.Copy(value)
			if err != nil {
				return err
			}
			value = c
		}
		return assign(f, reflect.ValueOf(value))

	case ObjectReference:
		obj, err := materialize(x, a, load)
		if err != nil {
			return err
		}
		if obj == nil {
			f.SetZero()
			return nil
		}
		return assign(f, reflect.ValueOf(obj))

	case ReferenceList:
		s := reflect.MakeSlice(f.Type(), len(x.Refs), len(x.Refs))
		for j, r := range x.Refs {
			obj, err := materialize(r, a, load)
			if err != nil {
				return err
			}
			if obj != nil {
				if err := assign(s.Index(j), reflect.ValueOf(obj)); err != nil {
					return err
				}
			}
		}
		f.Set(s)
		return nil

	default:
		return fmt.Errorf("meta: cannot apply %T", val)
	}
}

func materialize(r ObjectReference, a *ClassAttributeInfo, load RefLoader) (any, error) {
	if r.Object != nil {
		return r.Object, nil
	}
	if !r.OID.IsValid() {
		return nil, nil
	}
	if load == nil {
		return nil, fmt.Errorf("%w: oid %s", ErrUnresolvedReference, r.OID)
	}
	return load(r, a)
}

func assign(dst, src reflect.Value) error {
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("%w: cannot assign %v to %v", ErrTypeMismatch, src.Type(), dst.Type())
	}
	return nil
}
