package meta

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/hupe1980/oodb/model"
)

// ClassAttributeInfo describes one persisted attribute.
type ClassAttributeInfo struct {
	ID   model.AttributeID
	Name string
	Kind Kind
	// Type is the Go field type. It is nil for classes loaded from a
	// catalog without a registered Go type.
	Type reflect.Type
	// RefType is the referenced struct type for reference kinds.
	RefType reflect.Type

	index []int
}

// ClassInfo describes a persisted class.
//
// The attribute set is reachable by position, by id and by name. AddAttribute
// is the only mutation and keeps the three views consistent.
type ClassInfo struct {
	ID    model.ClassID
	Name  string
	Type  reflect.Type
	Super *ClassInfo

	attributes []*ClassAttributeInfo
	byID       map[model.AttributeID]*ClassAttributeInfo
	byName     map[string]*ClassAttributeInfo
	position   map[model.AttributeID]int
}

// NewClassInfo creates a class without attributes. typ may be nil.
func NewClassInfo(id model.ClassID, name string, typ reflect.Type, super *ClassInfo) *ClassInfo {
	return &ClassInfo{
		ID:       id,
		Name:     name,
		Type:     typ,
		Super:    super,
		byID:     make(map[model.AttributeID]*ClassAttributeInfo),
		byName:   make(map[string]*ClassAttributeInfo),
		position: make(map[model.AttributeID]int),
	}
}

// AddAttribute appends an attribute. Ids must be valid and both the id and
// the name unique within the class.
func (ci *ClassInfo) AddAttribute(attr *ClassAttributeInfo) error {
	if attr.ID == 0 {
		return &AttributeError{Class: ci.Name, Attribute: attr.Name, Err: fmt.Errorf("%w: invalid id 0", ErrDuplicateAttribute)}
	}
	if _, ok := ci.byID[attr.ID]; ok {
		return &AttributeError{Class: ci.Name, Attribute: attr.Name, Err: fmt.Errorf("%w: id %d", ErrDuplicateAttribute, attr.ID)}
	}
	if _, ok := ci.byName[attr.Name]; ok {
		return &AttributeError{Class: ci.Name, Attribute: attr.Name, Err: ErrDuplicateAttribute}
	}
	ci.position[attr.ID] = len(ci.attributes)
	ci.attributes = append(ci.attributes, attr)
	ci.byID[attr.ID] = attr
	ci.byName[attr.Name] = attr
	return nil
}

// Attributes returns the attributes in position order.
func (ci *ClassInfo) Attributes() []*ClassAttributeInfo {
	return ci.attributes
}

// NumAttributes returns the number of attributes.
func (ci *ClassInfo) NumAttributes() int { return len(ci.attributes) }

// AttributeByID returns the attribute with the given id.
func (ci *ClassInfo) AttributeByID(id model.AttributeID) (*ClassAttributeInfo, bool) {
	a, ok := ci.byID[id]
	return a, ok
}

// AttributeByName returns the attribute with the given name.
func (ci *ClassInfo) AttributeByName(name string) (*ClassAttributeInfo, bool) {
	a, ok := ci.byName[name]
	return a, ok
}

// AttributesByID returns a copy of the id index.
func (ci *ClassInfo) AttributesByID() map[model.AttributeID]*ClassAttributeInfo {
	return maps.Clone(ci.byID)
}

// AttributesByName returns a copy of the name index.
func (ci *ClassInfo) AttributesByName() map[string]*ClassAttributeInfo {
	return maps.Clone(ci.byName)
}

// Position returns the position of an attribute id, or -1.
func (ci *ClassInfo) Position(id model.AttributeID) int {
	if p, ok := ci.position[id]; ok {
		return p
	}
	return -1
}

// IsSubclassOf reports whether ci is other or inherits from it.
func (ci *ClassInfo) IsSubclassOf(other *ClassInfo) bool {
	for c := ci; c != nil; c = c.Super {
		if c == other || (c.ID != 0 && c.ID == other.ID) {
			return true
		}
	}
	return false
}

// New returns a pointer to a new zero instance of the class.
func (ci *ClassInfo) New() (any, error) {
	if ci.Type == nil {
		return nil, fmt.Errorf("meta: class %s has no Go type", ci.Name)
	}
	return reflect.New(ci.Type).Interface(), nil
}

// instance returns the struct value behind obj, which must be a non-nil
// pointer to ci.Type.
func (ci *ClassInfo) instance(obj any) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	if ci.Type == nil || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != ci.Type {
		return reflect.Value{}, typeMismatch(ci.Type, obj)
	}
	return v.Elem(), nil
}

func (ci *ClassInfo) String() string {
	return fmt.Sprintf("%s(%d)", ci.Name, ci.ID)
}
