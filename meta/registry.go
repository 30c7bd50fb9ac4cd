package meta

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/oodb/model"
	"golang.org/x/sync/singleflight"
)

// Schema is an explicit class description.
type Schema struct {
	// Name overrides the class name. Empty keeps the default
	// (package path + "." + type name).
	Name string
	// Attributes lists the persisted fields in order.
	Attributes []SchemaField
}

// SchemaField maps an attribute name to a struct field.
type SchemaField struct {
	Name string
	// Field is the Go field name. Empty means Name.
	Field string
}

// Describer is implemented by types that describe their own schema.
// ClassSchema is called on a zero value.
type Describer interface {
	ClassSchema() Schema
}

var describerType = reflect.TypeOf((*Describer)(nil)).Elem()

// Registry derives and caches ClassInfo per Go type.
//
// It is safe for concurrent use. Concurrent first lookups of the same type
// introspect it once.
type Registry struct {
	catalog Catalog

	mu     sync.RWMutex
	byType map[reflect.Type]*ClassInfo
	byID   map[model.ClassID]*ClassInfo
	group  singleflight.Group
}

// NewRegistry creates a registry assigning ids through catalog. A nil
// catalog uses a fresh MemoryCatalog.
func NewRegistry(catalog Catalog) *Registry {
	if catalog == nil {
		catalog = NewMemoryCatalog(nil, 1)
	}
	return &Registry{
		catalog: catalog,
		byType:  make(map[reflect.Type]*ClassInfo),
		byID:    make(map[model.ClassID]*ClassInfo),
	}
}

// ClassInfoOf returns the ClassInfo of the dynamic type of v.
func (r *Registry) ClassInfoOf(v any) (*ClassInfo, error) {
	if v == nil {
		return nil, ErrNotStruct
	}
	return r.ClassInfo(reflect.TypeOf(v))
}

// ClassInfo returns the ClassInfo of t, introspecting it on first use.
// Pointer types are resolved to their element.
func (r *Registry) ClassInfo(t reflect.Type) (*ClassInfo, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" || t == timeType {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, t)
	}

	r.mu.RLock()
	ci, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return ci, nil
	}

	v, err, _ := r.group.Do(typeKey(t), func() (any, error) {
		r.mu.RLock()
		ci, ok := r.byType[t]
		r.mu.RUnlock()
		if ok {
			return ci, nil
		}

		ci, err := r.introspect(t)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.byType[t] = ci
		r.byID[ci.ID] = ci
		r.mu.Unlock()
		return ci, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ClassInfo), nil
}

// ByID returns a registered class.
func (r *Registry) ByID(id model.ClassID) (*ClassInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ci, ok := r.byID[id]
	return ci, ok
}

// Classes returns all registered classes ordered by id.
func (r *Registry) Classes() []*ClassInfo {
	r.mu.RLock()
	out := make([]*ClassInfo, 0, len(r.byID))
	for _, ci := range r.byID {
		out = append(out, ci)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *ClassInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Subclasses returns the registered classes inheriting from ci, directly or
// transitively, ordered by id. ci itself is not included.
func (r *Registry) Subclasses(ci *ClassInfo) []*ClassInfo {
	var out []*ClassInfo
	for _, c := range r.Classes() {
		if c != ci && c.IsSubclassOf(ci) {
			out = append(out, c)
		}
	}
	return out
}

func typeKey(t reflect.Type) string {
	return fmt.Sprintf("%s.%s@%p", t.PkgPath(), t.Name(), t)
}

// attrSource is an attribute candidate before ids are bound.
type attrSource struct {
	name  string
	field reflect.StructField
	index []int
}

func (r *Registry) introspect(t reflect.Type) (*ClassInfo, error) {
	name := t.PkgPath() + "." + t.Name()

	var super *ClassInfo
	var superIndex []int
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.IsExported() && f.Type.Kind() == reflect.Struct && f.Type != timeType {
			s, err := r.ClassInfo(f.Type)
			if err != nil {
				return nil, fmt.Errorf("meta: superclass of %s: %w", name, err)
			}
			super, superIndex = s, f.Index
			break
		}
	}

	var own []attrSource
	var err error
	if schema, ok := describe(t, super); ok {
		if schema.Name != "" {
			name = schema.Name
		}
		own, err = schemaFields(t, schema)
	} else {
		own = taggedFields(t, superIndex)
	}
	if err != nil {
		return nil, err
	}

	def := Definition{Name: name}
	if super != nil {
		def.Super = super.ID
		for _, a := range super.Attributes() {
			def.Attributes = append(def.Attributes, AttributeDefinition{Name: a.Name, Kind: a.Kind})
		}
	}
	kinds := make([]Kind, len(own))
	refs := make([]reflect.Type, len(own))
	for i, src := range own {
		k, ref, ok := kindOf(src.field.Type)
		if !ok {
			return nil, &AttributeError{Class: name, Attribute: src.name, Err: fmt.Errorf("unsupported type %v", src.field.Type)}
		}
		kinds[i], refs[i] = k, ref
		def.Attributes = append(def.Attributes, AttributeDefinition{Name: src.name, Kind: k})
	}

	classID, ids, err := r.catalog.Bind(def)
	if err != nil {
		return nil, err
	}

	ci := NewClassInfo(classID, name, t, super)
	pos := 0
	if super != nil {
		for _, a := range super.Attributes() {
			inherited := *a
			inherited.ID = ids[pos]
			inherited.index = append(slices.Clone(superIndex), a.index...)
			if err := ci.AddAttribute(&inherited); err != nil {
				return nil, err
			}
			pos++
		}
	}
	for i, src := range own {
		attr := &ClassAttributeInfo{
			ID:      ids[pos],
			Name:    src.name,
			Kind:    kinds[i],
			Type:    src.field.Type,
			RefType: refs[i],
			index:   src.index,
		}
		if err := ci.AddAttribute(attr); err != nil {
			return nil, err
		}
		pos++
	}
	return ci, nil
}

// describe returns the explicit schema of t. A ClassSchema promoted from
// the superclass does not describe t.
func describe(t reflect.Type, super *ClassInfo) (Schema, bool) {
	if !reflect.PointerTo(t).Implements(describerType) {
		return Schema{}, false
	}
	schema := reflect.New(t).Interface().(Describer).ClassSchema()
	if super != nil && reflect.PointerTo(super.Type).Implements(describerType) {
		inherited := reflect.New(super.Type).Interface().(Describer).ClassSchema()
		if reflect.DeepEqual(schema, inherited) {
			return Schema{}, false
		}
	}
	return schema, true
}

func taggedFields(t reflect.Type, superIndex []int) []attrSource {
	var out []attrSource
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || (superIndex != nil && i == superIndex[0]) {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("odb"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if _, _, ok := kindOf(f.Type); !ok {
			continue
		}
		out = append(out, attrSource{name: name, field: f, index: f.Index})
	}
	return out
}

func schemaFields(t reflect.Type, s Schema) ([]attrSource, error) {
	out := make([]attrSource, 0, len(s.Attributes))
	for _, sf := range s.Attributes {
		field := sf.Field
		if field == "" {
			field = sf.Name
		}
		f, ok := t.FieldByName(field)
		if !ok || !f.IsExported() {
			return nil, &AttributeError{Class: t.Name(), Attribute: sf.Name, Err: fmt.Errorf("%w: %s", ErrUnknownField, field)}
		}
		out = append(out, attrSource{name: sf.Name, field: f, index: f.Index})
	}
	return out, nil
}
