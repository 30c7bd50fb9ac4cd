package meta

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/oodb/model"
)

// Definition is the shape of a class handed to a Catalog.
type Definition struct {
	Name       string
	Super      model.ClassID
	Attributes []AttributeDefinition
}

// AttributeDefinition is one attribute of a Definition.
type AttributeDefinition struct {
	Name string
	Kind Kind
}

// Catalog assigns stable ids to classes and attributes.
type Catalog interface {
	// Bind returns the class id and one attribute id per definition
	// attribute, in order. Attributes missing from def are retired; their
	// ids are never handed out again.
	Bind(def Definition) (model.ClassID, []model.AttributeID, error)
}

// CatalogClass is the persisted form of one catalog entry.
type CatalogClass struct {
	ID         model.ClassID
	Name       string
	Super      model.ClassID
	NextAttrID model.AttributeID
	Attributes []CatalogAttribute
}

// CatalogAttribute is the persisted form of one attribute id.
type CatalogAttribute struct {
	ID      model.AttributeID
	Name    string
	Kind    Kind
	Retired bool
}

// MemoryCatalog is a Catalog kept in memory. Its content can be exported
// with Classes and restored with NewMemoryCatalog.
type MemoryCatalog struct {
	mu      sync.Mutex
	next    model.ClassID
	classes []CatalogClass
	version uint64
}

// NewMemoryCatalog restores a catalog. next is the next class id to assign;
// values below 1 are raised past the restored ids.
func NewMemoryCatalog(classes []CatalogClass, next model.ClassID) *MemoryCatalog {
	c := &MemoryCatalog{next: max(next, 1)}
	for _, cc := range classes {
		cc.Attributes = slices.Clone(cc.Attributes)
		c.classes = append(c.classes, cc)
		if cc.ID >= c.next {
			c.next = cc.ID + 1
		}
	}
	return c
}

// Bind implements Catalog.
func (c *MemoryCatalog) Bind(def Definition) (model.ClassID, []model.AttributeID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.IndexFunc(c.classes, func(cc CatalogClass) bool { return cc.Name == def.Name })
	if idx < 0 {
		c.classes = append(c.classes, CatalogClass{ID: c.next, Name: def.Name, Super: def.Super, NextAttrID: 1})
		c.next++
		idx = len(c.classes) - 1
		c.version++
	}

	// Work on a copy so a failed bind leaves the entry untouched.
	cc := c.classes[idx]
	cc.Attributes = slices.Clone(cc.Attributes)
	changed := cc.Super != def.Super
	cc.Super = def.Super

	ids := make([]model.AttributeID, len(def.Attributes))
	seen := make(map[model.AttributeID]bool, len(def.Attributes))
	for i, ad := range def.Attributes {
		j := slices.IndexFunc(cc.Attributes, func(a CatalogAttribute) bool { return a.Name == ad.Name })
		if j < 0 {
			cc.Attributes = append(cc.Attributes, CatalogAttribute{ID: cc.NextAttrID, Name: ad.Name, Kind: ad.Kind})
			cc.NextAttrID++
			j = len(cc.Attributes) - 1
			changed = true
		}
		a := &cc.Attributes[j]
		if a.Kind != ad.Kind {
			return 0, nil, &AttributeError{Class: def.Name, Attribute: ad.Name, Err: fmt.Errorf("%w: %s to %s", ErrKindChanged, a.Kind, ad.Kind)}
		}
		if a.Retired {
			a.Retired = false
			changed = true
		}
		ids[i] = a.ID
		seen[a.ID] = true
	}
	for j := range cc.Attributes {
		if !seen[cc.Attributes[j].ID] && !cc.Attributes[j].Retired {
			cc.Attributes[j].Retired = true
			changed = true
		}
	}

	c.classes[idx] = cc
	if changed {
		c.version++
	}
	return cc.ID, ids, nil
}

// Classes returns a copy of all entries.
func (c *MemoryCatalog) Classes() []CatalogClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CatalogClass, len(c.classes))
	for i, cc := range c.classes {
		cc.Attributes = slices.Clone(cc.Attributes)
		out[i] = cc
	}
	return out
}

// NextClassID returns the id the next new class will get.
func (c *MemoryCatalog) NextClassID() model.ClassID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Version increases on every change to the catalog.
func (c *MemoryCatalog) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// ClassInfoFromCatalog builds schema-only ClassInfos (no Go type) for every
// entry, linking superclasses. Retired attributes are left out.
func ClassInfoFromCatalog(classes []CatalogClass) (map[model.ClassID]*ClassInfo, error) {
	out := make(map[model.ClassID]*ClassInfo, len(classes))
	for _, cc := range classes {
		ci := NewClassInfo(cc.ID, cc.Name, nil, nil)
		for _, a := range cc.Attributes {
			if a.Retired {
				continue
			}
			if err := ci.AddAttribute(&ClassAttributeInfo{ID: a.ID, Name: a.Name, Kind: a.Kind}); err != nil {
				return nil, err
			}
		}
		out[cc.ID] = ci
	}
	for _, cc := range classes {
		if cc.Super != 0 {
			out[cc.ID].Super = out[cc.Super]
		}
	}
	return out, nil
}
