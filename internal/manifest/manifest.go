package manifest

import (
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/model"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Manifest describes the committed state of a database.
type Manifest struct {
	Version     int                   `json:"version"`
	ID          uint64                `json:"id"`
	CreatedAt   time.Time             `json:"created_at"`
	Codec       string                `json:"codec"`
	Degree      int                   `json:"degree"`
	NextOID     model.OID             `json:"next_oid"`
	NextClassID model.ClassID         `json:"next_class_id"`
	Classes     []ClassRecord         `json:"classes"`
	Trees       map[string]btree.Meta `json:"trees"`
	Garbage     []GarbageEntry        `json:"garbage,omitempty"`
}

// New creates an empty manifest.
func New(codecName string, degree int) *Manifest {
	return &Manifest{
		Version:     CurrentVersion,
		CreatedAt:   time.Now(),
		Codec:       codecName,
		Degree:      degree,
		NextOID:     1,
		NextClassID: 1,
		Trees:       make(map[string]btree.Meta),
	}
}

// ClassRecord is the persisted identity of a class.
type ClassRecord struct {
	ID         model.ClassID     `json:"id"`
	Name       string            `json:"name"`
	Super      model.ClassID     `json:"super,omitempty"`
	NextAttrID model.AttributeID `json:"next_attr_id"`
	Attributes []AttributeRecord `json:"attributes"`
}

// AttributeRecord is the persisted identity of an attribute. Retired
// attributes keep their id so it is never handed out again.
type AttributeRecord struct {
	ID      model.AttributeID `json:"id"`
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Retired bool              `json:"retired,omitempty"`
}

// GarbageKind tells vacuum how to delete a garbage entry.
type GarbageKind string

const (
	GarbagePage   GarbageKind = "page"
	GarbageRecord GarbageKind = "record"
)

// GarbageEntry is a blob unreachable from every commit since Since.
type GarbageEntry struct {
	Kind  GarbageKind `json:"kind"`
	Name  string      `json:"name"`
	Since uint64      `json:"since"`
}

// Class returns the record of the class with the given name.
func (m *Manifest) Class(name string) (*ClassRecord, bool) {
	for i := range m.Classes {
		if m.Classes[i].Name == name {
			return &m.Classes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Classes = make([]ClassRecord, len(m.Classes))
	for i, cr := range m.Classes {
		cr.Attributes = slices.Clone(cr.Attributes)
		c.Classes[i] = cr
	}
	c.Trees = maps.Clone(m.Trees)
	if c.Trees == nil {
		c.Trees = make(map[string]btree.Meta)
	}
	c.Garbage = slices.Clone(m.Garbage)
	return &c
}
