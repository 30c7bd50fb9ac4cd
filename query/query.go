package query

import (
	"context"
	"fmt"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
)

// Predicate decides whether an object belongs to the result.
type Predicate interface {
	Match(obj any) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(obj any) bool

func (f PredicateFunc) Match(obj any) bool { return f(obj) }

// Query describes what to select.
type Query struct {
	// Class scopes the query. With Polymorphic set its subclasses are
	// included.
	Class       *meta.ClassInfo
	Where       Predicate
	Polymorphic bool
	// Order is the OID direction of each class scan.
	Order btree.Order
	// Ordered merges multi-class results by OID instead of concatenating
	// them class by class.
	Ordered bool
	// Limit caps the number of results, 0 means no limit.
	Limit int
}

func (q *Query) String() string {
	name := "<nil>"
	if q.Class != nil {
		name = q.Class.Name
	}
	return fmt.Sprintf("Query(class=%s polymorphic=%t order=%s ordered=%t limit=%d)", name, q.Polymorphic, q.Order, q.Ordered, q.Limit)
}

func (q *Query) match(obj any) bool {
	return q.Where == nil || q.Where.Match(obj)
}

// Cursor iterates the OIDs of one class extent. *engine.ExtentCursor
// implements it.
type Cursor interface {
	Next() bool
	OID() model.OID
	Err() error
	Close() error
}

// StorageEngine is the read side an executor scans.
type StorageEngine interface {
	// Extent returns the committed direct instances of class.
	Extent(ctx context.Context, class model.ClassID, order btree.Order) Cursor
	// Load returns the object stored under oid. An engine.ErrNotFound
	// result drops the OID from the results.
	Load(ctx context.Context, oid model.OID) (any, error)
}

// Overlay exposes the uncommitted changes of a session so results include
// its own writes.
type Overlay interface {
	// Staged returns the staged, never committed OIDs of class in
	// ascending order.
	Staged(class model.ClassID) []model.OID
	// Deleted reports whether oid has a staged delete.
	Deleted(oid model.OID) bool
}

// Metamodel enumerates subclasses for polymorphic queries. *meta.Registry
// implements it.
type Metamodel interface {
	Subclasses(ci *meta.ClassInfo) []*meta.ClassInfo
}
