package oodb

import (
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
)

type cacheEntry struct {
	oid   model.OID
	obj   any
	class *meta.ClassInfo
	// info is the last committed snapshot, nil for objects that were
	// never committed.
	info    *meta.NonNativeObjectInfo
	version model.Version
}

func (e *cacheEntry) committed() bool { return e.info != nil }

// ObjectCache maps OIDs to the in-memory objects of one session. The same
// OID always resolves to the same pointer while it is cached.
//
// Evicted objects are kept detached: they no longer answer Get, but
// references to them still resolve to their OID.
type ObjectCache struct {
	byOID    map[model.OID]*cacheEntry
	byObj    map[any]*cacheEntry
	detached map[any]*cacheEntry
}

func newObjectCache() *ObjectCache {
	return &ObjectCache{
		byOID:    make(map[model.OID]*cacheEntry),
		byObj:    make(map[any]*cacheEntry),
		detached: make(map[any]*cacheEntry),
	}
}

// Get returns the object cached under oid.
func (c *ObjectCache) Get(oid model.OID) (any, bool) {
	e, ok := c.byOID[oid]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// OIDOf returns the OID of a cached object.
func (c *ObjectCache) OIDOf(obj any) (model.OID, bool) {
	e, ok := c.byObj[obj]
	if !ok {
		return model.InvalidOID, false
	}
	return e.oid, true
}

// Snapshot returns the last committed snapshot of oid.
func (c *ObjectCache) Snapshot(oid model.OID) (*meta.NonNativeObjectInfo, bool) {
	e, ok := c.byOID[oid]
	if !ok || e.info == nil {
		return nil, false
	}
	return e.info, true
}

// Version returns the committed version of oid, 0 if it was never
// committed.
func (c *ObjectCache) Version(oid model.OID) model.Version {
	if e, ok := c.byOID[oid]; ok {
		return e.version
	}
	return 0
}

// Len returns the number of cached objects.
func (c *ObjectCache) Len() int { return len(c.byOID) }

// Remove evicts obj. The object keeps its OID for references and can be
// stored again.
func (c *ObjectCache) Remove(obj any) bool {
	e, ok := c.byObj[obj]
	if !ok {
		return false
	}
	delete(c.byObj, obj)
	delete(c.byOID, e.oid)
	c.detached[obj] = e
	return true
}

// forget drops every trace of obj.
func (c *ObjectCache) forget(obj any) {
	if e, ok := c.byObj[obj]; ok {
		delete(c.byObj, obj)
		delete(c.byOID, e.oid)
	}
	delete(c.detached, obj)
}

// lookup returns the entry of obj, cached or detached.
func (c *ObjectCache) lookup(obj any) (*cacheEntry, bool) {
	if e, ok := c.byObj[obj]; ok {
		return e, true
	}
	e, ok := c.detached[obj]
	return e, ok
}

// reattach caches a detached entry again unless its OID was read into
// another instance meanwhile.
func (c *ObjectCache) reattach(e *cacheEntry) {
	if _, taken := c.byOID[e.oid]; taken {
		return
	}
	delete(c.detached, e.obj)
	c.put(e)
}

func (c *ObjectCache) put(e *cacheEntry) {
	c.byOID[e.oid] = e
	c.byObj[e.obj] = e
}

func (c *ObjectCache) clear() {
	clear(c.byOID)
	clear(c.byObj)
	clear(c.detached)
}

// PendingReading is a reference found while materializing an object graph
// whose target has not been read yet.
type PendingReading struct {
	// ID is the OID to read.
	ID model.OID
	// ClassInfo is the class the reference expects, nil for the root.
	ClassInfo *meta.ClassInfo
	// AttributeOID is the OID of the object holding the reference.
	AttributeOID model.OID
}

type tmpEntry struct {
	obj     any
	info    *meta.NonNativeObjectInfo
	version model.Version
}

// TmpCache holds the partially materialized objects of a graph read, so
// cyclic references resolve to the same instance. It is emptied after every
// read and on commit and rollback.
type TmpCache struct {
	objects map[model.OID]*tmpEntry
	order   []model.OID
	pending []PendingReading
}

func newTmpCache() *TmpCache {
	return &TmpCache{objects: make(map[model.OID]*tmpEntry)}
}

// Get returns the partially materialized object of oid.
func (c *TmpCache) Get(oid model.OID) (any, bool) {
	e, ok := c.objects[oid]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Len returns the number of objects held.
func (c *TmpCache) Len() int { return len(c.objects) }

// Pending returns the queued readings.
func (c *TmpCache) Pending() []PendingReading { return c.pending }

func (c *TmpCache) put(oid model.OID, e *tmpEntry) {
	c.objects[oid] = e
	c.order = append(c.order, oid)
}

func (c *TmpCache) push(pr PendingReading) { c.pending = append(c.pending, pr) }

func (c *TmpCache) pop() (PendingReading, bool) {
	if len(c.pending) == 0 {
		return PendingReading{}, false
	}
	pr := c.pending[0]
	c.pending = c.pending[1:]
	return pr, true
}

func (c *TmpCache) clear() {
	clear(c.objects)
	c.order = c.order[:0]
	c.pending = nil
}
