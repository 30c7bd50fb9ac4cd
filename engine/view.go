package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/model"
)

// View is a pinned, read-only snapshot of one commit. Vacuum keeps every
// blob the view can reach until Release. A View is safe for concurrent use.
type View struct {
	e        *Engine
	version  *version
	released atomic.Bool
}

// Commit returns the commit id the view reads.
func (v *View) Commit() uint64 { return v.version.id }

// Len returns the number of objects in the view.
func (v *View) Len() int { return v.version.objects.Len() }

// Lookup returns where the object lives in this view.
func (v *View) Lookup(ctx context.Context, oid model.OID) (model.Location, error) {
	loc, err := v.version.objects.Search(ctx, oid)
	switch {
	case errors.Is(err, btree.ErrNotFound):
		return loc, ErrNotFound
	case err != nil:
		return loc, storageError("lookup", err)
	}
	return loc, nil
}

// Record is the encoded form of one object version.
type Record struct {
	OID      model.OID
	Location model.Location
	Data     []byte
}

// Load reads the record of oid as of this view.
func (v *View) Load(ctx context.Context, oid model.OID) (Record, error) {
	loc, err := v.Lookup(ctx, oid)
	if err != nil {
		return Record{}, err
	}
	data, err := v.e.store.Get(ctx, RecordName(oid, loc.Version))
	if err != nil {
		// A missing record of an indexed object is a storage fault too.
		return Record{}, storageError("load record", err)
	}
	return Record{OID: oid, Location: loc, Data: data}, nil
}

// Extent returns a cursor over the OIDs of the direct instances of class,
// in OID order. Instances of subclasses are in their own extents.
func (v *View) Extent(ctx context.Context, class model.ClassID, order btree.Order) *ExtentCursor {
	lo, hi := extentBounds(class)
	return &ExtentCursor{c: v.version.extents.Range(ctx, &lo, &hi, order)}
}

// Count returns the number of direct instances of class.
func (v *View) Count(ctx context.Context, class model.ClassID) (int, error) {
	c := v.Extent(ctx, class, btree.Ascending)
	defer c.Close()
	n := 0
	for c.Next() {
		n++
	}
	return n, c.Err()
}

// Objects returns a cursor over all objects of the view.
func (v *View) Objects(ctx context.Context, order btree.Order) *btree.Cursor[model.OID, model.Location] {
	return v.version.objects.Iterator(ctx, order)
}

// Release unpins the view. Further reads may fail once vacuum ran.
func (v *View) Release() {
	if v.released.CompareAndSwap(false, true) {
		v.e.unpin(v.version.id)
	}
}

// ExtentCursor iterates the OIDs of one class extent.
type ExtentCursor struct {
	c *btree.Cursor[ExtentKey, struct{}]
}

// Next advances the cursor.
func (c *ExtentCursor) Next() bool { return c.c.Next() }

// OID returns the current OID.
func (c *ExtentCursor) OID() model.OID { return c.c.Key().Second }

// Err returns the first error hit by the cursor.
func (c *ExtentCursor) Err() error {
	if err := c.c.Err(); err != nil {
		return storageError("scan extent", err)
	}
	return nil
}

// Close releases the cursor.
func (c *ExtentCursor) Close() error { return c.c.Close() }
