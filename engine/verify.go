package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/pagestore"
)

// VerifyOptions tunes Verify.
type VerifyOptions struct {
	// Records also checks that the record blob of every object exists.
	Records bool
}

// VerifyReport lists the problems found by Verify.
type VerifyReport struct {
	Commit   uint64
	Objects  uint64
	Extents  uint64
	Problems []string
}

// OK reports whether no problem was found.
func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

func (r *VerifyReport) addf(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify checks the structure of both index trees of the current commit and
// that they describe the same set of objects. The returned error is only
// set when the check itself could not run.
func (e *Engine) Verify(ctx context.Context, opts VerifyOptions) (*VerifyReport, error) {
	v, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	defer v.Release()

	r := &VerifyReport{Commit: v.Commit()}
	if err := v.version.objects.Check(ctx); err != nil {
		r.addf("objects tree: %v", err)
	}
	if err := v.version.extents.Check(ctx); err != nil {
		r.addf("extents tree: %v", err)
	}
	if !r.OK() {
		return r, nil
	}

	objects := roaring64.New()
	classes := make(map[model.OID]model.ClassID)
	oc := v.Objects(ctx, btree.Ascending)
	for oc.Next() {
		oid, loc := oc.Key(), oc.Value()
		objects.Add(uint64(oid))
		classes[oid] = loc.Class
		if opts.Records {
			if _, err := e.store.Get(ctx, RecordName(oid, loc.Version)); err != nil {
				if !errors.Is(err, pagestore.ErrNotFound) {
					return nil, storageError("verify record", err)
				}
				r.addf("%s: record version %d missing", oid, loc.Version)
			}
		}
	}
	if err := oc.Err(); err != nil {
		return nil, storageError("scan objects", err)
	}
	oc.Close()

	extents := roaring64.New()
	xc := v.version.extents.Iterator(ctx, btree.Ascending)
	for xc.Next() {
		k := xc.Key()
		if extents.CheckedAdd(uint64(k.Second)) {
			if class, ok := classes[k.Second]; ok && class != k.First {
				r.addf("%s: in extent of class %d, object is class %d", k.Second, k.First, class)
			}
		} else {
			r.addf("%s: in more than one extent", k.Second)
		}
	}
	if err := xc.Err(); err != nil {
		return nil, storageError("scan extents", err)
	}
	xc.Close()

	r.Objects = objects.GetCardinality()
	r.Extents = extents.GetCardinality()

	missing := roaring64.AndNot(objects, extents)
	for it := missing.Iterator(); it.HasNext(); {
		r.addf("%s: not in any extent", model.OID(it.Next()))
	}
	stale := roaring64.AndNot(extents, objects)
	for it := stale.Iterator(); it.HasNext(); {
		r.addf("%s: extent entry without object", model.OID(it.Next()))
	}
	return r, nil
}
