package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/internal/manifest"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/pagestore"
	"github.com/hupe1980/oodb/resource"
	"github.com/hupe1980/oodb/serial"
	"golang.org/x/sync/errgroup"
)

// Engine is the shared, goroutine-safe storage engine.
type Engine struct {
	mu sync.Mutex // serializes commits and vacuum

	store     pagestore.Store
	manifests *manifest.Store
	manifest  *manifest.Manifest // last committed

	objects  *btree.Tree[model.OID, model.Location]
	extents  *btree.Tree[ExtentKey, struct{}]
	objPager *pagestore.Pager
	extPager *pagestore.Pager

	catalog        *meta.MemoryCatalog
	catalogVersion uint64 // catalog version saved in manifest

	nextOID atomic.Uint64
	orphans []manifest.GarbageEntry // blobs of failed commits

	pinMu   sync.Mutex
	current *version
	pins    map[uint64]int

	codec            codec.Codec
	degree           int
	nodeCacheSize    int
	writeConcurrency int
	keepManifests    int
	rc               *resource.Controller
	logger           *slog.Logger
	closed           atomic.Bool
}

type version struct {
	id      uint64
	objects *btree.View[model.OID, model.Location]
	extents *btree.View[ExtentKey, struct{}]
}

// Open opens the database stored in store, creating it if CURRENT does not
// exist.
func Open(ctx context.Context, store pagestore.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:            store,
		codec:            codec.Default,
		degree:           btree.DefaultDegree,
		writeConcurrency: DefaultWriteConcurrency,
		keepManifests:    DefaultKeepManifests,
		logger:           slog.New(slog.DiscardHandler),
		pins:             make(map[uint64]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.manifests = manifest.NewStore(store, nil)
	m, err := e.manifests.Load(ctx)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		m = manifest.New(e.codec.Name(), e.degree)
	case err != nil:
		return nil, storageError("load manifest", err)
	default:
		c, ok := codec.ByName(m.Codec)
		if !ok {
			return nil, fmt.Errorf("engine: unknown codec %q", m.Codec)
		}
		if c.Name() != e.codec.Name() {
			e.logger.Warn("keeping codec of existing database", "codec", c.Name(), "requested", e.codec.Name())
		}
		e.codec = c
		e.degree = m.Degree
	}

	classes, err := catalogFromManifest(m.Classes)
	if err != nil {
		return nil, err
	}
	e.catalog = meta.NewMemoryCatalog(classes, m.NextClassID)
	e.catalogVersion = e.catalog.Version()

	treeOpts := []btree.Option{
		btree.WithDegree(e.degree),
		btree.WithResourceController(e.rc),
		btree.WithLogger(e.logger),
	}
	if e.nodeCacheSize > 0 {
		treeOpts = append(treeOpts, btree.WithNodeCacheSize(e.nodeCacheSize))
	}

	e.objPager = pagestore.NewPager(store, objectsPrefix)
	e.objects, err = btree.Open(e.objPager, oidSerializer, locationSerializer, model.CompareOID, m.Trees[objectsTree], treeOpts...)
	if err != nil {
		return nil, err
	}
	e.extPager = pagestore.NewPager(store, extentsPrefix)
	e.extents, err = btree.Open(e.extPager, extentSerializer, serial.Empty{}, compareExtent, m.Trees[extentsTree], treeOpts...)
	if err != nil {
		return nil, err
	}

	e.manifest = m
	e.nextOID.Store(uint64(max(m.NextOID, 1)))
	e.publish(m.ID)

	e.logger.Info("engine opened",
		"commit", m.ID,
		"objects", e.objects.Len(),
		"classes", len(m.Classes),
		"codec", e.codec.Name(),
		"degree", e.degree,
	)
	return e, nil
}

// Codec returns the record codec.
func (e *Engine) Codec() codec.Codec { return e.codec }

// Catalog returns the class catalog. Changes are persisted by the next
// commit.
func (e *Engine) Catalog() *meta.MemoryCatalog { return e.catalog }

// AllocateOID returns a new OID. OIDs are never reused, even when the
// object is never committed.
func (e *Engine) AllocateOID() (model.OID, error) {
	if e.closed.Load() {
		return model.InvalidOID, ErrClosed
	}
	return model.OID(e.nextOID.Add(1) - 1), nil
}

// CommitID returns the id of the last commit.
func (e *Engine) CommitID() uint64 {
	e.pinMu.Lock()
	defer e.pinMu.Unlock()
	return e.current.id
}

// Snapshot pins the current committed version. The View must be released.
func (e *Engine) Snapshot() (*View, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.pinMu.Lock()
	defer e.pinMu.Unlock()
	cur := e.current
	e.pins[cur.id]++
	return &View{e: e, version: cur}, nil
}

func (e *Engine) publish(id uint64) {
	v := &version{id: id, objects: e.objects.Committed(), extents: e.extents.Committed()}
	e.pinMu.Lock()
	e.current = v
	e.pinMu.Unlock()
}

func (e *Engine) unpin(id uint64) {
	e.pinMu.Lock()
	defer e.pinMu.Unlock()
	if e.pins[id]--; e.pins[id] <= 0 {
		delete(e.pins, id)
	}
}

// oldestPinned returns the oldest commit a live View may read.
func (e *Engine) oldestPinned() uint64 {
	e.pinMu.Lock()
	defer e.pinMu.Unlock()
	oldest := e.current.id
	for id := range e.pins {
		oldest = min(oldest, id)
	}
	return oldest
}

// Write stores a new version of an object.
type Write struct {
	OID   model.OID
	Class model.ClassID
	Data  []byte
	// Base is the committed version the write was derived from, 0 for a
	// new object.
	Base model.Version
}

// Delete removes an object.
type Delete struct {
	OID  model.OID
	Base model.Version
}

// ChangeSet is the unit of an atomic commit.
type ChangeSet struct {
	Writes  []Write
	Deletes []Delete
}

// Empty reports whether cs changes nothing.
func (cs ChangeSet) Empty() bool { return len(cs.Writes) == 0 && len(cs.Deletes) == 0 }

// CommitResult reports a successful commit.
type CommitResult struct {
	ID       uint64
	Versions map[model.OID]model.Version
	Written  int
	Deleted  int
	Duration time.Duration
}

// Commit applies cs atomically. Either every change becomes visible to new
// snapshots or none does. Writes and deletes are checked against the
// current version of their object; a stale Base fails with ErrConflict.
func (e *Engine) Commit(ctx context.Context, cs ChangeSet) (CommitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return CommitResult{}, ErrClosed
	}
	start := time.Now()
	catalogVersion := e.catalog.Version()
	if cs.Empty() && catalogVersion == e.catalogVersion {
		return CommitResult{ID: e.manifest.ID}, nil
	}

	res := CommitResult{Versions: make(map[model.OID]model.Version, len(cs.Writes))}
	deleted := make(map[model.OID]model.Location, len(cs.Deletes))
	var superseded []string

	for _, w := range cs.Writes {
		if _, dup := res.Versions[w.OID]; dup || !w.OID.IsValid() {
			return CommitResult{}, fmt.Errorf("%w: write of %s", ErrInvalidChangeSet, w.OID)
		}
		if uint64(w.OID) >= e.nextOID.Load() {
			return CommitResult{}, fmt.Errorf("%w: %s was not allocated", ErrInvalidChangeSet, w.OID)
		}
		loc, err := e.check(ctx, w.OID, w.Base)
		if err != nil {
			return CommitResult{}, err
		}
		if w.Base != 0 {
			if loc.Class != w.Class {
				return CommitResult{}, fmt.Errorf("%w: %s is class %d, write is class %d", ErrClassMismatch, w.OID, loc.Class, w.Class)
			}
			superseded = append(superseded, RecordName(w.OID, w.Base))
		}
		res.Versions[w.OID] = w.Base + 1
	}
	for _, d := range cs.Deletes {
		_, written := res.Versions[d.OID]
		if _, dup := deleted[d.OID]; dup || written {
			return CommitResult{}, fmt.Errorf("%w: delete of %s", ErrInvalidChangeSet, d.OID)
		}
		if d.Base == 0 {
			return CommitResult{}, fmt.Errorf("%w: delete of uncommitted %s", ErrInvalidChangeSet, d.OID)
		}
		loc, err := e.check(ctx, d.OID, d.Base)
		if err != nil {
			return CommitResult{}, err
		}
		deleted[d.OID] = loc
		superseded = append(superseded, RecordName(d.OID, d.Base))
	}

	names, err := e.writeRecords(ctx, cs.Writes, res.Versions)
	if err != nil {
		e.abort(names)
		return CommitResult{}, storageError("write records", err)
	}

	// Versions of an aborted commit are handed out again; their orphaned
	// records were just overwritten and are live now.
	e.orphans = slices.DeleteFunc(e.orphans, func(g manifest.GarbageEntry) bool {
		return g.Kind == manifest.GarbageRecord && slices.Contains(names, g.Name)
	})

	if err := e.apply(ctx, cs, res.Versions, deleted); err != nil {
		e.abort(names)
		return CommitResult{}, err
	}

	m := e.manifest.Clone()
	since := m.ID + 1
	m.NextOID = model.OID(e.nextOID.Load())
	m.Classes = catalogToManifest(e.catalog.Classes())
	m.NextClassID = e.catalog.NextClassID()
	m.Trees[objectsTree] = e.objects.Meta()
	m.Trees[extentsTree] = e.extents.Meta()
	for _, id := range e.objects.Retired() {
		m.Garbage = append(m.Garbage, manifest.GarbageEntry{Kind: manifest.GarbagePage, Name: e.objPager.PageName(id), Since: since})
	}
	for _, id := range e.extents.Retired() {
		m.Garbage = append(m.Garbage, manifest.GarbageEntry{Kind: manifest.GarbagePage, Name: e.extPager.PageName(id), Since: since})
	}
	for _, name := range superseded {
		m.Garbage = append(m.Garbage, manifest.GarbageEntry{Kind: manifest.GarbageRecord, Name: name, Since: since})
	}
	m.Garbage = append(m.Garbage, e.orphans...)

	if err := e.manifests.Save(ctx, m); err != nil {
		e.abort(names)
		return CommitResult{}, storageError("save manifest", err)
	}

	// The manifest is durable; publishing cannot fail after a clean flush.
	if err := e.objects.Publish(); err != nil {
		return CommitResult{}, err
	}
	if err := e.extents.Publish(); err != nil {
		return CommitResult{}, err
	}
	e.objects.Garbage()
	e.extents.Garbage()

	e.orphans = nil
	e.manifest = m
	e.catalogVersion = catalogVersion
	e.publish(m.ID)

	res.ID = m.ID
	res.Written = len(cs.Writes)
	res.Deleted = len(cs.Deletes)
	res.Duration = time.Since(start)
	e.logger.Debug("commit",
		"id", res.ID,
		"written", res.Written,
		"deleted", res.Deleted,
		"garbage", len(m.Garbage),
		"duration", res.Duration,
	)
	return res, nil
}

// check verifies that oid is at version base in the working trees. A base
// of 0 requires the OID to be unused.
func (e *Engine) check(ctx context.Context, oid model.OID, base model.Version) (model.Location, error) {
	loc, err := e.objects.Search(ctx, oid)
	switch {
	case errors.Is(err, btree.ErrNotFound):
		if base != 0 {
			return loc, &ConflictError{OID: oid, Expected: base}
		}
		return loc, nil
	case err != nil:
		return loc, storageError("lookup", err)
	case loc.Version != base:
		return loc, &ConflictError{OID: oid, Expected: base, Actual: loc.Version}
	}
	return loc, nil
}

func (e *Engine) writeRecords(ctx context.Context, writes []Write, versions map[model.OID]model.Version) ([]string, error) {
	names := make([]string, len(writes))
	for i, w := range writes {
		names[i] = RecordName(w.OID, versions[w.OID])
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.writeConcurrency)
	for i, w := range writes {
		g.Go(func() error {
			return e.store.Put(gctx, names[i], w.Data)
		})
	}
	return names, g.Wait()
}

func (e *Engine) apply(ctx context.Context, cs ChangeSet, versions map[model.OID]model.Version, deleted map[model.OID]model.Location) error {
	for _, w := range cs.Writes {
		if err := e.objects.Insert(ctx, w.OID, model.Location{Class: w.Class, Version: versions[w.OID]}); err != nil {
			return storageError("index object", err)
		}
		if w.Base == 0 {
			if err := e.extents.Insert(ctx, ExtentKey{First: w.Class, Second: w.OID}, struct{}{}); err != nil {
				return storageError("index extent", err)
			}
		}
	}
	for oid, loc := range deleted {
		if _, err := e.objects.Delete(ctx, oid); err != nil {
			return storageError("unindex object", err)
		}
		if _, err := e.extents.Delete(ctx, ExtentKey{First: loc.Class, Second: oid}); err != nil {
			return storageError("unindex extent", err)
		}
	}
	if err := e.objects.Flush(ctx); err != nil {
		return storageError("flush objects", err)
	}
	if err := e.extents.Flush(ctx); err != nil {
		return storageError("flush extents", err)
	}
	return nil
}

// abort returns the trees to the committed version and remembers the blobs
// written for the failed commit so vacuum removes them.
func (e *Engine) abort(records []string) {
	e.objects.Rollback()
	e.extents.Rollback()
	for _, id := range e.objects.Garbage() {
		e.orphans = append(e.orphans, manifest.GarbageEntry{Kind: manifest.GarbagePage, Name: e.objPager.PageName(id)})
	}
	for _, id := range e.extents.Garbage() {
		e.orphans = append(e.orphans, manifest.GarbageEntry{Kind: manifest.GarbagePage, Name: e.extPager.PageName(id)})
	}
	for _, name := range records {
		e.orphans = append(e.orphans, manifest.GarbageEntry{Kind: manifest.GarbageRecord, Name: name})
	}
	e.logger.Warn("commit aborted", "orphans", len(e.orphans))
}

// Stats describes the committed state.
type Stats struct {
	CommitID    uint64
	Objects     int
	Classes     int
	NextOID     model.OID
	Garbage     int
	PinnedViews int
	CacheHits   int64
	CacheMisses int64
}

// Stats returns engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	m := e.manifest
	e.mu.Unlock()

	e.pinMu.Lock()
	pinned := 0
	for _, n := range e.pins {
		pinned += n
	}
	e.pinMu.Unlock()

	oh, om := e.objects.CacheStats()
	xh, xm := e.extents.CacheStats()
	return Stats{
		CommitID:    m.ID,
		Objects:     int(m.Trees[objectsTree].Count),
		Classes:     len(m.Classes),
		NextOID:     model.OID(e.nextOID.Load()),
		Garbage:     len(m.Garbage),
		PinnedViews: pinned,
		CacheHits:   oh + xh,
		CacheMisses: om + xm,
	}
}

// Manifest returns a copy of the committed manifest.
func (e *Engine) Manifest() *manifest.Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest.Clone()
}

// Close rejects further operations. It waits for a running commit.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger.Info("engine closed", "commit", e.manifest.ID)
	return nil
}
