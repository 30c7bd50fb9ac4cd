package oodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/observability"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateOpen is a fresh session.
	StateOpen State = iota
	// StateReading has read objects and staged nothing.
	StateReading
	// StateWriting has a pending transaction.
	StateWriting
	// StateCommitted ended its last transaction with a commit.
	StateCommitted
	// StateRolledBack ended its last transaction with a rollback.
	StateRolledBack
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one unit of work against a DB. It keeps an identity cache of
// the objects it read or stored and at most one pending transaction.
//
// A Session is not safe for concurrent use. Run one session per goroutine;
// sessions only coordinate through the engine.
type Session struct {
	id         uuid.UUID
	db         *DB
	view       *engine.View
	cache      *ObjectCache
	tmp        *TmpCache
	tx         *transaction
	state      State
	rolledBack bool
	detector   meta.ChangeDetector
	logger     *Logger
}

type pending struct {
	oid   model.OID
	obj   any
	class *meta.ClassInfo
	// base is the committed version the change applies to, 0 for objects
	// never committed.
	base model.Version
}

type transaction struct {
	id      uuid.UUID
	started time.Time
	writes  map[model.OID]*pending
	deletes map[model.OID]*pending
	order   []model.OID
}

func newTransaction() *transaction {
	return &transaction{
		id:      uuid.New(),
		started: time.Now(),
		writes:  make(map[model.OID]*pending),
		deletes: make(map[model.OID]*pending),
	}
}

func (tx *transaction) size() int { return len(tx.writes) + len(tx.deletes) }

func (tx *transaction) stageWrite(p *pending) {
	if _, ok := tx.writes[p.oid]; ok {
		return
	}
	delete(tx.deletes, p.oid)
	tx.writes[p.oid] = p
	tx.order = append(tx.order, p.oid)
}

func (tx *transaction) stageDelete(p *pending) {
	delete(tx.writes, p.oid)
	tx.deletes[p.oid] = p
}

func (tx *transaction) unstage(oid model.OID) {
	delete(tx.writes, oid)
	delete(tx.deletes, oid)
}

// ID returns the unique session id.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Cache returns the identity cache of committed and staged objects.
func (s *Session) Cache() *ObjectCache { return s.cache }

// TmpCache returns the cache used while materializing object graphs.
func (s *Session) TmpCache() *TmpCache { return s.tmp }

// IsRollbacked reports whether the last transaction ended with Rollback.
func (s *Session) IsRollbacked() bool { return s.rolledBack }

// TransactionIsPending reports whether changes are staged.
func (s *Session) TransactionIsPending() bool { return s.tx != nil && s.tx.size() > 0 }

// CommitID returns the commit the session reads.
func (s *Session) CommitID() uint64 { return s.view.Commit() }

// OIDOf returns the OID of an object known to the session.
func (s *Session) OIDOf(obj any) (model.OID, bool) { return s.cache.OIDOf(obj) }

// RemoveObjectFromCache evicts obj. A later Get of its OID reads a new
// instance. Staged changes of obj are kept, and references to obj keep
// resolving to its OID, so storing a referrer never duplicates it.
func (s *Session) RemoveObjectFromCache(obj any) bool { return s.cache.Remove(obj) }

func (s *Session) checkOpen() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) resolve(obj any) model.OID {
	if e, ok := s.cache.lookup(obj); ok {
		return e.oid
	}
	return model.InvalidOID
}

func (s *Session) txn() *transaction {
	if s.tx == nil {
		s.tx = newTransaction()
	}
	s.state = StateWriting
	return s.tx
}

func (s *Session) classOf(obj any) (*meta.ClassInfo, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T", ErrNotPointer, obj)
	}
	return s.db.registry.ClassInfoOf(obj)
}

// Store stages obj for the next commit and returns its OID. A new object
// is inserted. A known object is updated only if it differs from its last
// committed state. Objects reachable from obj that are not persisted yet
// are stored as well.
func (s *Session) Store(ctx context.Context, obj any) (model.OID, error) {
	if err := s.checkOpen(); err != nil {
		return model.InvalidOID, err
	}
	oid, err := s.stage(obj)
	if err != nil {
		return model.InvalidOID, err
	}
	if s.tx != nil && s.tx.size() == 0 {
		s.endEmptyTransaction()
	}
	return oid, nil
}

func (s *Session) stage(root any) (model.OID, error) {
	var rootOID model.OID
	stack := []any{root}
	for first := true; len(stack) > 0; first = false {
		obj := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ci, err := s.classOf(obj)
		if err != nil {
			return model.InvalidOID, err
		}
		e, known := s.cache.lookup(obj)
		if known && !first {
			// Persisted objects are not cascaded into.
			continue
		}

		if known {
			s.cache.reattach(e)
		} else {
			if e, err = s.stageNew(obj, ci); err != nil {
				return model.InvalidOID, err
			}
		}
		if first {
			rootOID = e.oid
		}

		snap, err := meta.Snapshot(ci, obj, s.resolve)
		if err != nil {
			return model.InvalidOID, err
		}
		if known {
			tx := s.txn()
			_, deleted := tx.deletes[e.oid]
			_, staged := tx.writes[e.oid]
			switch {
			case deleted || (e.committed() && !staged && s.detector.HasChanged(e.info, snap)):
				tx.stageWrite(&pending{oid: e.oid, obj: obj, class: ci, base: e.version})
			case !e.committed():
				tx.stageWrite(&pending{oid: e.oid, obj: obj, class: ci})
			}
		}
		stack = append(stack, unresolved(snap)...)
	}
	return rootOID, nil
}

func (s *Session) stageNew(obj any, ci *meta.ClassInfo) (*cacheEntry, error) {
	oid, err := s.db.engine.AllocateOID()
	if err != nil {
		return nil, err
	}
	e := &cacheEntry{oid: oid, obj: obj, class: ci}
	s.cache.put(e)
	s.txn().stageWrite(&pending{oid: oid, obj: obj, class: ci})
	return e, nil
}

// unresolved returns the referenced objects of info that have no OID.
func unresolved(info *meta.NonNativeObjectInfo) []any {
	var out []any
	for _, v := range info.Values {
		switch r := v.(type) {
		case meta.ObjectReference:
			if !r.OID.IsValid() && r.Object != nil {
				out = append(out, r.Object)
			}
		case meta.ReferenceList:
			for _, e := range r.Refs {
				if !e.OID.IsValid() && e.Object != nil {
					out = append(out, e.Object)
				}
			}
		}
	}
	return out
}

// Delete stages the removal of obj. Deleting an object that was never
// committed just drops it.
func (s *Session) Delete(ctx context.Context, obj any) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	e, ok := s.cache.lookup(obj)
	if !ok {
		return fmt.Errorf("%w: %T is not persisted", ErrNotFound, obj)
	}

	tx := s.txn()
	if e.committed() {
		tx.stageDelete(&pending{oid: e.oid, obj: obj, class: e.class, base: e.version})
		return nil
	}
	tx.unstage(e.oid)
	s.cache.forget(obj)
	if tx.size() == 0 {
		s.endEmptyTransaction()
	}
	return nil
}

func (s *Session) endEmptyTransaction() {
	s.tx = nil
	s.state = StateReading
}

// Get returns the object stored under oid. Within a session the same OID
// always yields the same pointer; staged changes of the session are
// visible.
func (s *Session) Get(ctx context.Context, oid model.OID) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		if _, ok := s.tx.deletes[oid]; ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, oid)
		}
	}
	if obj, ok := s.cache.Get(oid); ok {
		return obj, nil
	}
	if s.tx == nil {
		s.state = StateReading
	}

	start := time.Now()
	obj, n, err := s.materialize(ctx, oid)
	s.db.opts.metricsCollector.RecordLoad(n, time.Since(start), err)
	return obj, err
}

// materialize reads the graph reachable from root that is not cached yet.
// Objects are created and registered in the tmp cache first; their
// references are queued as pending readings and linked once the whole
// graph is read, so cycles resolve to one instance per OID.
func (s *Session) materialize(ctx context.Context, root model.OID) (any, int, error) {
	defer s.tmp.clear()

	s.tmp.push(PendingReading{ID: root})
	for {
		pr, ok := s.tmp.pop()
		if !ok {
			break
		}
		if _, ok := s.cache.Get(pr.ID); ok {
			continue
		}
		if _, ok := s.tmp.Get(pr.ID); ok {
			continue
		}
		if s.tx != nil && s.tx.deletes[pr.ID] != nil && pr.ID != root {
			continue
		}

		rec, err := s.view.Load(ctx, pr.ID)
		if errors.Is(err, engine.ErrNotFound) {
			if pr.ID == root {
				return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, root)
			}
			s.logger.Debug("dangling reference", "oid", pr.ID, "from", pr.AttributeOID)
			continue
		}
		if err != nil {
			return nil, 0, err
		}

		ci, ok := s.db.registry.ByID(rec.Location.Class)
		if !ok {
			return nil, 0, fmt.Errorf("%w: class %d of %s", ErrClassNotRegistered, rec.Location.Class, pr.ID)
		}
		if pr.ClassInfo != nil && ci.Type != pr.ClassInfo.Type {
			return nil, 0, fmt.Errorf("%w: %s is %s, %s references %s", ErrClassMismatch, pr.ID, ci.Name, pr.AttributeOID, pr.ClassInfo.Name)
		}
		info, err := meta.Decode(ci, pr.ID, rec.Data, s.db.engine.Codec())
		if err != nil {
			return nil, 0, err
		}
		obj, err := ci.New()
		if err != nil {
			return nil, 0, err
		}
		s.tmp.put(pr.ID, &tmpEntry{obj: obj, info: info, version: rec.Location.Version})
		s.queueReferences(pr.ID, info)
	}

	load := func(ref meta.ObjectReference, _ *meta.ClassAttributeInfo) (any, error) {
		if obj, ok := s.tmp.Get(ref.OID); ok {
			return obj, nil
		}
		if obj, ok := s.cache.Get(ref.OID); ok {
			return obj, nil
		}
		return nil, nil
	}
	for _, oid := range s.tmp.order {
		e := s.tmp.objects[oid]
		if err := meta.Apply(e.info, e.obj, load); err != nil {
			return nil, 0, err
		}
	}

	// Register the whole graph before taking snapshots, they resolve
	// references through the cache.
	entries := make([]*cacheEntry, 0, len(s.tmp.order))
	for _, oid := range s.tmp.order {
		e := s.tmp.objects[oid]
		ce := &cacheEntry{oid: oid, obj: e.obj, class: e.info.Class, version: e.version}
		s.cache.put(ce)
		entries = append(entries, ce)
	}
	for _, ce := range entries {
		snap, err := meta.Snapshot(ce.class, ce.obj, s.resolve)
		if err != nil {
			for _, ce := range entries {
				s.cache.forget(ce.obj)
			}
			return nil, 0, err
		}
		ce.info = snap
	}

	obj, _ := s.cache.Get(root)
	return obj, len(entries), nil
}

func (s *Session) queueReferences(from model.OID, info *meta.NonNativeObjectInfo) {
	for i, a := range info.Class.Attributes() {
		if !a.Kind.IsReference() {
			continue
		}
		var expected *meta.ClassInfo
		if a.RefType != nil {
			expected, _ = s.db.registry.ClassInfo(a.RefType)
		}
		switch r := info.Values[i].(type) {
		case meta.ObjectReference:
			s.tmp.push(PendingReading{ID: r.OID, ClassInfo: expected, AttributeOID: from})
		case meta.ReferenceList:
			for _, e := range r.Refs {
				if e.OID.IsValid() {
					s.tmp.push(PendingReading{ID: e.OID, ClassInfo: expected, AttributeOID: from})
				}
			}
		}
	}
}

// Commit makes the staged changes durable and visible to new sessions. On
// failure nothing is visible and the transaction stays pending, so it can
// be retried or rolled back. A change based on an object version another
// session replaced fails with ErrConflict.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.TransactionIsPending() {
		return ErrNoPendingTransaction
	}

	start := time.Now()
	s.emit(ctx, observability.EventCommitStart, map[string]any{
		"tx":      s.tx.id.String(),
		"objects": s.tx.size(),
	})

	cs, snaps, err := s.changeSet()
	var res engine.CommitResult
	if err == nil {
		res, err = s.db.engine.Commit(ctx, cs)
	}
	d := time.Since(start)
	s.db.opts.metricsCollector.RecordCommit(len(cs.Writes)+len(cs.Deletes), d, err)
	s.logger.LogCommit(ctx, res.ID, len(cs.Writes), len(cs.Deletes), d, err)
	if err != nil {
		s.emit(ctx, observability.EventCommitEnd, map[string]any{"tx": s.tx.id.String(), "error": err.Error()})
		return err
	}

	for oid, snap := range snaps {
		if e, ok := s.cache.lookup(s.tx.writes[oid].obj); ok {
			e.info = snap
			e.version = res.Versions[oid]
		}
	}
	for _, p := range s.tx.deletes {
		s.cache.forget(p.obj)
	}

	s.emit(ctx, observability.EventCommitEnd, map[string]any{
		"tx":       s.tx.id.String(),
		"commit":   res.ID,
		"written":  res.Written,
		"deleted":  res.Deleted,
		"duration": d,
	})
	s.tmp.clear()
	s.tx = nil
	s.state = StateCommitted
	s.rolledBack = false
	return s.refresh()
}

// changeSet snapshots every staged object. References to objects that are
// not persisted yet stage them too.
func (s *Session) changeSet() (engine.ChangeSet, map[model.OID]*meta.NonNativeObjectInfo, error) {
	tx := s.tx
	var cs engine.ChangeSet
	snaps := make(map[model.OID]*meta.NonNativeObjectInfo, len(tx.writes))

	for i := 0; i < len(tx.order); i++ {
		oid := tx.order[i]
		p, ok := tx.writes[oid]
		if !ok {
			continue
		}
		if _, done := snaps[oid]; done {
			continue
		}

		resolve := func(obj any) model.OID {
			if obj == p.obj {
				return p.oid
			}
			return s.resolve(obj)
		}
		info, err := meta.Snapshot(p.class, p.obj, resolve)
		if err != nil {
			return cs, nil, err
		}
		for _, obj := range unresolved(info) {
			if s.resolve(obj).IsValid() {
				continue
			}
			ci, err := s.classOf(obj)
			if err != nil {
				return cs, nil, err
			}
			if _, err := s.stageNew(obj, ci); err != nil {
				return cs, nil, err
			}
		}
		if err := meta.EnrichWithOID(info, p.obj, resolve); err != nil {
			return cs, nil, err
		}

		data, err := meta.Encode(info, s.db.engine.Codec())
		if err != nil {
			return cs, nil, err
		}
		cs.Writes = append(cs.Writes, engine.Write{OID: oid, Class: p.class.ID, Data: data, Base: p.base})
		snaps[oid] = info
	}

	oids := make([]model.OID, 0, len(tx.deletes))
	for oid := range tx.deletes {
		oids = append(oids, oid)
	}
	slices.Sort(oids)
	for _, oid := range oids {
		cs.Deletes = append(cs.Deletes, engine.Delete{OID: oid, Base: tx.deletes[oid].base})
	}
	return cs, snaps, nil
}

// Rollback discards the staged changes. Staged objects are restored to
// their last committed state and objects that were never committed are
// evicted from the cache.
func (s *Session) Rollback(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !s.TransactionIsPending() {
		return ErrNoPendingTransaction
	}

	n := s.tx.size()
	var errs []error
	restore := func(p *pending) {
		e, ok := s.cache.lookup(p.obj)
		if !ok {
			return
		}
		if !e.committed() {
			s.cache.forget(e.obj)
			return
		}
		if err := meta.Apply(e.info, e.obj, nil); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p.oid, err))
		}
	}
	for _, oid := range s.tx.order {
		if p, ok := s.tx.writes[oid]; ok {
			restore(p)
		}
	}
	for _, p := range s.tx.deletes {
		restore(p)
	}

	err := errors.Join(errs...)
	s.db.opts.metricsCollector.RecordRollback(n)
	s.logger.LogRollback(ctx, n, err)
	s.emit(ctx, observability.EventRollback, map[string]any{
		"tx":        s.tx.id.String(),
		"discarded": n,
	})

	s.tmp.clear()
	s.tx = nil
	s.state = StateRolledBack
	s.rolledBack = true
	if rerr := s.refresh(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// refresh moves the session to the latest commit.
func (s *Session) refresh() error {
	view, err := s.db.engine.Snapshot()
	if err != nil {
		return err
	}
	s.view.Release()
	s.view = view
	return nil
}

// Close ends the session. A pending transaction is rolled back.
func (s *Session) Close(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	var err error
	if s.TransactionIsPending() {
		s.logger.Warn("closing session with pending transaction", "objects", s.tx.size())
		err = s.Rollback(ctx)
	}
	s.view.Release()
	s.cache.clear()
	s.tmp.clear()
	s.state = StateClosed
	s.db.sessions.Add(-1)
	s.emit(ctx, observability.EventSessionClose, map[string]any{"session": s.id.String()})
	return err
}

func (s *Session) emit(ctx context.Context, typ observability.EventType, data map[string]any) {
	data["session"] = s.id.String()
	s.db.emit(ctx, typ, data)
}
