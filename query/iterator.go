package query

import (
	"context"
	"errors"
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/model"
)

// source is a lazy sequence of matching objects in a defined order.
type source interface {
	Next() bool
	OID() model.OID
	Object() any
	Err() error
	Close() error
}

// Iterator is the lazy result of an execution. It is not safe for
// concurrent use and cannot be restarted; execute the query again instead.
// Close releases the underlying cursors and must be called unless Next
// returned false.
type Iterator struct {
	src    source
	limit  int
	seen   *roaring64.Bitmap // nil when sources cannot overlap
	n      int
	done   bool
	err    error
	finish func(n int, err error)
}

func newIterator(src source, limit int, dedup bool, finish func(int, error)) *Iterator {
	it := &Iterator{src: src, limit: limit, finish: finish}
	if dedup {
		it.seen = roaring64.New()
	}
	return it
}

// Next advances to the next result.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.limit > 0 && it.n >= it.limit {
		it.end(nil)
		return false
	}
	for it.src.Next() {
		if it.seen != nil && !it.seen.CheckedAdd(uint64(it.src.OID())) {
			continue
		}
		it.n++
		return true
	}
	it.end(it.src.Err())
	return false
}

// OID returns the OID of the current result.
func (it *Iterator) OID() model.OID {
	if it.done {
		return model.InvalidOID
	}
	return it.src.OID()
}

// Object returns the current result.
func (it *Iterator) Object() any {
	if it.done {
		return nil
	}
	return it.src.Object()
}

// Err returns the fault that ended the sequence, if any.
func (it *Iterator) Err() error { return it.err }

// Count returns the number of results produced so far.
func (it *Iterator) Count() int { return it.n }

// Close stops the iteration early.
func (it *Iterator) Close() error {
	if it.done {
		return nil
	}
	return it.end(nil)
}

// All adapts the iterator to a range-over-func sequence. The iterator is
// closed when the loop ends.
func (it *Iterator) All() iter.Seq2[model.OID, any] {
	return func(yield func(model.OID, any) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.OID(), it.Object()) {
				return
			}
		}
	}
}

func (it *Iterator) end(err error) error {
	it.done = true
	closeErr := it.src.Close()
	if err == nil {
		err = closeErr
	}
	it.err = err
	if it.finish != nil {
		it.finish(it.n, err)
		it.finish = nil
	}
	return closeErr
}

// Collect drains it and returns the objects.
func Collect(it *Iterator) ([]any, error) {
	defer it.Close()
	var out []any
	for it.Next() {
		out = append(out, it.Object())
	}
	return out, it.Err()
}

// classSource yields the objects of one class extent, merged with the
// staged inserts of the overlay.
type classSource struct {
	ctx     context.Context
	storage StorageEngine
	overlay Overlay
	query   *Query
	cursor  Cursor
	staged  []model.OID // in scan order

	head    model.OID
	hasHead bool
	pulled  bool

	oid model.OID
	obj any
	err error
}

func (s *classSource) before(a, b model.OID) bool {
	if s.query.Order == btree.Descending {
		return a > b
	}
	return a < b
}

func (s *classSource) nextOID() (model.OID, bool) {
	if !s.pulled {
		s.hasHead = s.cursor.Next()
		if s.hasHead {
			s.head = s.cursor.OID()
		} else if err := s.cursor.Err(); err != nil {
			s.err = err
			return 0, false
		}
		s.pulled = true
	}
	switch {
	case !s.hasHead && len(s.staged) == 0:
		return 0, false
	case len(s.staged) == 0 || (s.hasHead && s.before(s.head, s.staged[0])):
		s.pulled = false
		return s.head, true
	default:
		oid := s.staged[0]
		s.staged = s.staged[1:]
		return oid, true
	}
}

func (s *classSource) Next() bool {
	for s.err == nil {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		oid, ok := s.nextOID()
		if !ok {
			return false
		}
		if s.overlay != nil && s.overlay.Deleted(oid) {
			continue
		}
		obj, err := s.storage.Load(s.ctx, oid)
		if errors.Is(err, engine.ErrNotFound) {
			continue
		}
		if err != nil {
			s.err = err
			return false
		}
		if !s.query.match(obj) {
			continue
		}
		s.oid, s.obj = oid, obj
		return true
	}
	return false
}

func (s *classSource) OID() model.OID { return s.oid }
func (s *classSource) Object() any    { return s.obj }
func (s *classSource) Err() error     { return s.err }
func (s *classSource) Close() error   { return s.cursor.Close() }

// concatSource yields its sources one after another.
type concatSource struct {
	srcs []source
	i    int
	err  error
}

func (s *concatSource) Next() bool {
	for s.i < len(s.srcs) {
		if s.srcs[s.i].Next() {
			return true
		}
		if err := s.srcs[s.i].Err(); err != nil {
			s.err = err
			return false
		}
		s.i++
	}
	return false
}

func (s *concatSource) OID() model.OID {
	if s.i >= len(s.srcs) {
		return model.InvalidOID
	}
	return s.srcs[s.i].OID()
}

func (s *concatSource) Object() any {
	if s.i >= len(s.srcs) {
		return nil
	}
	return s.srcs[s.i].Object()
}

func (s *concatSource) Err() error   { return s.err }
func (s *concatSource) Close() error { return closeAll(s.srcs) }

// mergeSource merges sources that are each sorted by OID in the same
// direction. Equal OIDs are yielded in source order.
type mergeSource struct {
	srcs    []source
	live    []bool
	desc    bool
	started bool
	cur     int
	err     error
}

func (s *mergeSource) advance(i int) {
	s.live[i] = s.srcs[i].Next()
	if !s.live[i] && s.err == nil {
		s.err = s.srcs[i].Err()
	}
}

func (s *mergeSource) Next() bool {
	if !s.started {
		s.started = true
		s.live = make([]bool, len(s.srcs))
		for i := range s.srcs {
			s.advance(i)
		}
	} else if s.cur >= 0 {
		s.advance(s.cur)
	}
	if s.err != nil {
		return false
	}

	s.cur = -1
	for i, src := range s.srcs {
		if !s.live[i] {
			continue
		}
		if s.cur < 0 {
			s.cur = i
			continue
		}
		best := s.srcs[s.cur].OID()
		if (!s.desc && src.OID() < best) || (s.desc && src.OID() > best) {
			s.cur = i
		}
	}
	return s.cur >= 0
}

// positioned reports whether a current element exists.
func (s *mergeSource) positioned() bool { return s.started && s.cur >= 0 && s.cur < len(s.srcs) }

func (s *mergeSource) OID() model.OID {
	if !s.positioned() {
		return model.InvalidOID
	}
	return s.srcs[s.cur].OID()
}

func (s *mergeSource) Object() any {
	if !s.positioned() {
		return nil
	}
	return s.srcs[s.cur].Object()
}

func (s *mergeSource) Err() error   { return s.err }
func (s *mergeSource) Close() error { return closeAll(s.srcs) }

func closeAll(srcs []source) error {
	var errs []error
	for _, src := range srcs {
		if err := src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
