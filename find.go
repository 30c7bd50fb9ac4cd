package oodb

import (
	"context"
	"reflect"
	"slices"
	"time"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/model"
	"github.com/hupe1980/oodb/query"
)

// sessionStorage reads committed extents from the session view and
// objects through the session, so results share the identity cache.
type sessionStorage struct{ s *Session }

func (st sessionStorage) Extent(ctx context.Context, class model.ClassID, order btree.Order) query.Cursor {
	return st.s.view.Extent(ctx, class, order)
}

func (st sessionStorage) Load(ctx context.Context, oid model.OID) (any, error) {
	return st.s.Get(ctx, oid)
}

// sessionOverlay exposes the staged transaction to queries.
type sessionOverlay struct{ s *Session }

func (o sessionOverlay) Staged(class model.ClassID) []model.OID {
	tx := o.s.tx
	if tx == nil {
		return nil
	}
	var out []model.OID
	for oid, p := range tx.writes {
		if p.base == 0 && p.class.ID == class {
			out = append(out, oid)
		}
	}
	slices.Sort(out)
	return out
}

func (o sessionOverlay) Deleted(oid model.OID) bool {
	if o.s.tx == nil {
		return false
	}
	_, ok := o.s.tx.deletes[oid]
	return ok
}

// Query returns an executor for q bound to the session. Results include
// the objects the session staged and skip the ones it deleted.
func (s *Session) Query(q *query.Query) *query.MultiClassExecutor {
	return query.NewMultiClassExecutor(sessionStorage{s}, s.db.registry, q,
		query.WithOverlay(sessionOverlay{s}),
		query.WithObserver(s.db.opts.observer),
		query.WithHooks(query.Hooks{
			End: func(ctx context.Context, q *query.Query, st query.Stats) {
				s.db.opts.metricsCollector.RecordQuery(st.Classes, st.Results, st.Duration, st.Err)
				s.logger.LogQuery(ctx, q.Class.Name, st.Classes, st.Results, st.Duration, st.Err)
			},
		}),
	)
}

// Execute runs q and returns the result iterator.
func (s *Session) Execute(ctx context.Context, q *query.Query) (*query.Iterator, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.tx == nil {
		s.state = StateReading
	}
	return s.Query(q).Execute(ctx)
}

// Find returns the stored instances of T, in OID order, for which where
// returns true. A nil where selects all of them. Subclasses are not
// included.
func Find[T any](ctx context.Context, s *Session, where func(*T) bool) ([]*T, error) {
	ci, err := s.db.registry.ClassInfo(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	q := &query.Query{Class: ci, Order: btree.Ascending}
	if where != nil {
		q.Where = query.PredicateFunc(func(obj any) bool {
			t, ok := obj.(*T)
			return ok && where(t)
		})
	}

	start := time.Now()
	it, err := s.Execute(ctx, q)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*T
	for it.Next() {
		if t, ok := it.Object().(*T); ok {
			out = append(out, t)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("find", "class", ci.Name, "results", len(out), "duration", time.Since(start))
	return out, nil
}
