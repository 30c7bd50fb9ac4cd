package query

import (
	"context"

	"github.com/hupe1980/oodb/btree"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/model"
)

// Executor runs a query.
type Executor interface {
	// SetClassInfo scopes the executor to ci.
	SetClassInfo(ci *meta.ClassInfo)
	// SetExecuteStartAndEndOfQueryAction toggles the start and end actions
	// (events and hooks). Nested executions disable them so they fire once.
	SetExecuteStartAndEndOfQueryAction(enabled bool)
	StorageEngine() StorageEngine
	Query() *Query
	Execute(ctx context.Context) (*Iterator, error)
}

var (
	_ Executor = (*SingleClassExecutor)(nil)
	_ Executor = (*MultiClassExecutor)(nil)
)

// SingleClassExecutor scans the extent of one class.
type SingleClassExecutor struct {
	storage StorageEngine
	query   *Query
	class   *meta.ClassInfo
	actions bool
	opts    options
}

// NewSingleClassExecutor returns an executor for q.Class. Polymorphic is
// ignored; use a MultiClassExecutor for class hierarchies.
func NewSingleClassExecutor(storage StorageEngine, q *Query, opts ...Option) *SingleClassExecutor {
	return &SingleClassExecutor{
		storage: storage,
		query:   q,
		class:   q.Class,
		actions: true,
		opts:    newOptions(opts),
	}
}

func (e *SingleClassExecutor) SetClassInfo(ci *meta.ClassInfo) { e.class = ci }

func (e *SingleClassExecutor) SetExecuteStartAndEndOfQueryAction(enabled bool) {
	e.actions = enabled
}

func (e *SingleClassExecutor) StorageEngine() StorageEngine { return e.storage }

func (e *SingleClassExecutor) Query() *Query { return e.query }

// ClassInfo returns the class the executor scans.
func (e *SingleClassExecutor) ClassInfo() *meta.ClassInfo { return e.class }

// Execute starts the scan.
func (e *SingleClassExecutor) Execute(ctx context.Context) (*Iterator, error) {
	if e.class == nil {
		return nil, ErrNoClass
	}
	var finish func(int, error)
	if e.actions {
		finish = e.opts.begin(ctx, e.query, 1)
	}
	return newIterator(e.source(ctx), e.query.Limit, false, finish), nil
}

func (e *SingleClassExecutor) source(ctx context.Context) *classSource {
	s := &classSource{
		ctx:     ctx,
		storage: e.storage,
		overlay: e.opts.overlay,
		query:   e.query,
		cursor:  e.storage.Extent(ctx, e.class.ID, e.query.Order),
	}
	if e.opts.overlay != nil {
		s.staged = stagedInOrder(e.opts.overlay.Staged(e.class.ID), e.query)
	}
	return s
}

func stagedInOrder(staged []model.OID, q *Query) []model.OID {
	out := make([]model.OID, 0, len(staged))
	if q.Order == btree.Ascending {
		return append(out, staged...)
	}
	for i := len(staged) - 1; i >= 0; i-- {
		out = append(out, staged[i])
	}
	return out
}

// MultiClassExecutor runs a query over a class and, when polymorphic, all
// of its subclasses.
type MultiClassExecutor struct {
	storage StorageEngine
	meta    Metamodel
	query   *Query
	class   *meta.ClassInfo
	actions bool
	opts    options
	rawOpts []Option
}

// NewMultiClassExecutor returns an executor for q.
func NewMultiClassExecutor(storage StorageEngine, mm Metamodel, q *Query, opts ...Option) *MultiClassExecutor {
	return &MultiClassExecutor{
		storage: storage,
		meta:    mm,
		query:   q,
		class:   q.Class,
		actions: true,
		opts:    newOptions(opts),
		rawOpts: opts,
	}
}

func (e *MultiClassExecutor) SetClassInfo(ci *meta.ClassInfo) { e.class = ci }

func (e *MultiClassExecutor) SetExecuteStartAndEndOfQueryAction(enabled bool) {
	e.actions = enabled
}

func (e *MultiClassExecutor) StorageEngine() StorageEngine { return e.storage }

func (e *MultiClassExecutor) Query() *Query { return e.query }

// Classes returns the classes an execution scans, the scoped class first.
func (e *MultiClassExecutor) Classes() []*meta.ClassInfo {
	if e.class == nil {
		return nil
	}
	classes := []*meta.ClassInfo{e.class}
	if e.query.Polymorphic && e.meta != nil {
		classes = append(classes, e.meta.Subclasses(e.class)...)
	}
	return classes
}

// Execute starts one scan per class and merges them.
func (e *MultiClassExecutor) Execute(ctx context.Context) (*Iterator, error) {
	classes := e.Classes()
	if len(classes) == 0 {
		return nil, ErrNoClass
	}

	// Children apply the predicate; the limit applies to the merged result.
	child := *e.query
	child.Limit = 0

	srcs := make([]source, 0, len(classes))
	for _, ci := range classes {
		sub := NewSingleClassExecutor(e.storage, &child, e.rawOpts...)
		sub.SetClassInfo(ci)
		sub.SetExecuteStartAndEndOfQueryAction(false)
		it, err := sub.Execute(ctx)
		if err != nil {
			_ = closeAll(srcs)
			return nil, err
		}
		srcs = append(srcs, it)
	}

	var finish func(int, error)
	if e.actions {
		finish = e.opts.begin(ctx, e.query, len(classes))
	}

	var src source
	switch {
	case len(srcs) == 1:
		src = srcs[0]
	case e.query.Ordered:
		src = &mergeSource{srcs: srcs, desc: e.query.Order == btree.Descending}
	default:
		src = &concatSource{srcs: srcs}
	}
	return newIterator(src, e.query.Limit, len(srcs) > 1, finish), nil
}
