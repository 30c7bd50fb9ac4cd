package query

import (
	"context"
	"time"

	"github.com/hupe1980/oodb/observability"
)

// Stats summarizes one execution. It is passed to Hooks.End.
type Stats struct {
	Classes  int
	Results  int
	Duration time.Duration
	Err      error
}

// Hooks are called around an execution when start and end actions are
// enabled. End runs once, when the iterator is exhausted, fails or is
// closed.
type Hooks struct {
	Start func(ctx context.Context, q *Query)
	End   func(ctx context.Context, q *Query, s Stats)
}

// Option configures an executor.
type Option func(*options)

type options struct {
	observer observability.Observer
	overlay  Overlay
	hooks    Hooks
}

// WithObserver sends query.start and query.end events to o.
func WithObserver(o observability.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithOverlay merges the staged changes of a session into the results.
func WithOverlay(o Overlay) Option {
	return func(opts *options) { opts.overlay = o }
}

// WithHooks registers start and end callbacks.
func WithHooks(h Hooks) Option {
	return func(opts *options) { opts.hooks = h }
}

func newOptions(opts []Option) options {
	o := options{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// begin fires the start actions and returns the matching end action.
func (o *options) begin(ctx context.Context, q *Query, classes int) func(n int, err error) {
	start := time.Now()
	o.observer.OnEvent(ctx, observability.NewEvent(observability.EventQueryStart, "query", map[string]any{
		"query":   q.String(),
		"classes": classes,
	}))
	if o.hooks.Start != nil {
		o.hooks.Start(ctx, q)
	}

	return func(n int, err error) {
		s := Stats{Classes: classes, Results: n, Duration: time.Since(start), Err: err}
		ev := observability.NewEvent(observability.EventQueryEnd, "query", map[string]any{
			"query":    q.String(),
			"classes":  classes,
			"results":  n,
			"duration": s.Duration,
		})
		if err != nil {
			ev.Level = observability.LevelError
			ev.Data["error"] = err.Error()
		}
		o.observer.OnEvent(ctx, ev)
		if o.hooks.End != nil {
			o.hooks.End(ctx, q, s)
		}
	}
}
