package oodb

import (
	"log/slog"

	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/observability"
	"github.com/hupe1980/oodb/resource"
)

type options struct {
	codec            codec.Codec
	degree           int
	nodeCacheSize    int
	writeConcurrency int
	keepManifests    int
	metricsCollector MetricsCollector
	logger           *Logger
	observer         observability.Observer
	rc               *resource.Controller
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the codec used for object records of a new
// database. An existing database keeps the codec it was created with.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithDegree sets the B-tree degree of a new database.
func WithDegree(degree int) Option {
	return func(o *options) {
		o.degree = degree
	}
}

// WithNodeCacheSize sets how many decoded index nodes stay in memory.
func WithNodeCacheSize(n int) Option {
	return func(o *options) {
		o.nodeCacheSize = n
	}
}

// WithWriteConcurrency bounds the parallel record writes of a commit.
func WithWriteConcurrency(n int) Option {
	return func(o *options) {
		o.writeConcurrency = n
	}
}

// WithKeepManifests sets how many old manifests Vacuum keeps.
func WithKeepManifests(n int) Option {
	return func(o *options) {
		o.keepManifests = n
	}
}

// WithMetricsCollector sets a custom metrics collector for monitoring.
// Use this to integrate with Prometheus or other monitoring tools.
//
// Example:
//
//	collector := &oodb.BasicMetricsCollector{}
//	db, err := oodb.Open(ctx, store, oodb.WithMetricsCollector(collector))
//	// ... use db ...
//	stats := collector.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger sets a structured logger for observability.
// Use NewJSONLogger or NewTextLogger to create a configured logger.
//
// Example:
//
//	logger := oodb.NewJSONLogger(slog.LevelInfo)
//	db, err := oodb.Open(ctx, store, oodb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel sets a text logger with the specified log level.
// This is a convenience function equivalent to WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithObserver receives session, commit, rollback, query and vacuum events.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithResourceController caps index cache memory and store IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		writeConcurrency: engine.DefaultWriteConcurrency,
		keepManifests:    engine.DefaultKeepManifests,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		observer:         observability.NoOpObserver{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

func (o *options) engineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithCodec(o.codec),
		engine.WithLogger(o.logger.Logger),
		engine.WithWriteConcurrency(o.writeConcurrency),
		engine.WithKeepManifests(o.keepManifests),
	}
	if o.degree > 0 {
		opts = append(opts, engine.WithDegree(o.degree))
	}
	if o.nodeCacheSize > 0 {
		opts = append(opts, engine.WithNodeCacheSize(o.nodeCacheSize))
	}
	if o.rc != nil {
		opts = append(opts, engine.WithResourceController(o.rc))
	}
	return opts
}
