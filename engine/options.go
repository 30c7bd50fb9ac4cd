package engine

import (
	"log/slog"

	"github.com/hupe1980/oodb/codec"
	"github.com/hupe1980/oodb/resource"
)

const (
	// DefaultWriteConcurrency bounds parallel record writes of a commit.
	DefaultWriteConcurrency = 8
	// DefaultKeepManifests is the number of manifests Vacuum retains.
	DefaultKeepManifests = 2
)

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithResourceController bounds the memory of the node caches.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
	}
}

// WithCodec sets the record codec of a new database. Existing databases
// keep the codec recorded in their manifest.
func WithCodec(c codec.Codec) Option {
	return func(e *Engine) {
		if c != nil {
			e.codec = c
		}
	}
}

// WithDegree sets the B-tree order of a new database.
func WithDegree(degree int) Option {
	return func(e *Engine) {
		e.degree = degree
	}
}

// WithNodeCacheSize sets the number of decoded nodes cached per tree.
func WithNodeCacheSize(n int) Option {
	return func(e *Engine) {
		e.nodeCacheSize = n
	}
}

// WithWriteConcurrency bounds the record writes of a commit in flight.
func WithWriteConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.writeConcurrency = n
		}
	}
}

// WithKeepManifests sets how many recent manifests Vacuum keeps.
func WithKeepManifests(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.keepManifests = n
		}
	}
}
