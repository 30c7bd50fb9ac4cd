package oodb

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hupe1980/oodb/engine"
	"github.com/hupe1980/oodb/meta"
	"github.com/hupe1980/oodb/observability"
	"github.com/hupe1980/oodb/pagestore"
)

// DB is an embedded object database. It is safe for concurrent use; work
// against it through sessions.
type DB struct {
	engine   *engine.Engine
	registry *meta.Registry
	opts     options
	logger   *Logger
	sessions atomic.Int64
	closed   atomic.Bool
}

// Open opens the database kept in store, creating an empty one if store
// holds none.
func Open(ctx context.Context, store pagestore.Store, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	eng, err := engine.Open(ctx, store, o.engineOptions()...)
	if err != nil {
		return nil, err
	}
	return &DB{
		engine:   eng,
		registry: meta.NewRegistry(eng.Catalog()),
		opts:     o,
		logger:   o.logger,
	}, nil
}

// OpenLocal opens the database in dir on the local filesystem.
func OpenLocal(ctx context.Context, dir string, optFns ...Option) (*DB, error) {
	return Open(ctx, pagestore.NewLocalStore(dir), optFns...)
}

// OpenMemory opens an empty in-memory database.
func OpenMemory(ctx context.Context, optFns ...Option) (*DB, error) {
	return Open(ctx, pagestore.NewMemoryStore(), optFns...)
}

// Register introspects the classes of the given values up front. Values are
// pointers to structs, or reflect.Types of structs. Classes are also
// registered on first use; registering early makes sure records of
// subclasses can be read and polymorphic queries see every subclass.
func (db *DB) Register(values ...any) error {
	for _, v := range values {
		var err error
		if t, ok := v.(reflect.Type); ok {
			_, err = db.registry.ClassInfo(t)
		} else {
			_, err = db.registry.ClassInfoOf(v)
		}
		if err != nil {
			return fmt.Errorf("register %v: %w", v, err)
		}
	}
	return nil
}

// Registry returns the metamodel.
func (db *DB) Registry() *meta.Registry { return db.registry }

// Engine returns the storage engine.
func (db *DB) Engine() *engine.Engine { return db.engine }

// NewSession opens a session on the latest committed state.
func (db *DB) NewSession(ctx context.Context) (*Session, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	view, err := db.engine.Snapshot()
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	s := &Session{
		id:     id,
		db:     db,
		view:   view,
		cache:  newObjectCache(),
		tmp:    newTmpCache(),
		state:  StateOpen,
		logger: db.logger.WithSession(id.String()),
	}
	db.sessions.Add(1)
	db.emit(ctx, observability.EventSessionOpen, map[string]any{
		"session": id.String(),
		"commit":  view.Commit(),
	})
	return s, nil
}

// Vacuum deletes blobs no session can reach anymore.
func (db *DB) Vacuum(ctx context.Context) (engine.VacuumStats, error) {
	stats, err := db.engine.Vacuum(ctx)
	db.logger.LogVacuum(ctx, stats.PagesDeleted, stats.RecordsDeleted, err)
	data := map[string]any{
		"pages":     stats.PagesDeleted,
		"records":   stats.RecordsDeleted,
		"manifests": stats.ManifestsDeleted,
		"duration":  stats.Duration,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	db.emit(ctx, observability.EventVacuum, data)
	return stats, err
}

// Verify checks the consistency of the committed indexes.
func (db *DB) Verify(ctx context.Context, opts engine.VerifyOptions) (*engine.VerifyReport, error) {
	return db.engine.Verify(ctx, opts)
}

// Stats describes the database.
type Stats struct {
	engine.Stats
	Sessions int64
}

// Stats returns database statistics.
func (db *DB) Stats() Stats {
	return Stats{Stats: db.engine.Stats(), Sessions: db.sessions.Load()}
}

// Close closes the database. Open sessions fail afterwards.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if n := db.sessions.Load(); n > 0 {
		db.logger.Warn("closing database with open sessions", "sessions", n)
	}
	return db.engine.Close()
}

func (db *DB) emit(ctx context.Context, typ observability.EventType, data map[string]any) {
	ev := observability.NewEvent(typ, "oodb", data)
	if _, failed := data["error"]; failed {
		ev.Level = observability.LevelError
	}
	db.opts.observer.OnEvent(ctx, ev)
}
