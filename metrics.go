package oodb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus (see package metrics/prometheus).
type MetricsCollector interface {
	// RecordCommit is called after each commit attempt. objects is the
	// number of written and deleted objects, err is nil if successful.
	RecordCommit(objects int, duration time.Duration, err error)

	// RecordRollback is called after each rollback. objects is the number
	// of discarded staged changes.
	RecordRollback(objects int)

	// RecordQuery is called after each query once its iterator is
	// exhausted or closed.
	RecordQuery(classes, results int, duration time.Duration, err error)

	// RecordLoad is called after an object graph was read from storage.
	// objects is the number of objects materialized.
	RecordLoad(objects int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordRollback(int)                         {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitObjects    atomic.Int64
	CommitTotalNanos atomic.Int64
	RollbackCount    atomic.Int64
	RollbackObjects  atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryResults     atomic.Int64
	QueryTotalNanos  atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadObjects      atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(objects int, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitObjects.Add(int64(objects))
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(objects int) {
	b.RollbackCount.Add(1)
	b.RollbackObjects.Add(int64(objects))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(classes, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	b.QueryResults.Add(int64(results))
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(objects int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadObjects.Add(int64(objects))
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:     b.CommitCount.Load(),
		CommitErrors:    b.CommitErrors.Load(),
		CommitObjects:   b.CommitObjects.Load(),
		CommitAvgNanos:  avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		RollbackCount:   b.RollbackCount.Load(),
		RollbackObjects: b.RollbackObjects.Load(),
		QueryCount:      b.QueryCount.Load(),
		QueryErrors:     b.QueryErrors.Load(),
		QueryResults:    b.QueryResults.Load(),
		QueryAvgNanos:   avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		LoadCount:       b.LoadCount.Load(),
		LoadErrors:      b.LoadErrors.Load(),
		LoadObjects:     b.LoadObjects.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount     int64
	CommitErrors    int64
	CommitObjects   int64
	CommitAvgNanos  int64
	RollbackCount   int64
	RollbackObjects int64
	QueryCount      int64
	QueryErrors     int64
	QueryResults    int64
	QueryAvgNanos   int64
	LoadCount       int64
	LoadErrors      int64
	LoadObjects     int64
}
