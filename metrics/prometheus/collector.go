// Package prometheus exports database metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/oodb"
)

var _ oodb.MetricsCollector = (*Collector)(nil)

// Collector implements oodb.MetricsCollector with Prometheus metrics.
type Collector struct {
	latency   *prometheus.HistogramVec
	objects   *prometheus.CounterVec
	rollbacks prometheus.Counter
	results   prometheus.Counter
	classes   prometheus.Histogram
}

// New creates a Collector and registers its metrics with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of database operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_total",
			Help:      "Objects written, discarded or loaded",
		}, []string{"op"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Transactions rolled back",
		}),
		results: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_results_total",
			Help:      "Objects returned by queries",
		}),
		classes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_classes",
			Help:      "Classes scanned per query",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
	}
	for _, m := range []prometheus.Collector{c.latency, c.objects, c.rollbacks, c.results, c.classes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordCommit(objects int, d time.Duration, err error) {
	c.latency.WithLabelValues("commit", status(err)).Observe(d.Seconds())
	if err == nil {
		c.objects.WithLabelValues("commit").Add(float64(objects))
	}
}

func (c *Collector) RecordRollback(objects int) {
	c.rollbacks.Inc()
	c.objects.WithLabelValues("rollback").Add(float64(objects))
}

func (c *Collector) RecordQuery(classes, results int, d time.Duration, err error) {
	c.latency.WithLabelValues("query", status(err)).Observe(d.Seconds())
	c.classes.Observe(float64(classes))
	c.results.Add(float64(results))
}

func (c *Collector) RecordLoad(objects int, d time.Duration, err error) {
	c.latency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	c.objects.WithLabelValues("load").Add(float64(objects))
}
