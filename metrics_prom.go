package inflight

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics exports coalescing activity as Prometheus metrics. All
// underlying metric types are goroutine-safe.
//
// Keys are deliberately not used as labels: they embed user ids and
// parameter hashes, which would blow up cardinality.
type PromMetrics struct {
	starts      prometheus.Counter
	joins       prometheus.Counter
	errors      prometheus.Counter
	invalidated prometheus.Counter
	latency     prometheus.Histogram
}

var _ Metrics = (*PromMetrics)(nil)

// NewPromMetrics constructs and registers the collector.
//   - reg: registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub: Prometheus namespace and subsystem
func NewPromMetrics(reg prometheus.Registerer, ns, sub string) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PromMetrics{
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "producer_starts_total",
			Help:      "Producer invocations (leader calls)",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "joins_total",
			Help:      "Callers attached to an already in-flight key",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "producer_errors_total",
			Help:      "Failed producer invocations",
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "invalidated_total",
			Help:      "Pending entries detached by invalidation",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "producer_duration_seconds",
			Help:      "Producer invocation latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.starts, m.joins, m.errors, m.invalidated, m.latency)
	return m
}

func (m *PromMetrics) RecordStart(key string)            { m.starts.Inc() }
func (m *PromMetrics) RecordJoin(key string)             { m.joins.Inc() }
func (m *PromMetrics) RecordError(key string, err error) { m.errors.Inc() }

func (m *PromMetrics) RecordLatency(key string, duration time.Duration) {
	m.latency.Observe(duration.Seconds())
}

func (m *PromMetrics) RecordInvalidate(removed int) {
	m.invalidated.Add(float64(removed))
}
