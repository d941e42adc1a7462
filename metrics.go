package inflight

import "time"

// Metrics is the observability hook for coalescing activity. Methods must
// be fast and non-blocking; they run on the caller's hot path.
type Metrics interface {
	// RecordStart tracks a producer invocation for key (a leader call).
	RecordStart(key string)

	// RecordJoin tracks a caller attaching to an already in-flight key.
	RecordJoin(key string)

	// RecordError tracks a failed producer invocation.
	RecordError(key string, err error)

	// RecordLatency tracks how long a producer invocation took.
	RecordLatency(key string, duration time.Duration)

	// RecordInvalidate tracks entries detached by Invalidate, Forget or
	// Clear.
	RecordInvalidate(removed int)
}

// NoOpMetrics discards all measurements. Default collector.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordStart(key string)                           {}
func (NoOpMetrics) RecordJoin(key string)                            {}
func (NoOpMetrics) RecordError(key string, err error)                {}
func (NoOpMetrics) RecordLatency(key string, duration time.Duration) {}
func (NoOpMetrics) RecordInvalidate(removed int)                     {}
