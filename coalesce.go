// package inflight coalesces concurrent requests for the same logical
// operation into a single producer invocation.
//
// Key Design Points
// -----------------
// • At most one producer call per key at any instant; every concurrent
//   caller for that key shares the one outcome, value or error.
// • Pure coalescer, not a cache: the registry entry is dropped the moment
//   the producer settles, so a later call always runs a fresh producer.
// • Pattern invalidation detaches pending keys from the registry without
//   cancelling the running producer; callers already attached still
//   receive the original outcome.
//

package inflight

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// ErrEmptyKey is returned when a coalescing key is the empty string.
var ErrEmptyKey = errors.New("coalescing key cannot be empty")

// Producer is the user-supplied function that fetches the value for a key.
// It must be idempotent-safe: its single result is handed to every caller
// joined on the key. Panics inside the producer are recovered and returned
// as errors.
type Producer func() (any, error)

// Result carries the outcome of a DoChan call.
type Result struct {
	Val any
	Err error

	// Shared reports whether the outcome was delivered to more than one
	// caller.
	Shared bool
}

//--------------------------------------------------
// Configuration
//--------------------------------------------------

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithLogger sets the structured logger. Defaults to NoOpLogger.
func WithLogger(l Logger) Option {
	return func(c *Coalescer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m Metrics) Option {
	return func(c *Coalescer) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithProducerTimeout bounds each producer invocation. Zero disables the
// bound; the leader then blocks for as long as the producer runs.
func WithProducerTimeout(timeout time.Duration) Option {
	return func(c *Coalescer) {
		if timeout > 0 {
			c.producerTimeout = timeout
		}
	}
}

//--------------------------------------------------
// Coalescer
//--------------------------------------------------

// call is one in-flight producer invocation. val and err are published
// before done is closed, so any read after <-done observes the final
// outcome.
type call struct {
	done  chan struct{}
	val   any
	err   error
	joins int // guarded by Coalescer.mu
}

// Coalescer is a keyed registry of in-flight calls. All methods are
// goroutine-safe. The zero value is not usable; construct with New.
//
// Each component that needs coalescing should own its own instance rather
// than share ambient global state.
type Coalescer struct {
	mu    sync.Mutex
	calls map[string]*call

	logger          Logger
	metrics         Metrics
	producerTimeout time.Duration
}

// New constructs a Coalescer with an empty registry.
func New(opts ...Option) *Coalescer {
	c := &Coalescer{
		calls:   make(map[string]*call),
		logger:  NewNoOpLogger(),
		metrics: &NoOpMetrics{},
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.Named("coalescer")
	return c
}

// Do returns the value for key, invoking producer at most once across all
// concurrent callers of the same key.
//
// If key already has a pending call the caller joins it and waits for the
// shared outcome; producer is not invoked. Otherwise the caller becomes
// the leader, registers the call, and runs producer in its own goroutine.
//
// ctx governs only this caller's wait: a joined caller whose ctx is
// cancelled unblocks with ctx.Err() while the leader keeps running. The
// producer itself is never cancelled out from under other waiters.
//
// Producer errors propagate unchanged to every sharing caller. The
// registry entry is removed on settle, success or failure, before waiters
// are woken, so an immediate retry always runs a fresh producer.
func (c *Coalescer) Do(ctx context.Context, key string, producer Producer) (any, error) {
	v, err, _ := c.do(ctx, key, producer)
	return v, err
}

// DoChan is the asynchronous variant of Do. The returned channel is
// buffered and receives exactly one Result.
func (c *Coalescer) DoChan(ctx context.Context, key string, producer Producer) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		v, err, shared := c.do(ctx, key, producer)
		ch <- Result{Val: v, Err: err, Shared: shared}
	}()
	return ch
}

func (c *Coalescer) do(ctx context.Context, key string, producer Producer) (any, error, bool) {
	if key == "" {
		return nil, ErrEmptyKey, false
	}

	c.mu.Lock()
	if cl, ok := c.calls[key]; ok {
		cl.joins++
		c.mu.Unlock()

		c.metrics.RecordJoin(key)
		c.logger.Debug("joined in-flight call", String("key", key))

		select {
		case <-cl.done:
			return cl.val, cl.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}

	// Leader path: register before releasing the lock so no concurrent
	// caller can start a second producer for this key.
	cl := &call{done: make(chan struct{})}
	c.calls[key] = cl
	c.mu.Unlock()

	c.metrics.RecordStart(key)
	start := time.Now()

	cl.val, cl.err = c.runProducer(key, producer)

	c.metrics.RecordLatency(key, time.Since(start))
	if cl.err != nil {
		c.metrics.RecordError(key, cl.err)
	}

	shared := c.settle(key, cl)
	return cl.val, cl.err, shared
}

// settle removes the registry entry and then wakes the waiters. Deleting
// before the close guarantees that any caller admitted after the wake-up
// finds the key absent. The pointer comparison keeps this settle from
// clobbering a newer call registered after an Invalidate detached cl.
func (c *Coalescer) settle(key string, cl *call) bool {
	c.mu.Lock()
	if cur, ok := c.calls[key]; ok && cur == cl {
		delete(c.calls, key)
	}
	joins := cl.joins
	c.mu.Unlock()

	close(cl.done)
	return joins > 0
}

// runProducer executes the producer with panic recovery and, when
// configured, a time bound. A panicking or hung producer must never leave
// the key stuck registered.
func (c *Coalescer) runProducer(key string, producer Producer) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panic: %v", r)
			c.logger.Error("producer panicked",
				String("key", key),
				Any("panic", r),
				Stack(captureStack()))
		}
	}()

	if c.producerTimeout <= 0 {
		return producer()
	}

	type result struct {
		v   any
		err error
	}
	resCh := make(chan result, 1) // buffered: the send never blocks after a timeout

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{nil, fmt.Errorf("producer panic: %v", r)}
			}
		}()
		v, e := producer()
		resCh <- result{v, e}
	}()

	timer := time.NewTimer(c.producerTimeout)
	defer timer.Stop()

	select {
	case r := <-resCh:
		return r.v, r.err
	case <-timer.C:
		err = fmt.Errorf("producer timeout after %v", c.producerTimeout)
		c.logger.Warn("producer timed out",
			String("key", key),
			Duration("timeout", c.producerTimeout))
		return nil, err
	}
}

//--------------------------------------------------
// Invalidation and introspection
//--------------------------------------------------

// Invalidate detaches every pending key matching pattern from the registry
// and returns the number of entries removed. The pattern is compiled as a
// regular expression; a plain string therefore behaves as a substring
// match.
//
// Running producers are not cancelled: callers already attached to a
// detached key still receive its eventual outcome. Invalidation only stops
// future callers from joining it.
func (c *Coalescer) Invalidate(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid invalidation pattern %q: %w", pattern, err)
	}
	return c.InvalidateRegexp(re), nil
}

// InvalidateRegexp is Invalidate with a pre-compiled expression.
func (c *Coalescer) InvalidateRegexp(re *regexp.Regexp) int {
	c.mu.Lock()
	removed := 0
	for key := range c.calls {
		if re.MatchString(key) {
			delete(c.calls, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.metrics.RecordInvalidate(removed)
		c.logger.Debug("invalidated pending keys",
			String("pattern", re.String()),
			Int("removed", removed))
	}
	return removed
}

// Forget detaches a single pending key, if present. Same non-cancellation
// semantics as Invalidate.
func (c *Coalescer) Forget(key string) bool {
	c.mu.Lock()
	_, ok := c.calls[key]
	if ok {
		delete(c.calls, key)
	}
	c.mu.Unlock()

	if ok {
		c.metrics.RecordInvalidate(1)
	}
	return ok
}

// Clear unconditionally empties the registry and returns the number of
// entries dropped. Intended for lifecycle events such as logout.
func (c *Coalescer) Clear() int {
	c.mu.Lock()
	dropped := len(c.calls)
	c.calls = make(map[string]*call)
	c.mu.Unlock()

	if dropped > 0 {
		c.metrics.RecordInvalidate(dropped)
		c.logger.Debug("registry cleared", Int("dropped", dropped))
	}
	return dropped
}

// Len returns the number of pending entries.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Keys returns a snapshot of the pending keys, in no particular order.
func (c *Coalescer) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.calls))
	for key := range c.calls {
		keys = append(keys, key)
	}
	return keys
}
