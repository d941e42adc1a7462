package inflight

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String renders the state for logs and metrics labels.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker short-circuits a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Coalescer is the wrapped instance. Required.
	Coalescer *Coalescer

	// FailureThreshold is the consecutive failures before opening the
	// global circuit or a per-key circuit.
	FailureThreshold int32

	// SuccessThreshold is the successes required in half-open before the
	// global circuit closes again.
	SuccessThreshold int32

	// Cooldown is how long an open circuit rejects before probing
	// half-open.
	Cooldown time.Duration

	// MaxHalfOpenReqs bounds concurrent probes in half-open state.
	MaxHalfOpenReqs int32

	// MaxTrackedKeys caps the per-key breaker LRU.
	MaxTrackedKeys int
}

// Breaker layers circuit-breaking over a Coalescer: a flapping upstream is
// rejected fast instead of piling callers onto producers that keep
// failing. One global circuit plus per-key circuits, the per-key set
// bounded by an LRU.
type Breaker struct {
	co *Coalescer

	failureThreshold int32
	successThreshold int32
	cooldown         time.Duration
	maxHalfOpenReqs  int32

	state            atomic.Int32
	failures         atomic.Int32
	successes        atomic.Int32
	lastFailureTime  atomic.Int64 // unix nanos
	halfOpenRequests atomic.Int32

	keyStates *lru.Cache[string, *keyBreakerState]
}

type keyBreakerState struct {
	failures        atomic.Int32
	lastFailureTime atomic.Int64
}

// NewBreaker constructs a Breaker around cfg.Coalescer.
func NewBreaker(cfg BreakerConfig) (*Breaker, error) {
	if cfg.Coalescer == nil {
		return nil, errors.New("coalescer cannot be nil")
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxHalfOpenReqs == 0 {
		cfg.MaxHalfOpenReqs = 3
	}
	if cfg.MaxTrackedKeys == 0 {
		cfg.MaxTrackedKeys = 10000
	}

	keyStates, err := lru.New[string, *keyBreakerState](cfg.MaxTrackedKeys)
	if err != nil {
		return nil, err
	}

	return &Breaker{
		co:               cfg.Coalescer,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		maxHalfOpenReqs:  cfg.MaxHalfOpenReqs,
		keyStates:        keyStates,
	}, nil
}

// Do wraps Coalescer.Do with circuit-breaker checks. A rejected call
// returns ErrCircuitOpen without touching the registry or the producer.
func (b *Breaker) Do(ctx context.Context, key string, producer Producer) (any, error) {
	if !b.canExecute() {
		return nil, ErrCircuitOpen
	}
	if !b.canExecuteKey(key) {
		return nil, ErrCircuitOpen
	}

	if b.getState() == BreakerHalfOpen {
		if b.halfOpenRequests.Add(1) > b.maxHalfOpenReqs {
			b.halfOpenRequests.Add(-1)
			return nil, ErrCircuitOpen
		}
		defer b.halfOpenRequests.Add(-1)
	}

	v, err := b.co.Do(ctx, key, producer)

	// A caller-side cancellation says nothing about upstream health.
	switch {
	case err == nil:
		b.recordSuccess(key)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		b.recordFailure(key)
	}

	return v, err
}

// State returns the global circuit state.
func (b *Breaker) State() BreakerState {
	return b.getState()
}

// KeyOpen reports whether key's own circuit is currently rejecting.
func (b *Breaker) KeyOpen(key string) bool {
	return !b.canExecuteKey(key)
}

func (b *Breaker) getState() BreakerState {
	return BreakerState(b.state.Load())
}

func (b *Breaker) setState(s BreakerState) {
	b.state.Store(int32(s))
}

func (b *Breaker) canExecute() bool {
	switch b.getState() {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(time.Unix(0, b.lastFailureTime.Load())) > b.cooldown {
			b.setState(BreakerHalfOpen)
			b.successes.Store(0)
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

func (b *Breaker) canExecuteKey(key string) bool {
	st, ok := b.keyStates.Get(key)
	if !ok {
		return true
	}

	if st.failures.Load() >= b.failureThreshold {
		if time.Since(time.Unix(0, st.lastFailureTime.Load())) > b.cooldown {
			st.failures.Store(0)
			return true
		}
		return false
	}
	return true
}

func (b *Breaker) recordFailure(key string) {
	failures := b.failures.Add(1)
	b.lastFailureTime.Store(time.Now().UnixNano())

	switch state := b.getState(); {
	case state == BreakerClosed && failures >= b.failureThreshold:
		b.setState(BreakerOpen)
	case state == BreakerHalfOpen:
		b.setState(BreakerOpen)
		b.failures.Store(0)
	}

	st, ok := b.keyStates.Get(key)
	if !ok {
		st = &keyBreakerState{}
		b.keyStates.Add(key, st)
	}
	st.failures.Add(1)
	st.lastFailureTime.Store(time.Now().UnixNano())
}

func (b *Breaker) recordSuccess(key string) {
	if st, ok := b.keyStates.Get(key); ok {
		st.failures.Store(0)
	}

	switch b.getState() {
	case BreakerHalfOpen:
		if b.successes.Add(1) >= b.successThreshold {
			b.setState(BreakerClosed)
			b.failures.Store(0)
			b.successes.Store(0)
		}
	case BreakerClosed:
		b.failures.Store(0)
	}
}
