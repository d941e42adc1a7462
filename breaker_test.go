package inflight

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, cfg BreakerConfig) *Breaker {
	t.Helper()
	if cfg.Coalescer == nil {
		cfg.Coalescer = New()
	}
	b, err := NewBreaker(cfg)
	require.NoError(t, err)
	return b
}

func TestNewBreakerRequiresCoalescer(t *testing.T) {
	_, err := NewBreaker(BreakerConfig{})
	assert.Error(t, err)
}

func TestBreakerPassesThroughWhenClosed(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{})

	v, err := b.Do(context.Background(), "key", func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	boom := errors.New("upstream down")
	for i := 0; i < 3; i++ {
		_, err := b.Do(context.Background(), fmt.Sprintf("key-%d", i), func() (any, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, BreakerOpen, b.State())

	_, err := b.Do(context.Background(), "key-next", func() (any, error) {
		t.Error("producer must not run while the circuit is open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Millisecond,
	})

	boom := errors.New("flaky")
	for i := 0; i < 2; i++ {
		_, _ = b.Do(context.Background(), fmt.Sprintf("key-%d", i), func() (any, error) {
			return nil, boom
		})
	}
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	// First probe moves the circuit to half-open; two successes close it.
	for i := 0; i < 2; i++ {
		v, err := b.Do(context.Background(), fmt.Sprintf("probe-%d", i), func() (any, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", v)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         30 * time.Millisecond,
	})

	boom := errors.New("still down")
	for i := 0; i < 2; i++ {
		_, _ = b.Do(context.Background(), fmt.Sprintf("key-%d", i), func() (any, error) {
			return nil, boom
		})
	}
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	_, err := b.Do(context.Background(), "probe", func() (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerPerKeyIsolation(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	boom := errors.New("bad key")
	// Interleave successes on the healthy key so the global failure count
	// keeps resetting while "bad" accumulates strikes.
	for i := 0; i < 3; i++ {
		_, err := b.Do(context.Background(), "bad", func() (any, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)

		_, err = b.Do(context.Background(), "good", func() (any, error) {
			return "fine", nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.KeyOpen("bad"))
	assert.False(t, b.KeyOpen("good"))

	_, err := b.Do(context.Background(), "bad", func() (any, error) {
		t.Error("producer must not run for an open key")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)

	v, err := b.Do(context.Background(), "good", func() (any, error) {
		return "fine", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", v)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := newTestBreaker(t, BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	})

	for i := 0; i < 5; i++ {
		_, err := b.Do(context.Background(), "key", func() (any, error) {
			return nil, context.Canceled
		})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, BreakerClosed, b.State(), "cancellations must not trip the circuit")
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(99).String())
}
