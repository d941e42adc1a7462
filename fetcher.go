package inflight

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LoadFunc fetches fresh data from the upstream source (a remote API, a
// database query). Same contract as Producer: idempotent-safe, shared
// across coalesced callers.
type LoadFunc func() (any, error)

// Fetcher is the read path the coalescer was built for: a deduplicated
// read-through layer over an upstream loader. Lookup order is a short-TTL
// in-memory LRU, then the optional persistent Store tier, then a coalesced
// load. Mutations invalidate by key pattern; logout resets everything.
type Fetcher struct {
	co         *Coalescer
	lru        *expirable.LRU[string, *Entry]
	store      Store
	serializer Serializer
	logger     Logger
	metrics    Metrics

	ttl     time.Duration
	lruSize int
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetcherTTL sets how long fetched entries stay fresh. Default 30s.
func WithFetcherTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// WithFetcherSize caps the in-memory LRU. Default 1024 entries.
func WithFetcherSize(size int) FetcherOption {
	return func(f *Fetcher) {
		if size > 0 {
			f.lruSize = size
		}
	}
}

// WithFetcherStore adds a persistent tier consulted on LRU misses and
// populated on loads.
func WithFetcherStore(s Store) FetcherOption {
	return func(f *Fetcher) {
		f.store = s
	}
}

// WithFetcherSerializer overrides the default JSON serializer.
func WithFetcherSerializer(s Serializer) FetcherOption {
	return func(f *Fetcher) {
		if s != nil {
			f.serializer = s
		}
	}
}

// WithFetcherLogger sets the structured logger.
func WithFetcherLogger(l Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFetcherMetrics sets the metrics collector, shared with the inner
// coalescer.
func WithFetcherMetrics(m Metrics) FetcherOption {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// NewFetcher constructs a Fetcher with its own Coalescer.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		serializer: &JSONSerializer{},
		logger:     NewNoOpLogger(),
		metrics:    &NoOpMetrics{},
		ttl:        30 * time.Second,
		lruSize:    1024,
	}
	for _, o := range opts {
		o(f)
	}
	f.logger = f.logger.Named("fetcher")
	f.co = New(WithLogger(f.logger), WithMetrics(f.metrics))
	f.lru = expirable.NewLRU[string, *Entry](f.lruSize, nil, f.ttl)

	f.logger.Info("fetcher initialised",
		Duration("ttl", f.ttl),
		Int("lru_size", f.lruSize))
	return f
}

// Coalescer exposes the inner coalescer for callers that need Do/DoChan
// directly alongside cached reads.
func (f *Fetcher) Coalescer() *Coalescer {
	return f.co
}

// Get resolves key into out. A fresh cached entry is decoded straight into
// out; otherwise load runs, coalesced with every concurrent Get for the
// same key, and its serialized result populates both tiers.
//
// Errors from load propagate unchanged. A store write failure is logged
// and swallowed: the caller still gets the loaded value.
func (f *Fetcher) Get(ctx context.Context, key string, out any, load LoadFunc) error {
	if key == "" {
		return ErrEmptyKey
	}

	if ent, ok := f.lru.Get(key); ok && !ent.IsExpired() {
		f.logger.Debug("memory hit", String("key", key))
		return f.serializer.Unmarshal(ent.Value, out)
	}

	if f.store != nil {
		ent, err := f.store.Get(ctx, key)
		switch {
		case err == nil && ent != nil && !ent.IsExpired():
			f.logger.Debug("store hit", String("key", key))
			f.lru.Add(key, ent)
			return f.serializer.Unmarshal(ent.Value, out)
		case err != nil && !errors.Is(err, ErrNotFound):
			f.logger.Warn("store read failed", String("key", key), Error(err))
		}
	}

	v, err := f.co.Do(ctx, key, func() (any, error) {
		raw, err := load()
		if err != nil {
			return nil, err
		}

		data, err := f.serializer.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("serialize %q: %w", key, err)
		}

		ent := NewEntry(key, data, f.ttl)
		f.lru.Add(key, ent)
		if f.store != nil {
			if serr := f.store.Set(ctx, key, ent); serr != nil {
				f.logger.Warn("store write failed",
					String("key", key),
					Int("entry_size_bytes", len(data)),
					Error(serr))
			}
		}

		// Hand the serialized form to every joined caller; each decodes
		// into its own destination.
		return data, nil
	})
	if err != nil {
		return err
	}

	data, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("unexpected coalesced value type %T for %q", v, key)
	}
	return f.serializer.Unmarshal(data, out)
}

// Invalidate drops every cached entry whose key matches pattern and
// detaches matching pending loads so the next Get refetches. Returns the
// number of cached entries dropped.
//
// Store deletes cover the keys visible in the memory tier; anything else
// in the store ages out by TTL.
func (f *Fetcher) Invalidate(ctx context.Context, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid invalidation pattern %q: %w", pattern, err)
	}

	dropped := 0
	for _, key := range f.lru.Keys() {
		if !re.MatchString(key) {
			continue
		}
		if f.store != nil {
			if derr := f.store.Delete(ctx, key); derr != nil {
				f.logger.Warn("store delete failed", String("key", key), Error(derr))
			}
		}
		f.lru.Remove(key)
		dropped++
	}

	detached := f.co.InvalidateRegexp(re)

	f.logger.Debug("invalidated",
		String("pattern", pattern),
		Int("dropped", dropped),
		Int("detached", detached))
	return dropped, nil
}

// Reset empties the memory tier and the coalescer registry. Used on
// lifecycle boundaries such as logout. Store entries are left to their
// TTLs.
func (f *Fetcher) Reset() {
	f.lru.Purge()
	cleared := f.co.Clear()
	f.logger.Info("fetcher reset", Int("pending_cleared", cleared))
}
