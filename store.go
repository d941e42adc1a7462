package inflight

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key does not exist.
var ErrNotFound = errors.New("key not found in store")

// Store is the optional persistent tier behind a Fetcher. Implementations
// must be safe for concurrent use and respect ctx deadlines.
type Store interface {
	// Get returns the entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set persists an entry. Expiry is carried on the entry itself.
	Set(ctx context.Context, key string, entry *Entry) error

	// Delete removes a key. Idempotent.
	Delete(ctx context.Context, key string) error

	// Close releases resources. Safe to call more than once.
	Close() error
}

// Entry is a serialized fetch result with its expiry metadata. Timestamps
// are unix milliseconds.
type Entry struct {
	Key          string `json:"key"`
	Value        []byte `json:"value"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAfter int64  `json:"expires_after"`
}

// NewEntry builds an entry expiring ttl from now. A non-positive ttl means
// the entry never expires.
func NewEntry(key string, value []byte, ttl time.Duration) *Entry {
	now := time.Now().UnixMilli()
	e := &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
	}
	if ttl > 0 {
		e.ExpiresAfter = now + ttl.Milliseconds()
	}
	return e
}

// IsExpiredAt reports whether the entry is expired at the given unix-ms
// instant. Zero ExpiresAfter never expires.
func (e *Entry) IsExpiredAt(nowMs int64) bool {
	return e.ExpiresAfter != 0 && e.ExpiresAfter < nowMs
}

// IsExpired reports whether the entry is expired now.
func (e *Entry) IsExpired() bool {
	return e.IsExpiredAt(time.Now().UnixMilli())
}

// Clone returns an independent copy, so concurrent readers never share the
// Value slice with the cached original.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Value = bytes.Clone(e.Value)
	return &clone
}

// Marshal serializes the entry for storage.
func (e *Entry) Marshal() ([]byte, error) {
	return jsonFast.Marshal(e)
}

// Unmarshal deserializes stored bytes into the entry.
func (e *Entry) Unmarshal(data []byte) error {
	return jsonFast.Unmarshal(data, e)
}
