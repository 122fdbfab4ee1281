// Package cache implements cache-first resolution with stale-on-error fallback.
//
// Values are stored as a JSON envelope carrying the original store time, so
// staleness is judged against a per-call freshness window independently of the
// store's own TTL expiry.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Store abstracts the TTL-expiring key-value store backing the cache.
// Implementations must return (nil, false, nil) for absent or expired keys.
type Store interface {
	// Get returns the raw value for key, or found=false when absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set writes value under key with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Scan pages through keys matching the pattern using an opaque cursor.
	// A returned cursor of 0 signals completion.
	Scan(ctx context.Context, cursor uint64, match string, count int64) (keys []string, next uint64, err error)

	// SetBatch writes all entries in a single pipelined round-trip.
	SetBatch(ctx context.Context, entries []BatchEntry) error
}

// BatchEntry is one write of a pipelined batch.
type BatchEntry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Envelope wraps a cached value with its original store time.
type Envelope struct {
	Value    json.RawMessage `json:"value"`
	StoredAt int64           `json:"storedAt"` // unix millis
}

// NewEnvelope marshals value into an Envelope stored at now.
func NewEnvelope(value any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Value: raw, StoredAt: now.UnixMilli()})
}

// Namespace extracts the metrics namespace from a cache key ("price:btc" -> "price").
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
