package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/tokend/internal/metrics"
)

// Options controls a single Resolve call.
type Options struct {
	// FreshFor is the freshness window: a cached value younger than this is
	// served without fetching.
	FreshFor time.Duration

	// TTL applied when persisting a fetched value. Zero means no expiry.
	TTL time.Duration

	// SkipSave disables persisting the fetched value. Batch callers set this
	// and persist through a pipelined write instead.
	SkipSave bool
}

// Result is the outcome of a Resolve call.
type Result[T any] struct {
	Value    T
	Fresh    bool
	StoredAt time.Time
}

// Age returns how long ago the value was stored, relative to now.
func (r Result[T]) Age(now time.Time) time.Duration {
	return now.Sub(r.StoredAt)
}

// Resolve implements cache-first resolution with stale-on-error fallback:
//
//  1. A cached value within the freshness window is returned without fetching.
//  2. Otherwise fetch is called; on success the value is persisted (unless
//     SkipSave) and returned fresh.
//  3. On fetch failure any cached value, even stale, is served instead; the
//     error propagates only when nothing is cached.
//
// Store errors are soft failures: reads count as misses, writes are logged
// and dropped. A caller never observes an error as long as any previously
// cached value exists.
func Resolve[T any](ctx context.Context, store Store, key string, opts Options, fetch func(ctx context.Context) (T, error)) (Result[T], error) {
	ns := Namespace(key)
	now := time.Now()

	cached, hasCached := readEnvelope[T](ctx, store, key)
	if hasCached && now.Sub(cached.StoredAt) < opts.FreshFor {
		metrics.CacheHits.WithLabelValues(ns).Inc()
		cached.Fresh = true
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues(ns).Inc()

	value, err := fetch(ctx)
	if err != nil {
		if hasCached {
			metrics.CacheStaleServed.WithLabelValues(ns).Inc()
			slog.Warn("Serving stale cache value after fetch failure",
				"key", key, "age", now.Sub(cached.StoredAt), "error", err)
			cached.Fresh = false
			return cached, nil
		}
		return Result[T]{}, fmt.Errorf("fetch %s: %w", key, err)
	}

	if !opts.SkipSave {
		if data, merr := NewEnvelope(value, now); merr != nil {
			slog.Warn("Failed to marshal cache envelope", "key", key, "error", merr)
		} else if serr := store.Set(ctx, key, data, opts.TTL); serr != nil {
			// Cache unavailability is never surfaced.
			slog.Warn("Failed to persist cache value", "key", key, "error", serr)
		}
	}

	return Result[T]{Value: value, Fresh: true, StoredAt: now}, nil
}

// Read returns the cached value for key regardless of freshness, with
// found=false on a miss. Batch callers use it to check staleness themselves.
func Read[T any](ctx context.Context, store Store, key string) (Result[T], bool) {
	return readEnvelope[T](ctx, store, key)
}

// readEnvelope reads and decodes the cached envelope for key.
// Any store or decode error is treated as a miss.
func readEnvelope[T any](ctx context.Context, store Store, key string) (Result[T], bool) {
	data, found, err := store.Get(ctx, key)
	if err != nil {
		slog.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		return Result[T]{}, false
	}
	if !found {
		return Result[T]{}, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Corrupt cache envelope, treating as miss", "key", key, "error", err)
		return Result[T]{}, false
	}

	var value T
	if err := json.Unmarshal(env.Value, &value); err != nil {
		slog.Warn("Corrupt cache value, treating as miss", "key", key, "error", err)
		return Result[T]{}, false
	}

	return Result[T]{Value: value, StoredAt: time.UnixMilli(env.StoredAt)}, true
}
