package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/tokend/internal/core/retry"
	"github.com/vietddude/tokend/internal/metrics"
)

// Secondary is a dedicated lookup chain for one designated key, consulted
// only after the primary chain succeeded and only when that single key
// resolved to nil. Used when the primary batch source cannot price one
// specific well-known asset.
type Secondary[T any] struct {
	Key       string
	Providers []Provider[T]
}

// Chain resolves a batch of keys across providers in strict order.
type Chain[T any] struct {
	providers   []Provider[T]
	secondary   *Secondary[T]
	maxAttempts int
	delay       retry.DelayFunc
}

// ChainOption configures a Chain.
type ChainOption[T any] func(*Chain[T])

// WithRetry sets per-provider retry behavior. The default is two attempts
// with a short fixed delay.
func WithRetry[T any](maxAttempts int, delay retry.DelayFunc) ChainOption[T] {
	return func(c *Chain[T]) {
		c.maxAttempts = maxAttempts
		c.delay = delay
	}
}

// WithSecondary sets the designated-key secondary chain.
func WithSecondary[T any](key string, providers ...Provider[T]) ChainOption[T] {
	return func(c *Chain[T]) {
		c.secondary = &Secondary[T]{Key: key, Providers: providers}
	}
}

// NewChain creates a chain over the given providers, invoked in order.
func NewChain[T any](providers []Provider[T], opts ...ChainOption[T]) *Chain[T] {
	c := &Chain[T]{
		providers:   providers,
		maxAttempts: 2,
		delay:       retry.Fixed(500 * time.Millisecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve invokes providers strictly in order and returns the first
// succeeding provider's map verbatim, normalized so every requested key is
// present (missing keys map to nil). Later providers never fill in the
// winner's nil entries, except the designated secondary key. Resolve never
// fails: when every provider errors, all keys map to nil and Source is empty.
func (c *Chain[T]) Resolve(ctx context.Context, keys []string) Result[T] {
	result := c.run(ctx, keys, c.providers)

	if c.secondary != nil && result.Source != "" {
		if v, requested := result.Values[c.secondary.Key]; requested && v == nil {
			sec := c.run(ctx, []string{c.secondary.Key}, c.secondary.Providers)
			if sv := sec.Values[c.secondary.Key]; sv != nil {
				result.Values[c.secondary.Key] = sv
			}
		}
	}

	return result
}

func (c *Chain[T]) run(ctx context.Context, keys []string, providers []Provider[T]) Result[T] {
	for _, p := range providers {
		values, err := retry.Do(ctx, c.maxAttempts, c.delay,
			func(attempt int) (map[string]*T, error) {
				values, err := p.Fetch(ctx, keys)
				if err != nil && errors.Is(err, ErrInvalidShape) {
					// A malformed response does not heal on retry.
					return nil, retry.Stop(err)
				}
				return values, err
			})
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(p.Name(), "failure").Inc()
			slog.Warn("Provider failed, trying next", "provider", p.Name(), "error", err)
			continue
		}

		metrics.ProviderRequests.WithLabelValues(p.Name(), "success").Inc()
		return Result[T]{Values: normalize(keys, values), Source: p.Name()}
	}

	return Result[T]{Values: normalize[T](keys, nil)}
}

// normalize ensures exactly one entry per requested key.
func normalize[T any](keys []string, values map[string]*T) map[string]*T {
	out := make(map[string]*T, len(keys))
	for _, k := range keys {
		out[k] = values[k]
	}
	return out
}
