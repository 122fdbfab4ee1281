// Package provider implements ordered multi-source fallback over external
// data fetchers.
//
// A provider wraps an external source in a uniform contract: it either
// succeeds with a value-or-nil map covering the requested keys, or fails as a
// whole. A chain consults providers strictly in order and never mixes two
// providers' partial data.
package provider

import (
	"context"
	"errors"
)

// ErrInvalidShape marks a response that parsed but does not match the
// expected shape. It is non-retryable and fails the provider within a chain.
var ErrInvalidShape = errors.New("invalid response shape")

// Provider is an external data source for a batch of keys.
// Fetch returns a value (or nil for unpriceable keys) per requested key.
type Provider[T any] interface {
	// Name returns the provider identifier (e.g., "coingecko").
	Name() string

	// Fetch resolves the given keys. Keys absent from the returned map are
	// treated as nil by the chain.
	Fetch(ctx context.Context, keys []string) (map[string]*T, error)
}

// Result is the outcome of a chain run: exactly one value-or-nil entry per
// requested key.
type Result[T any] struct {
	// Values maps every requested key to its value, or nil.
	Values map[string]*T

	// Source names the provider that produced Values, empty when every
	// provider failed.
	Source string
}

// Func adapts a function to the Provider interface.
type Func[T any] struct {
	ProviderName string
	FetchFunc    func(ctx context.Context, keys []string) (map[string]*T, error)
}

func (f Func[T]) Name() string { return f.ProviderName }

func (f Func[T]) Fetch(ctx context.Context, keys []string) (map[string]*T, error) {
	return f.FetchFunc(ctx, keys)
}
