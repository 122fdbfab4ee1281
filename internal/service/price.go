// Package service wires the cache, provider and tier engines into the
// concrete data products tokend serves: prices, token metadata, registry
// listings and wallet tiers. Each service is a thin configuration of the
// shared engines, not a parallel implementation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/provider"
)

// PriceKeyPrefix namespaces cached coin prices.
const PriceKeyPrefix = "price:"

// Quote is the upward-facing resolve result for one coin id.
type Quote struct {
	USD        *float64   `json:"usd"`
	Fresh      bool       `json:"fresh"`
	CachedAt   *time.Time `json:"cachedAt,omitempty"`
	AgeSeconds float64    `json:"ageSeconds"`
}

// PriceConfig holds price service settings.
type PriceConfig struct {
	FreshFor time.Duration
	TTL      time.Duration
}

// PriceService serves batch coin prices, cache-first with chain fallback.
type PriceService struct {
	cfg   PriceConfig
	store cache.Store
	chain *provider.Chain[float64]
}

// NewPriceService creates a price service over the given chain.
func NewPriceService(cfg PriceConfig, store cache.Store, chain *provider.Chain[float64]) *PriceService {
	if cfg.FreshFor <= 0 {
		cfg.FreshFor = 5 * time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &PriceService{cfg: cfg, store: store, chain: chain}
}

// GetPrices resolves a batch of coin ids. Fresh cache entries are served
// directly; the remaining ids go through the provider chain in one batch and
// successful values are persisted per key. Ids the chain cannot price fall
// back to any stale cached value, else resolve to a null quote. GetPrices
// never fails.
func (s *PriceService) GetPrices(ctx context.Context, ids []string) map[string]Quote {
	now := time.Now()
	out := make(map[string]Quote, len(ids))

	cached := make(map[string]cache.Result[float64], len(ids))
	var pending []string
	for _, id := range ids {
		res, ok := cache.Read[float64](ctx, s.store, PriceKeyPrefix+id)
		if ok {
			cached[id] = res
			if now.Sub(res.StoredAt) < s.cfg.FreshFor {
				out[id] = quoteOf(res.Value, true, res.StoredAt, now)
				continue
			}
		}
		pending = append(pending, id)
	}

	if len(pending) == 0 {
		return out
	}

	result := s.chain.Resolve(ctx, pending)
	for _, id := range pending {
		value := result.Values[id]
		if value != nil {
			s.persist(ctx, id, *value, now)
			out[id] = quoteOf(*value, true, now, now)
			continue
		}
		if res, ok := cached[id]; ok {
			// Stale beats nothing.
			out[id] = quoteOf(res.Value, false, res.StoredAt, now)
			continue
		}
		out[id] = Quote{}
	}

	return out
}

// GetPrice resolves a single coin id through the cache resolver.
func (s *PriceService) GetPrice(ctx context.Context, id string) (Quote, error) {
	res, err := cache.Resolve(ctx, s.store, PriceKeyPrefix+id,
		cache.Options{FreshFor: s.cfg.FreshFor, TTL: s.cfg.TTL},
		func(ctx context.Context) (float64, error) {
			result := s.chain.Resolve(ctx, []string{id})
			if v := result.Values[id]; v != nil {
				return *v, nil
			}
			return 0, fmt.Errorf("no provider could price %s", id)
		})
	if err != nil {
		return Quote{}, err
	}
	return quoteOf(res.Value, res.Fresh, res.StoredAt, time.Now()), nil
}

// RefreshFetch re-quotes a cached price key for the sharded refresher.
func (s *PriceService) RefreshFetch(ctx context.Context, key string) (json.RawMessage, error) {
	id := strings.TrimPrefix(key, PriceKeyPrefix)
	if id == key || id == "" {
		return nil, fmt.Errorf("key %s outside price namespace", key)
	}

	result := s.chain.Resolve(ctx, []string{id})
	if v := result.Values[id]; v != nil {
		return json.Marshal(*v)
	}
	return nil, fmt.Errorf("no provider could price %s", id)
}

func (s *PriceService) persist(ctx context.Context, id string, value float64, now time.Time) {
	data, err := cache.NewEnvelope(value, now)
	if err != nil {
		slog.Warn("Failed to marshal price envelope", "id", id, "error", err)
		return
	}
	if err := s.store.Set(ctx, PriceKeyPrefix+id, data, s.cfg.TTL); err != nil {
		slog.Warn("Failed to persist price", "id", id, "error", err)
	}
}

func quoteOf(value float64, fresh bool, storedAt, now time.Time) Quote {
	v := value
	at := storedAt
	return Quote{
		USD:        &v,
		Fresh:      fresh,
		CachedAt:   &at,
		AgeSeconds: now.Sub(storedAt).Seconds(),
	}
}
