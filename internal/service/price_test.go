package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/tokend/internal/core/retry"
	"github.com/vietddude/tokend/internal/infra/memory"
	"github.com/vietddude/tokend/internal/provider"
)

func pricesProvider(name string, calls *int, prices map[string]float64) provider.Provider[float64] {
	return provider.Func[float64]{ProviderName: name, FetchFunc: func(ctx context.Context, keys []string) (map[string]*float64, error) {
		if calls != nil {
			*calls++
		}
		out := make(map[string]*float64)
		for _, k := range keys {
			if p, ok := prices[k]; ok {
				v := p
				out[k] = &v
			}
		}
		return out, nil
	}}
}

func failingProvider(name string) provider.Provider[float64] {
	return provider.Func[float64]{ProviderName: name, FetchFunc: func(ctx context.Context, keys []string) (map[string]*float64, error) {
		return nil, errors.New("down")
	}}
}

func newChain(providers ...provider.Provider[float64]) *provider.Chain[float64] {
	return provider.NewChain(providers, provider.WithRetry[float64](1, retry.Fixed(time.Millisecond)))
}

func TestGetPrices_BatchResolvesAndCaches(t *testing.T) {
	store := memory.NewStore()
	calls := 0
	svc := NewPriceService(PriceConfig{FreshFor: time.Minute, TTL: time.Hour}, store,
		newChain(pricesProvider("primary", &calls, map[string]float64{"bitcoin": 42000, "arweave": 6.25})))

	quotes := svc.GetPrices(context.Background(), []string{"bitcoin", "arweave"})
	if calls != 1 {
		t.Errorf("Expected one batch provider call, got %d", calls)
	}
	if q := quotes["bitcoin"]; q.USD == nil || *q.USD != 42000 || !q.Fresh {
		t.Errorf("Unexpected bitcoin quote: %+v", q)
	}

	// Second batch within the freshness window must not consult providers.
	quotes = svc.GetPrices(context.Background(), []string{"bitcoin", "arweave"})
	if calls != 1 {
		t.Errorf("Expected zero additional provider calls on fresh hit, got %d total", calls)
	}
	if q := quotes["arweave"]; q.USD == nil || *q.USD != 6.25 {
		t.Errorf("Unexpected cached arweave quote: %+v", q)
	}
}

func TestGetPrices_ServesStaleWhenChainFails(t *testing.T) {
	store := memory.NewStore()
	svc := NewPriceService(PriceConfig{FreshFor: time.Minute, TTL: time.Hour}, store,
		newChain(pricesProvider("primary", nil, map[string]float64{"bitcoin": 42000})))
	svc.GetPrices(context.Background(), []string{"bitcoin"})

	// New service over the same store, zero freshness, all providers down.
	stale := NewPriceService(PriceConfig{FreshFor: time.Nanosecond, TTL: time.Hour}, store,
		newChain(failingProvider("primary")))
	time.Sleep(time.Millisecond)
	quotes := stale.GetPrices(context.Background(), []string{"bitcoin"})

	q := quotes["bitcoin"]
	if q.USD == nil || *q.USD != 42000 {
		t.Fatalf("Expected stale 42000, got %+v", q)
	}
	if q.Fresh {
		t.Error("Expected stale quote to be marked not fresh")
	}
	if q.AgeSeconds <= 0 {
		t.Errorf("Expected positive age, got %v", q.AgeSeconds)
	}
}

func TestGetPrices_NullQuoteWithoutCacheOrProvider(t *testing.T) {
	svc := NewPriceService(PriceConfig{FreshFor: time.Minute, TTL: time.Hour}, memory.NewStore(),
		newChain(failingProvider("primary"), failingProvider("backup")))

	quotes := svc.GetPrices(context.Background(), []string{"bitcoin"})
	q, ok := quotes["bitcoin"]
	if !ok {
		t.Fatal("Expected an entry for every requested id")
	}
	if q.USD != nil {
		t.Errorf("Expected null quote, got %v", *q.USD)
	}
}

func TestGetPrice_SingleKeyResolve(t *testing.T) {
	svc := NewPriceService(PriceConfig{FreshFor: time.Minute, TTL: time.Hour}, memory.NewStore(),
		newChain(pricesProvider("primary", nil, map[string]float64{"bitcoin": 42000})))

	quote, err := svc.GetPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if quote.USD == nil || *quote.USD != 42000 || !quote.Fresh {
		t.Errorf("Unexpected quote: %+v", quote)
	}
}

func TestGetPrice_ErrorWhenUnpriceableAndUncached(t *testing.T) {
	svc := NewPriceService(PriceConfig{FreshFor: time.Minute, TTL: time.Hour}, memory.NewStore(),
		newChain(failingProvider("primary")))

	if _, err := svc.GetPrice(context.Background(), "bitcoin"); err == nil {
		t.Fatal("Expected error when no provider and no cache")
	}
}
