package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/tokend/internal/core/retry"
)

func fptr(v float64) *float64 { return &v }

func fastRetry[T any]() ChainOption[T] {
	return WithRetry[T](1, retry.Fixed(time.Millisecond))
}

func TestChain_FirstProviderWins(t *testing.T) {
	second := 0
	chain := NewChain([]Provider[float64]{
		Func[float64]{"primary", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return map[string]*float64{"bitcoin": fptr(42000)}, nil
		}},
		Func[float64]{"backup", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			second++
			return map[string]*float64{"bitcoin": fptr(1)}, nil
		}},
	}, fastRetry[float64]())

	res := chain.Resolve(context.Background(), []string{"bitcoin"})
	if res.Source != "primary" {
		t.Errorf("Expected source primary, got %s", res.Source)
	}
	if v := res.Values["bitcoin"]; v == nil || *v != 42000 {
		t.Errorf("Expected 42000, got %v", v)
	}
	if second != 0 {
		t.Errorf("Expected backup never consulted, got %d calls", second)
	}
}

func TestChain_FailoverReturnsWinnerVerbatim(t *testing.T) {
	chain := NewChain([]Provider[float64]{
		Func[float64]{"primary", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return nil, errors.New("rate limited")
		}},
		Func[float64]{"backup", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			// Only prices bitcoin; ethereum stays nil.
			return map[string]*float64{"bitcoin": fptr(41000)}, nil
		}},
	}, fastRetry[float64]())

	res := chain.Resolve(context.Background(), []string{"bitcoin", "ethereum"})
	if res.Source != "backup" {
		t.Errorf("Expected source backup, got %s", res.Source)
	}
	if len(res.Values) != 2 {
		t.Fatalf("Expected exactly one entry per requested key, got %d", len(res.Values))
	}
	if v := res.Values["bitcoin"]; v == nil || *v != 41000 {
		t.Errorf("Expected backup's 41000 with no merge from primary, got %v", v)
	}
	if res.Values["ethereum"] != nil {
		t.Errorf("Expected nil for ethereum, got %v", *res.Values["ethereum"])
	}
}

func TestChain_AllProvidersFailReturnsNils(t *testing.T) {
	chain := NewChain([]Provider[float64]{
		Func[float64]{"primary", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return nil, errors.New("down")
		}},
		Func[float64]{"backup", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return nil, errors.New("also down")
		}},
	}, fastRetry[float64]())

	res := chain.Resolve(context.Background(), []string{"bitcoin", "ethereum"})
	if res.Source != "" {
		t.Errorf("Expected empty source, got %s", res.Source)
	}
	for key, v := range res.Values {
		if v != nil {
			t.Errorf("Expected nil for %s, got %v", key, *v)
		}
	}
	if len(res.Values) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(res.Values))
	}
}

func TestChain_SecondaryFillsDesignatedKeyOnly(t *testing.T) {
	chain := NewChain([]Provider[float64]{
		Func[float64]{"batch", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			// Batch source cannot price the designated asset.
			return map[string]*float64{"bitcoin": fptr(42000)}, nil
		}},
	},
		fastRetry[float64](),
		WithSecondary("ao", Func[float64]{"dex", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			if len(keys) != 1 || keys[0] != "ao" {
				t.Errorf("Expected secondary consulted for ao only, got %v", keys)
			}
			return map[string]*float64{"ao": fptr(12.5)}, nil
		}}),
	)

	res := chain.Resolve(context.Background(), []string{"bitcoin", "ao", "ethereum"})
	if v := res.Values["ao"]; v == nil || *v != 12.5 {
		t.Errorf("Expected secondary to fill ao with 12.5, got %v", v)
	}
	if res.Values["ethereum"] != nil {
		t.Error("Expected ethereum to stay nil; secondary covers the designated key only")
	}
}

func TestChain_SecondarySkippedWhenPrimaryFails(t *testing.T) {
	secondaryCalls := 0
	chain := NewChain([]Provider[float64]{
		Func[float64]{"batch", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return nil, errors.New("down")
		}},
	},
		fastRetry[float64](),
		WithSecondary("ao", Func[float64]{"dex", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			secondaryCalls++
			return map[string]*float64{"ao": fptr(12.5)}, nil
		}}),
	)

	res := chain.Resolve(context.Background(), []string{"ao"})
	if secondaryCalls != 0 {
		t.Errorf("Expected secondary skipped when primary chain fails, got %d calls", secondaryCalls)
	}
	if res.Values["ao"] != nil {
		t.Errorf("Expected nil for ao, got %v", *res.Values["ao"])
	}
}

func TestChain_InvalidShapeFailsProviderWithoutRetry(t *testing.T) {
	malformedCalls := 0
	chain := NewChain([]Provider[float64]{
		Func[float64]{"malformed", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			malformedCalls++
			return nil, fmt.Errorf("%w: expected object", ErrInvalidShape)
		}},
		Func[float64]{"backup", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			return map[string]*float64{"bitcoin": fptr(41000)}, nil
		}},
	}, WithRetry[float64](3, retry.Fixed(time.Millisecond)))

	res := chain.Resolve(context.Background(), []string{"bitcoin"})
	if malformedCalls != 1 {
		t.Errorf("Expected a malformed response to fail the provider on the first attempt, got %d calls", malformedCalls)
	}
	if res.Source != "backup" {
		t.Errorf("Expected failover to backup, got source %q", res.Source)
	}
	if v := res.Values["bitcoin"]; v == nil || *v != 41000 {
		t.Errorf("Expected 41000 from backup, got %v", v)
	}
}

func TestChain_RetriesBeforeFailover(t *testing.T) {
	primaryCalls := 0
	chain := NewChain([]Provider[float64]{
		Func[float64]{"flaky", func(ctx context.Context, keys []string) (map[string]*float64, error) {
			primaryCalls++
			if primaryCalls < 2 {
				return nil, errors.New("transient")
			}
			return map[string]*float64{"bitcoin": fptr(42000)}, nil
		}},
	}, WithRetry[float64](3, retry.Fixed(time.Millisecond)))

	res := chain.Resolve(context.Background(), []string{"bitcoin"})
	if res.Source != "flaky" {
		t.Errorf("Expected flaky provider to recover via retry, got source %q", res.Source)
	}
	if primaryCalls != 2 {
		t.Errorf("Expected 2 attempts, got %d", primaryCalls)
	}
}
