package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/core/domain"
	"github.com/vietddude/tokend/internal/core/retry"
)

// TokenInfoKeyPrefix namespaces cached token metadata.
const TokenInfoKeyPrefix = "token:info:"

// TokenLedger is the ledger surface the token service needs.
type TokenLedger interface {
	TokenInfo(ctx context.Context, endpoint, processID string) (domain.TokenInfo, error)
	Registry(ctx context.Context, endpoint, processID string) ([]domain.RegistryEntry, error)
}

// TokenConfig holds token metadata service settings.
type TokenConfig struct {
	// Endpoints are compute-unit URLs, alternated by attempt parity.
	Endpoints []string

	RegistryProcess string

	FreshFor    time.Duration
	TTL         time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c *TokenConfig) applyDefaults() {
	if c.FreshFor <= 0 {
		c.FreshFor = time.Hour
	}
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
}

// TokenService serves token metadata and the registry listing.
type TokenService struct {
	cfg    TokenConfig
	store  cache.Store
	ledger TokenLedger
}

// NewTokenService creates a token metadata service.
func NewTokenService(cfg TokenConfig, store cache.Store, ledger TokenLedger) *TokenService {
	cfg.applyDefaults()
	return &TokenService{cfg: cfg, store: store, ledger: ledger}
}

// GetToken resolves metadata for one token process, cache-first.
func (s *TokenService) GetToken(ctx context.Context, processID string) (cache.Result[domain.TokenInfo], error) {
	return cache.Resolve(ctx, s.store, TokenInfoKeyPrefix+processID,
		cache.Options{FreshFor: s.cfg.FreshFor, TTL: s.cfg.TTL},
		func(ctx context.Context) (domain.TokenInfo, error) {
			return s.fetchInfo(ctx, processID)
		})
}

// GetRegistry resolves the registry token listing, cache-first.
func (s *TokenService) GetRegistry(ctx context.Context) (cache.Result[[]domain.RegistryEntry], error) {
	if s.cfg.RegistryProcess == "" {
		return cache.Result[[]domain.RegistryEntry]{}, fmt.Errorf("no registry process configured")
	}
	return cache.Resolve(ctx, s.store, "registry:listing",
		cache.Options{FreshFor: s.cfg.FreshFor, TTL: s.cfg.TTL},
		func(ctx context.Context) ([]domain.RegistryEntry, error) {
			return retry.Do(ctx, s.cfg.MaxAttempts, retry.Backoff(s.cfg.BaseDelay, s.cfg.MaxDelay),
				func(attempt int) ([]domain.RegistryEntry, error) {
					return s.ledger.Registry(ctx, s.endpoint(attempt), s.cfg.RegistryProcess)
				})
		})
}

// RefreshFetch re-derives a cached token-info key for the sharded refresher.
// The retry budget belongs to the refresher, so a single attempt is made here.
func (s *TokenService) RefreshFetch(ctx context.Context, key string) (json.RawMessage, error) {
	processID := strings.TrimPrefix(key, TokenInfoKeyPrefix)
	if processID == key || processID == "" {
		return nil, fmt.Errorf("key %s outside token info namespace", key)
	}

	info, err := s.ledger.TokenInfo(ctx, s.endpoint(0), processID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

// fetchInfo queries token metadata, alternating endpoints by attempt parity.
func (s *TokenService) fetchInfo(ctx context.Context, processID string) (domain.TokenInfo, error) {
	return retry.Do(ctx, s.cfg.MaxAttempts, retry.Backoff(s.cfg.BaseDelay, s.cfg.MaxDelay),
		func(attempt int) (domain.TokenInfo, error) {
			return s.ledger.TokenInfo(ctx, s.endpoint(attempt), processID)
		})
}

func (s *TokenService) endpoint(attempt int) string {
	if len(s.cfg.Endpoints) == 0 {
		return ""
	}
	return s.cfg.Endpoints[attempt%len(s.cfg.Endpoints)]
}
