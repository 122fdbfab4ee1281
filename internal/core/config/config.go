package config

import (
	"time"

	"github.com/vietddude/tokend/internal/infra/postgres"
	redisclient "github.com/vietddude/tokend/internal/infra/redis"
	"github.com/vietddude/tokend/internal/refresh"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Prices   PricesConfig       `yaml:"prices"`
	AO       AOConfig           `yaml:"ao"`
	Tokens   TokensConfig       `yaml:"tokens"`
	Tiers    TiersConfig        `yaml:"tiers"`
	Refresh  RefreshConfig      `yaml:"refresh"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// AdminToken guards the manual refresh trigger. Empty disables it.
	AdminToken string `yaml:"admin_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PricesConfig holds the price provider chain settings.
type PricesConfig struct {
	Providers  []PriceProviderConfig `yaml:"providers"`
	VsCurrency string                `yaml:"vs_currency"`
	Freshness  time.Duration         `yaml:"freshness"`
	TTL        time.Duration         `yaml:"ttl"`

	// PoolKey is the coin id resolved through the dex pool secondary chain
	// when the aggregators fail to price it.
	PoolKey     string `yaml:"pool_key"`
	PoolProcess string `yaml:"pool_process"`
}

// PriceProviderConfig holds settings for one price aggregator, in
// chain order.
type PriceProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// AOConfig holds compute-unit gateway settings.
type AOConfig struct {
	// CUURLs are dry-run gateways, alternated by attempt parity.
	CUURLs []string `yaml:"cu_urls"`

	// TagMatch selects reply tag matching: "exact" or "fold".
	TagMatch string `yaml:"tag_match"`
}

// TokensConfig holds token metadata and registry settings.
type TokensConfig struct {
	RegistryProcess string        `yaml:"registry_process"`
	Freshness       time.Duration `yaml:"freshness"`
	TTL             time.Duration `yaml:"ttl"`
	MaxAttempts     int           `yaml:"max_attempts"`
}

// TiersConfig holds wallet tier snapshot settings.
type TiersConfig struct {
	// SnapshotURL is the read-optimized precomputed snapshot endpoint.
	SnapshotURL string `yaml:"snapshot_url"`

	// TokenProcess is the ledger queried for ranked balances when the
	// snapshot endpoint fails validation.
	TokenProcess string `yaml:"token_process"`

	MaxAttempts int `yaml:"max_attempts"`
}

// RefreshConfig holds the scheduled cache refresh jobs.
type RefreshConfig struct {
	Jobs []refresh.Job `yaml:"jobs"`
}
