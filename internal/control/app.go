// Package control assembles the application: cache store, ledger clients,
// provider chains, services, refresh scheduler and the HTTP server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/tokend/internal/api"
	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/core/config"
	"github.com/vietddude/tokend/internal/core/domain"
	"github.com/vietddude/tokend/internal/infra/ao"
	"github.com/vietddude/tokend/internal/infra/coingecko"
	"github.com/vietddude/tokend/internal/infra/memory"
	"github.com/vietddude/tokend/internal/infra/postgres"
	redisclient "github.com/vietddude/tokend/internal/infra/redis"
	"github.com/vietddude/tokend/internal/infra/snapshot"
	"github.com/vietddude/tokend/internal/provider"
	"github.com/vietddude/tokend/internal/refresh"
	"github.com/vietddude/tokend/internal/service"
	"github.com/vietddude/tokend/internal/tier"
)

const requestTimeout = 30 * time.Second

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg         *config.AppConfig
	redisClient *redisclient.Client
	db          *postgres.DB
	scheduler   *refresh.Scheduler
	server      *api.Server
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	// 1. Cache store: Redis, or in-memory when unconfigured
	var store cache.Store
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		store = redisClient
		slog.Info("Using Redis cache store")
	} else {
		store = memory.NewStore()
		slog.Info("Using in-memory cache store")
	}

	// 2. Ledger gateway
	tagMatch := ao.ParseTagMatch(cfg.AO.TagMatch)
	ledger := ao.NewLedger(ao.NewClient(requestTimeout), tagMatch)

	// 3. Price provider chain, in configured order
	var priceProviders []provider.Provider[float64]
	for _, p := range cfg.Prices.Providers {
		priceProviders = append(priceProviders,
			coingecko.NewClient(p.Name, p.URL, p.APIKey, cfg.Prices.VsCurrency, requestTimeout))
	}

	var chainOpts []provider.ChainOption[float64]
	if cfg.Prices.PoolKey != "" && cfg.Prices.PoolProcess != "" {
		var pools []provider.Provider[float64]
		for _, cu := range cfg.AO.CUURLs {
			pools = append(pools, poolProvider(ledger, cu, cfg.Prices.PoolProcess))
		}
		chainOpts = append(chainOpts, provider.WithSecondary(cfg.Prices.PoolKey, pools...))
	}
	priceChain := provider.NewChain(priceProviders, chainOpts...)

	// 4. Services
	priceSvc := service.NewPriceService(service.PriceConfig{
		FreshFor: cfg.Prices.Freshness,
		TTL:      cfg.Prices.TTL,
	}, store, priceChain)

	tokenSvc := service.NewTokenService(service.TokenConfig{
		Endpoints:       cfg.AO.CUURLs,
		RegistryProcess: cfg.Tokens.RegistryProcess,
		FreshFor:        cfg.Tokens.Freshness,
		TTL:             cfg.Tokens.TTL,
		MaxAttempts:     cfg.Tokens.MaxAttempts,
	}, store, ledger)

	tierEngine := tier.NewEngine(tier.Config{
		LedgerEndpoints: cfg.AO.CUURLs,
		MaxAttempts:     cfg.Tiers.MaxAttempts,
	}, store, snapshot.NewClient(cfg.Tiers.SnapshotURL),
		&rankedLedger{ledger: ledger, process: cfg.Tiers.TokenProcess})

	// 5. Optional Postgres audit store for refresh runs
	var db *postgres.DB
	var recorder refresh.RunRecorder
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database, "migrations")
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		recorder = postgres.NewRunsRepo(db)
		slog.Info("Recording refresh runs to PostgreSQL")
	}

	// 6. Refresh scheduler: bind fetch functions by namespace
	var jobs []refresh.Job
	for _, job := range cfg.Refresh.Jobs {
		switch job.Namespace {
		case service.TokenInfoKeyPrefix:
			job.Fetch = tokenSvc.RefreshFetch
		case service.PriceKeyPrefix:
			job.Fetch = priceSvc.RefreshFetch
		default:
			slog.Warn("No fetch function for refresh namespace, skipping", "namespace", job.Namespace)
			continue
		}
		jobs = append(jobs, job)
	}
	scheduler := refresh.NewScheduler(refresh.NewRefresher(store), jobs, recorder)

	// 7. HTTP server
	checkers := make(map[string]api.HealthChecker)
	if redisClient != nil {
		checkers["redis"] = redisClient
	}
	if db != nil {
		checkers["postgres"] = db
	}
	server := api.NewServer(cfg.Server.Port, cfg.Server.AdminToken,
		priceSvc, tokenSvc, tierEngine, scheduler, checkers)

	return &App{
		cfg:         cfg,
		redisClient: redisClient,
		db:          db,
		scheduler:   scheduler,
		server:      server,
		log:         slog.Default(),
	}, nil
}

// Start starts the app and all its components.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()
	a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)

	a.scheduler.Start(ctx)
	return nil
}

// Stop stops the app.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping tokend...")

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.server.Stop(ctx)
}

// rankedLedger binds the ranked-balances query to one token process.
type rankedLedger struct {
	ledger  *ao.Ledger
	process string
}

func (r *rankedLedger) RankedBalances(ctx context.Context, endpoint string) ([]domain.WalletBalance, error) {
	return r.ledger.RankedBalances(ctx, endpoint, r.process)
}

// poolProvider adapts a dex pool quote into the provider chain's batch shape.
func poolProvider(ledger *ao.Ledger, endpoint, poolProcess string) provider.Provider[float64] {
	return provider.Func[float64]{
		ProviderName: "ao-pool:" + endpoint,
		FetchFunc: func(ctx context.Context, keys []string) (map[string]*float64, error) {
			out := make(map[string]*float64, len(keys))
			for _, key := range keys {
				price, err := ledger.PoolPrice(ctx, endpoint, poolProcess)
				if err != nil {
					return nil, err
				}
				out[key] = &price
			}
			return out, nil
		},
	}
}
