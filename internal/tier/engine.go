package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/core/domain"
	"github.com/vietddude/tokend/internal/core/retry"
	"github.com/vietddude/tokend/internal/metrics"
)

// ErrSnapshotInvalid marks a primary snapshot that failed validation.
// It triggers the ledger fallback and is never surfaced to callers.
var ErrSnapshotInvalid = errors.New("snapshot invalid")

// SnapshotSource fetches a precomputed address-keyed record map from a
// read-optimized snapshot endpoint.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (map[string]domain.WalletTierRecord, error)
}

// LedgerSource queries a ledger endpoint for a balance-sorted wallet list.
type LedgerSource interface {
	RankedBalances(ctx context.Context, endpoint string) ([]domain.WalletBalance, error)
}

const snapshotKey = "tier:snapshot"

// SnapshotMaxAge is how long a snapshot remains valid after its timestamp.
const SnapshotMaxAge = 24 * time.Hour

// Config holds TierEngine settings.
type Config struct {
	// LedgerEndpoints are alternated by attempt parity during fallback.
	LedgerEndpoints []string

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
}

// Engine acquires, validates and serves ranked wallet snapshots.
type Engine struct {
	cfg      Config
	store    cache.Store
	snapshot SnapshotSource
	ledger   LedgerSource
	now      func() time.Time
}

// NewEngine creates a tier engine over the given sources.
func NewEngine(cfg Config, store cache.Store, snapshot SnapshotSource, ledger LedgerSource) *Engine {
	cfg.applyDefaults()
	return &Engine{cfg: cfg, store: store, snapshot: snapshot, ledger: ledger, now: time.Now}
}

// GetTiers resolves tier records for the requested addresses. Addresses
// absent from the snapshot synthesize a default record: balance "0", empty
// rank, lowest tier, zero progress.
func (e *Engine) GetTiers(ctx context.Context, addresses []string) (map[string]domain.WalletTierRecord, error) {
	snap, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.WalletTierRecord, len(addresses))
	for _, addr := range addresses {
		if rec, ok := snap.Records[addr]; ok {
			out[addr] = rec
			continue
		}
		out[addr] = domain.WalletTierRecord{
			Balance:           "0",
			Tier:              LowestTier,
			Progress:          0,
			SnapshotTimestamp: snap.SnapshotTimestamp,
			TotalHolders:      snap.TotalWallets,
		}
	}
	return out, nil
}

// acquire returns a valid snapshot: cached if still valid, else primary
// endpoint, else ledger fallback. The winning snapshot is cached whole with a
// TTL aligned to its own 24h validity.
func (e *Engine) acquire(ctx context.Context) (*domain.TierSnapshot, error) {
	if snap, ok := e.cached(ctx); ok {
		metrics.TierSnapshotSource.WithLabelValues("cache").Inc()
		return snap, nil
	}

	snap, err := e.fromPrimary(ctx)
	if err != nil {
		slog.Warn("Primary tier snapshot rejected, falling back to ledger", "error", err)
		snap, err = e.fromLedger(ctx)
		if err != nil {
			return nil, fmt.Errorf("tier snapshot acquisition: %w", err)
		}
		metrics.TierSnapshotSource.WithLabelValues("ledger").Inc()
	} else {
		metrics.TierSnapshotSource.WithLabelValues("primary").Inc()
	}

	e.persist(ctx, snap)
	return snap, nil
}

func (e *Engine) cached(ctx context.Context) (*domain.TierSnapshot, bool) {
	data, found, err := e.store.Get(ctx, snapshotKey)
	if err != nil {
		slog.Warn("Snapshot cache read failed, treating as miss", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var snap domain.TierSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Corrupt cached snapshot, treating as miss", "error", err)
		return nil, false
	}
	if e.now().Sub(time.UnixMilli(snap.SnapshotTimestamp)) >= SnapshotMaxAge {
		return nil, false
	}
	return &snap, true
}

// persist caches the whole snapshot with TTL snapshotTimestamp + 24h - now,
// so cache expiry aligns exactly with snapshot invalidity.
func (e *Engine) persist(ctx context.Context, snap *domain.TierSnapshot) {
	ttl := time.UnixMilli(snap.SnapshotTimestamp).Add(SnapshotMaxAge).Sub(e.now())
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("Failed to marshal tier snapshot", "error", err)
		return
	}
	if err := e.store.Set(ctx, snapshotKey, data, ttl); err != nil {
		slog.Warn("Failed to cache tier snapshot", "error", err)
	}
}

// fromPrimary fetches and validates the precomputed snapshot. Valid only if
// at least one well-formed record exists, snapshotTimestamp and totalHolders
// are present and non-zero, the count of address-format-valid records equals
// totalHolders, and the snapshot is younger than 24h.
func (e *Engine) fromPrimary(ctx context.Context) (*domain.TierSnapshot, error) {
	records, err := e.snapshot.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrSnapshotInvalid)
	}

	var snapshotTimestamp int64
	var totalHolders int
	for _, rec := range records {
		if rec.SnapshotTimestamp != 0 && rec.TotalHolders != 0 {
			snapshotTimestamp = rec.SnapshotTimestamp
			totalHolders = rec.TotalHolders
			break
		}
	}
	if snapshotTimestamp == 0 || totalHolders == 0 {
		return nil, fmt.Errorf("%w: missing snapshotTimestamp or totalHolders", ErrSnapshotInvalid)
	}

	valid := 0
	for addr := range records {
		if domain.ValidAddress(addr) {
			valid++
		}
	}
	if valid != totalHolders {
		return nil, fmt.Errorf("%w: %d address-valid records, declared %d holders",
			ErrSnapshotInvalid, valid, totalHolders)
	}

	if e.now().Sub(time.UnixMilli(snapshotTimestamp)) >= SnapshotMaxAge {
		return nil, fmt.Errorf("%w: older than %s", ErrSnapshotInvalid, SnapshotMaxAge)
	}

	return &domain.TierSnapshot{
		Records:           records,
		SnapshotTimestamp: snapshotTimestamp,
		TotalWallets:      len(records),
	}, nil
}

// fromLedger recomputes the snapshot from a balance-sorted wallet list,
// alternating between the configured endpoints by attempt parity.
func (e *Engine) fromLedger(ctx context.Context) (*domain.TierSnapshot, error) {
	if len(e.cfg.LedgerEndpoints) == 0 {
		return nil, fmt.Errorf("no ledger endpoints configured")
	}

	balances, err := retry.Do(ctx, e.cfg.MaxAttempts, retry.Backoff(e.cfg.BaseDelay, e.cfg.MaxDelay),
		func(attempt int) ([]domain.WalletBalance, error) {
			endpoint := e.cfg.LedgerEndpoints[attempt%len(e.cfg.LedgerEndpoints)]
			return e.ledger.RankedBalances(ctx, endpoint)
		})
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, fmt.Errorf("ledger returned empty wallet list")
	}

	now := e.now().UnixMilli()
	total := len(balances)
	records := make(map[string]domain.WalletTierRecord, total)
	for i, wb := range balances {
		rank := i + 1
		records[wb.Address] = domain.WalletTierRecord{
			Balance:           wb.Balance,
			Rank:              rank,
			Tier:              TierOf(rank, total),
			Progress:          ProgressOf(rank, total),
			SnapshotTimestamp: now,
			TotalHolders:      total,
		}
	}

	return &domain.TierSnapshot{
		Records:           records,
		SnapshotTimestamp: now,
		TotalWallets:      total,
	}, nil
}
