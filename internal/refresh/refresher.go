package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/tokend/internal/cache"
	"github.com/vietddude/tokend/internal/core/retry"
	"github.com/vietddude/tokend/internal/metrics"
)

// FetchFunc re-derives the fresh value for a single cache key.
type FetchFunc func(ctx context.Context, key string) (json.RawMessage, error)

// Job configures one sharded refresh over a key namespace.
type Job struct {
	// Namespace is the key prefix swept by this job (e.g. "token:info:").
	Namespace string `yaml:"namespace"`

	// NumChunks partitions the keyspace; a full sweep completes over exactly
	// NumChunks runs.
	NumChunks int `yaml:"num_chunks"`

	// Concurrency bounds in-flight fetches per page.
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts and BaseDelay configure per-key retry with capped
	// exponential backoff.
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`

	// PageSize bounds SCAN pages.
	PageSize int64 `yaml:"page_size"`

	// TTL applied to refreshed entries.
	TTL time.Duration `yaml:"ttl"`

	// Interval between scheduled runs.
	Interval time.Duration `yaml:"interval"`

	// Fetch re-derives a key's value. Wired by the host, not by config.
	Fetch FetchFunc `yaml:"-"`
}

func (j *Job) applyDefaults() {
	if j.NumChunks <= 0 {
		j.NumChunks = 7
	}
	if j.Concurrency <= 0 {
		j.Concurrency = 5
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 3
	}
	if j.BaseDelay <= 0 {
		j.BaseDelay = time.Second
	}
	if j.MaxDelay <= 0 {
		j.MaxDelay = 30 * time.Second
	}
	if j.PageSize <= 0 {
		j.PageSize = 100
	}
	if j.Interval <= 0 {
		j.Interval = 24 * time.Hour
	}
}

// Summary aggregates the outcome of one refresh run.
type Summary struct {
	RunID      string                     `json:"runId"`
	Namespace  string                     `json:"namespace"`
	Shard      int                        `json:"shard"`
	Refreshed  map[string]json.RawMessage `json:"-"`
	Succeeded  int                        `json:"succeeded"`
	FailedKeys []string                   `json:"failedKeys"`
	StartedAt  time.Time                  `json:"startedAt"`
	FinishedAt time.Time                  `json:"finishedAt"`
}

// Refresher sweeps cached namespaces shard by shard.
type Refresher struct {
	store cache.Store
}

// NewRefresher creates a Refresher over the given store.
func NewRefresher(store cache.Store) *Refresher {
	return &Refresher{store: store}
}

// RefreshAll runs one sharded sweep of the job's namespace:
//
//  1. Select today's shard from the fixed-epoch day counter.
//  2. Page through the namespace with a bounded SCAN, keeping only keys that
//     hash into the target shard.
//  3. Fetch kept keys with at most Concurrency in flight, each wrapped in
//     retry with capped exponential backoff.
//  4. After the whole page settles, issue one pipelined write of the page's
//     successes. Never write mid-page.
//
// Per-key failures are collected, not retried further within the run; only a
// Scan failure aborts the sweep.
func (r *Refresher) RefreshAll(ctx context.Context, job Job) (*Summary, error) {
	job.applyDefaults()
	if job.Fetch == nil {
		return nil, fmt.Errorf("refresh job %s has no fetch function", job.Namespace)
	}

	shard := TodayShard(time.Now(), job.NumChunks)
	summary := &Summary{
		RunID:     uuid.NewString(),
		Namespace: job.Namespace,
		Shard:     shard,
		Refreshed: make(map[string]json.RawMessage),
		StartedAt: time.Now(),
	}

	slog.Info("Starting sharded refresh",
		"run_id", summary.RunID, "namespace", job.Namespace,
		"shard", shard, "num_chunks", job.NumChunks)

	var cursor uint64
	for {
		keys, next, err := r.store.Scan(ctx, cursor, job.Namespace+"*", job.PageSize)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", job.Namespace, err)
		}

		var page []string
		for _, key := range keys {
			if ShardFor(key, job.NumChunks) == shard {
				page = append(page, key)
			}
		}

		if len(page) > 0 {
			r.refreshPage(ctx, job, page, summary)
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	summary.FinishedAt = time.Now()
	metrics.RefreshDuration.WithLabelValues(cache.Namespace(job.Namespace)).
		Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())

	slog.Info("Sharded refresh finished",
		"run_id", summary.RunID, "namespace", job.Namespace,
		"succeeded", summary.Succeeded, "failed", len(summary.FailedKeys),
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	return summary, nil
}

// refreshPage fetches one page's keys concurrently, waits for every fetch to
// settle, then flushes the successes in a single pipelined write.
func (r *Refresher) refreshPage(ctx context.Context, job Job, page []string, summary *Summary) {
	ns := cache.Namespace(job.Namespace)
	delay := retry.Backoff(job.BaseDelay, job.MaxDelay)

	var mu sync.Mutex
	values := make(map[string]json.RawMessage, len(page))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(job.Concurrency)

	for _, key := range page {
		g.Go(func() error {
			value, err := retry.Do(gctx, job.MaxAttempts, delay,
				func(attempt int) (json.RawMessage, error) {
					return job.Fetch(gctx, key)
				})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.FailedKeys = append(summary.FailedKeys, key)
				metrics.RefreshKeys.WithLabelValues(ns, "failure").Inc()
				slog.Warn("Refresh fetch exhausted retries", "key", key, "error", err)
				return nil
			}
			values[key] = value
			metrics.RefreshKeys.WithLabelValues(ns, "success").Inc()
			return nil
		})
	}
	// Workers report failures through the summary, never as errors.
	_ = g.Wait()

	if len(values) == 0 {
		return
	}

	now := time.Now()
	entries := make([]cache.BatchEntry, 0, len(values))
	for key, value := range values {
		data, err := cache.NewEnvelope(value, now)
		if err != nil {
			summary.FailedKeys = append(summary.FailedKeys, key)
			delete(values, key)
			continue
		}
		entries = append(entries, cache.BatchEntry{Key: key, Value: data, TTL: job.TTL})
	}

	if err := r.store.SetBatch(ctx, entries); err != nil {
		// Cache unavailability is a soft failure; the values were fetched.
		slog.Warn("Pipelined write failed", "namespace", job.Namespace, "keys", len(entries), "error", err)
	}

	for key, value := range values {
		summary.Refreshed[key] = value
		summary.Succeeded++
	}
}
