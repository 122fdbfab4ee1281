package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/tokend/internal/refresh"
)

// RunsRepo persists refresh run summaries for auditing.
type RunsRepo struct {
	db *DB
}

var _ refresh.RunRecorder = (*RunsRepo)(nil)

// NewRunsRepo creates a PostgreSQL-backed run recorder.
func NewRunsRepo(db *DB) *RunsRepo {
	return &RunsRepo{db: db}
}

// RecordRun stores one refresh run summary.
func (r *RunsRepo) RecordRun(ctx context.Context, summary *refresh.Summary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (id, namespace, shard, succeeded, failed_keys, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		summary.RunID,
		summary.Namespace,
		summary.Shard,
		summary.Succeeded,
		pq.Array(summary.FailedKeys),
		summary.StartedAt,
		summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record refresh run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run summaries for a namespace.
func (r *RunsRepo) RecentRuns(ctx context.Context, namespace string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RunRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, namespace, shard, succeeded, failed_keys, started_at, finished_at
		FROM refresh_runs
		WHERE namespace = $1
		ORDER BY started_at DESC
		LIMIT $2`, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh runs: %w", err)
	}
	return rows, nil
}

// RunRow is one persisted refresh run.
type RunRow struct {
	ID         string         `db:"id" json:"id"`
	Namespace  string         `db:"namespace" json:"namespace"`
	Shard      int            `db:"shard" json:"shard"`
	Succeeded  int            `db:"succeeded" json:"succeeded"`
	FailedKeys pq.StringArray `db:"failed_keys" json:"failedKeys"`
	StartedAt  time.Time      `db:"started_at" json:"startedAt"`
	FinishedAt time.Time      `db:"finished_at" json:"finishedAt"`
}
