package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunRecorder persists refresh run summaries for auditing.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *Summary) error
}

// Scheduler runs configured refresh jobs on their intervals.
type Scheduler struct {
	refresher *Refresher
	jobs      []Job
	recorder  RunRecorder // optional
}

// NewScheduler creates a scheduler. recorder may be nil.
func NewScheduler(refresher *Refresher, jobs []Job, recorder RunRecorder) *Scheduler {
	return &Scheduler{refresher: refresher, jobs: jobs, recorder: recorder}
}

// Start runs every job's loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runLoop(ctx, job)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	job.applyDefaults()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	// Initial run on startup
	s.runOnce(ctx, job)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

// Trigger runs the job for the given namespace immediately, outside its
// schedule, and returns the run summary.
func (s *Scheduler) Trigger(ctx context.Context, namespace string) (*Summary, error) {
	for _, job := range s.jobs {
		if job.Namespace != namespace {
			continue
		}
		job.applyDefaults()
		summary, err := s.refresher.RefreshAll(ctx, job)
		if err != nil {
			return nil, err
		}
		s.record(ctx, summary)
		return summary, nil
	}
	return nil, fmt.Errorf("no refresh job for namespace %s", namespace)
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	summary, err := s.refresher.RefreshAll(ctx, job)
	if err != nil {
		slog.Error("Refresh run aborted", "namespace", job.Namespace, "error", err)
		return
	}
	s.record(ctx, summary)
}

func (s *Scheduler) record(ctx context.Context, summary *Summary) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(ctx, summary); err != nil {
		slog.Warn("Failed to record refresh run", "run_id", summary.RunID, "error", err)
	}
}
