package core

// scheduler.go runs the pipeline periodically inside a long-lived process.
//
// Runs happen on the scheduler goroutine, so two scheduled runs never overlap.
// A tick that arrives while a run is still going is dropped, not queued. The
// scheduler is context-aware for graceful shutdown and does not stop when an
// individual run fails; the next tick retries.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Runner performs one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*RunRecord, error)
}

// Scheduler triggers a Runner every Interval.
type Scheduler struct {
	Runner     Runner
	Interval   time.Duration
	RunOnStart bool
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	slog.Info("scheduler started", "interval", s.Interval.String(), "run_on_start", s.RunOnStart)

	if s.RunOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)

			// A tick buffered during the run would start another one straight away.
			select {
			case <-ticker.C:
				slog.Warn("tick dropped, previous run overran the interval")
			default:
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	rec, err := s.Runner.Run(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Warn("scheduled run skipped", "reason", err.Error())
	case err != nil && rec != nil:
		// already logged by the pipeline; the next tick retries
		slog.Debug("scheduled run failed", "run_id", rec.ID.String())
	case err != nil:
		slog.Error("scheduled run failed", "error", err)
	}
}
