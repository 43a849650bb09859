// Package scheduler drives the periodic pipeline runs: one run every
// interval, a shorter backoff after a failed run, and a synchronous
// manual trigger for the dashboard.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/centinela-labs/centinela/internal/model"
)

// Runner is the pipeline surface the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*model.PipelineRecord, error)
}

// Scheduler serializes pipeline runs: the periodic loop and manual
// triggers share one mutex so at most one run is in flight.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	backoff  time.Duration

	mu sync.Mutex
}

// New creates a Scheduler with the given periodic interval and
// post-failure backoff.
func New(runner Runner, interval, backoff time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if backoff <= 0 {
		backoff = time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, backoff: backoff}
}

// RunLoop blocks until ctx is cancelled. When immediate is set the first
// run starts right away; otherwise the loop waits a full interval first.
// A failed run shortens the next wait to the backoff duration.
func (s *Scheduler) RunLoop(ctx context.Context, immediate bool) error {
	wait := s.interval
	if immediate {
		wait = 0
	}

	for {
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := s.TriggerNow(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("scheduler: run failed, backing off",
				zap.Duration("backoff", s.backoff),
				zap.Error(err),
			)
			wait = s.backoff
			continue
		}

		zap.L().Info("scheduler: run complete",
			zap.Duration("next_run_in", s.interval),
		)
		wait = s.interval
	}
}

// TriggerNow executes one pipeline run synchronously, waiting for any
// in-flight run to finish first.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.runner.Run(ctx); err != nil {
		return eris.Wrap(err, "scheduler: pipeline run")
	}
	return nil
}
