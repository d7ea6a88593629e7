/*
scheduler.go - Cache warm-up scheduler

PURPOSE:
  Periodically recomputes the current month for every instructor so the
  first dashboard read after a quiet period is a cache hit instead of a
  full batch computation.

DESIGN:
  - robfig/cron drives the schedule (standard 5-field expression)
  - SkipIfStillRunning: a slow batch never overlaps the next tick
  - Failures inside the batch are logged by the engine; the job only
    records how many instructors were warmed and how many failed

CONFIGURATION:
  - warmup_enabled:  whether Start schedules anything
  - warmup_schedule: cron expression, default "15 * * * *"

USAGE:
  scheduler := api.NewWarmupScheduler(engine, cfg.WarmupSchedule, log)
  if err := scheduler.Start(); err != nil { ... }
  defer scheduler.Stop(ctx)

SEE ALSO:
  - compensation/engine.go: ComputeAllCompensation
  - cmd/server/main.go: wiring
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
	"github.com/warp/compensation-engine/logger"
)

const warmupTimeout = 10 * time.Minute

// WarmupScheduler recomputes the current month on a cron schedule.
type WarmupScheduler struct {
	Engine   *compensation.Engine
	Schedule string

	log  logger.Logger
	now  func() time.Time
	cron *cron.Cron

	mu      sync.Mutex
	entry   cron.EntryID
	lastRun time.Time
	lastErr error
}

// NewWarmupScheduler creates a scheduler. Nothing runs until Start.
func NewWarmupScheduler(engine *compensation.Engine, schedule string, log logger.Logger) *WarmupScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmupScheduler{
		Engine:   engine,
		Schedule: schedule,
		log:      log.Named("warmup"),
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the job and starts the cron loop.
func (s *WarmupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(s.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
		defer cancel()
		_, _ = s.RunNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("warmup schedule %q: %w", s.Schedule, err)
	}
	s.entry = id
	s.cron.Start()

	s.log.Info(context.Background(), "warmup scheduler started",
		logger.String("schedule", s.Schedule),
		logger.Any("next_run", s.cron.Entry(id).Next),
	)
	return nil
}

// Stop stops scheduling and waits for a running job, or for ctx.
func (s *WarmupScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info(ctx, "warmup scheduler stopped")
	case <-ctx.Done():
		s.log.Warn(ctx, "warmup scheduler stop timed out", logger.Error(ctx.Err()))
	}
}

// RunNow computes the current month immediately. Results are cached per
// day, so the first run of a day recomputes and later runs that day are
// hits unless a write evicted them.
func (s *WarmupScheduler) RunNow(ctx context.Context) (*compensation.Batch, error) {
	period := generic.MonthPeriod(generic.DateOf(s.now(), s.Engine.Location()))
	start := time.Now()

	batch, err := s.Engine.ComputeAllCompensation(ctx, period)

	s.mu.Lock()
	s.lastRun, s.lastErr = start, err
	s.mu.Unlock()

	if err != nil {
		s.log.Error(ctx, "warmup failed", logger.Stringer("period", period), logger.Error(err))
		return nil, err
	}
	s.log.Info(ctx, "warmup finished",
		logger.Stringer("period", period),
		logger.Int("warmed", len(batch.Results)),
		logger.Int("failed", len(batch.Failures)),
		logger.Duration("took", time.Since(start)),
	)
	return batch, nil
}

// NextRun returns when the job fires next; zero before Start.
func (s *WarmupScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// LastRun reports the start time and outcome of the most recent run.
func (s *WarmupScheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}
