package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	"github.com/go-co-op/gocron"
)

// Runner performs one ingest run.
type Runner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// Scheduler repeats ingest runs at a fixed interval. A run that is still in
// progress when the next tick fires is not overlapped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. The first run starts as soon as Start is called.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the ingest job and starts the underlying scheduler. Runs
// use ctx, so cancelling it aborts the run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", s.interval)
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if ctx.Err() != nil {
			return
		}
		report, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled ingest run failed", "run_id", report.ID, "error", err)
			return
		}
		s.logger.Info("scheduled ingest run complete",
			"run_id", report.ID,
			"files", len(report.Files),
			"records_written", report.Written(),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule ingest job: %w", err)
	}

	s.logger.Info("scheduler started", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
