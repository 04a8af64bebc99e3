// Package scheduler drives the delivery engine's periodic work: the due
// sweep, the retry promotion sweep and daily log retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/courier/delivery"
)

// Config holds scheduler cadences.
type Config struct {
	// SweepInterval is how often due deliveries are drained.
	SweepInterval time.Duration
	// PromoteInterval is how often failed deliveries with a due retry time
	// are promoted back into the scheduled pool.
	PromoteInterval time.Duration
	// CleanupHour is the local hour of day at which retention cleanup runs.
	CleanupHour int
	// Retention is how long terminal deliveries are kept.
	Retention time.Duration
}

// DefaultConfig returns the standard cadences.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   time.Minute,
		PromoteInterval: 15 * time.Minute,
		CleanupHour:     3,
		Retention:       90 * 24 * time.Hour,
	}
}

// Scheduler owns the cron runner. Each job is wrapped with
// SkipIfStillRunning so a slow sweep never overlaps itself.
type Scheduler struct {
	cron   *cron.Cron
	engine *delivery.Engine
	config Config
	logger *slog.Logger
}

// New creates a scheduler for the given engine.
func New(engine *delivery.Engine, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 15 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}

	cronLogger := &slogCronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

// Start registers the jobs and begins the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Schedule(cron.Every(s.config.SweepInterval), s.job(ctx, "sweep", func(ctx context.Context) error {
		_, err := s.engine.ProcessDue(ctx)
		return err
	}))

	s.cron.Schedule(cron.Every(s.config.PromoteInterval), s.job(ctx, "promote", func(ctx context.Context) error {
		_, err := s.engine.PromoteRetries(ctx)
		return err
	}))

	cleanupSpec := fmt.Sprintf("0 %d * * *", s.config.CleanupHour)
	_, err := s.cron.AddJob(cleanupSpec, s.job(ctx, "cleanup", func(ctx context.Context) error {
		_, err := s.engine.Cleanup(ctx, s.config.Retention)
		return err
	}))
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// job adapts an engine call into a cron.Job with error logging.
func (s *Scheduler) job(ctx context.Context, name string, fn func(context.Context) error) cron.Job {
	return cron.FuncJob(func() {
		if err := fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled job failed", "job", name, "error", err)
		}
	})
}

// slogCronLogger adapts slog to the cron logger interface.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
