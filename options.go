package courier

import (
	"log/slog"
	"time"

	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/store"
)

// Option configures a Courier instance.
type Option func(*Courier) error

// WithStore sets the persistence backend for the Courier instance.
func WithStore(s store.Store) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Courier instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Courier) error {
		c.logger = logger
		return nil
	}
}

// WithMetrics sets the metric instruments for the Courier instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Courier) error {
		c.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the Courier instance.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Courier) error {
		c.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines per sweep.
func WithConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per sweep.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.RequestTimeout = d
		return nil
	}
}

// WithSweepInterval sets how often due deliveries are drained.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.SweepInterval = d
		return nil
	}
}

// WithPromoteInterval sets how often due retries are promoted.
func WithPromoteInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PromoteInterval = d
		return nil
	}
}

// WithCleanupHour sets the local hour of day for retention cleanup.
func WithCleanupHour(hour int) Option {
	return func(c *Courier) error {
		c.config.CleanupHour = hour
		return nil
	}
}

// WithRetention sets how long terminal deliveries are kept.
func WithRetention(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.Retention = d
		return nil
	}
}
