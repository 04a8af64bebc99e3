package courier

import "time"

// Config holds the configuration for a Courier instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines per sweep.
	Concurrency int

	// BatchSize is the maximum number of deliveries claimed per sweep.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// ClaimLease is how long a claimed delivery may sit without an outcome
	// before the promotion sweep re-files it.
	ClaimLease time.Duration

	// SweepInterval is how often due deliveries are drained.
	SweepInterval time.Duration

	// PromoteInterval is how often failed deliveries with a due retry time
	// are promoted back into the scheduled pool.
	PromoteInterval time.Duration

	// CleanupHour is the local hour of day at which retention cleanup runs.
	CleanupHour int

	// Retention is how long terminal deliveries are kept before cleanup.
	Retention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     8,
		BatchSize:       50,
		RequestTimeout:  10 * time.Second,
		ClaimLease:      5 * time.Minute,
		SweepInterval:   1 * time.Minute,
		PromoteInterval: 15 * time.Minute,
		CleanupHour:     3,
		Retention:       90 * 24 * time.Hour,
	}
}
