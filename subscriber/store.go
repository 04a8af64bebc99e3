package subscriber

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for webhook subscribers.
type Store interface {
	// CreateSubscriber persists a new subscriber.
	CreateSubscriber(ctx context.Context, s *Subscriber) error

	// GetSubscriber returns a subscriber by ID.
	GetSubscriber(ctx context.Context, subID id.ID) (*Subscriber, error)

	// UpdateSubscriber modifies an existing subscriber.
	UpdateSubscriber(ctx context.Context, s *Subscriber) error

	// DeleteSubscriber removes a subscriber.
	DeleteSubscriber(ctx context.Context, subID id.ID) error

	// ListSubscribers returns subscribers for a form, optionally filtered.
	ListSubscribers(ctx context.Context, formID string, opts ListOpts) ([]*Subscriber, error)

	// Resolve returns all subscribers registered for a form. This is the
	// hot path for every published event; the eligibility gate runs on
	// the result.
	Resolve(ctx context.Context, formID string) ([]*Subscriber, error)

	// IncrementUsageIfUnderLimit atomically bumps the daily usage counter
	// when it is still below the configured limit, as a single
	// read-modify-write statement. Returns false when the limit has been
	// reached. Subscribers without a limit always return true without a
	// counter write.
	IncrementUsageIfUnderLimit(ctx context.Context, subID id.ID) (bool, error)

	// ResetDailyUsage zeroes the usage counter and advances the reset
	// boundary. Implementations must guard against concurrent resets of
	// the same window (reset exactly once per boundary crossing).
	ResetDailyUsage(ctx context.Context, subID id.ID, nextReset time.Time) error
}
