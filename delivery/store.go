package delivery

import (
	"context"
	"time"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// CreateDelivery persists a new pending delivery.
	CreateDelivery(ctx context.Context, d *Delivery) error

	// CreateDeliveries persists multiple deliveries atomically (fan-out).
	CreateDeliveries(ctx context.Context, ds []*Delivery) error

	// ClaimDue atomically moves up to limit due deliveries (pending, or
	// scheduled with NextAttemptAt <= now) into StateInProgress and
	// returns them. Implementations must guarantee no double-claim
	// (e.g. SKIP LOCKED).
	ClaimDue(ctx context.Context, limit int) ([]*Delivery, error)

	// ClaimDelivery atomically claims one specific non-terminal delivery
	// for an out-of-band attempt ("retry now").
	ClaimDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// UpdateDelivery modifies a delivery (state, attempt count, response
	// fields, next attempt time) and releases any claim.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListBySubscriber returns delivery history for a subscriber.
	ListBySubscriber(ctx context.Context, subID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListRetryable returns failed deliveries that still carry a due
	// NextAttemptAt, for the promotion sweep.
	ListRetryable(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)

	// ListStaleClaims returns in-progress deliveries whose claim predates
	// the cutoff. A claim whose outcome was never written (crash,
	// cancelled sweep) must eventually show up here so it can be re-filed.
	ListStaleClaims(ctx context.Context, cutoff time.Time, limit int) ([]*Delivery, error)

	// PurgeOlderThan deletes deliveries created before the cutoff and
	// returns the number removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByState returns the number of deliveries in the given state.
	CountByState(ctx context.Context, state State) (int64, error)

	// Stats aggregates a subscriber's deliveries over the trailing number
	// of days.
	Stats(ctx context.Context, subID id.ID, days int) (*Stats, error)
}
