// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/subscriber"
)

// compile-time interface check.
var _ courierstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	subscribers map[string]*subscriber.Subscriber // keyed by ID string
	deliveries  map[string]*delivery.Delivery     // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscribers: make(map[string]*subscriber.Subscriber),
		deliveries:  make(map[string]*delivery.Delivery),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return courier.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// subscriber.Store
// ──────────────────────────────────────────────────

// CreateSubscriber persists a new subscriber.
func (s *Store) CreateSubscriber(_ context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[sub.ID.String()] = copySubscriber(sub)
	return nil
}

// GetSubscriber returns a copy of the subscriber by ID.
func (s *Store) GetSubscriber(_ context.Context, subID id.ID) (*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscribers[subID.String()]
	if !ok {
		return nil, courier.ErrSubscriberNotFound
	}
	return copySubscriber(sub), nil
}

// UpdateSubscriber modifies an existing subscriber. The quota counters
// belong to IncrementUsageIfUnderLimit and ResetDailyUsage; a stale copy
// carried through a generic update must not roll them back.
func (s *Store) UpdateSubscriber(_ context.Context, sub *subscriber.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.subscribers[sub.ID.String()]
	if !ok {
		return courier.ErrSubscriberNotFound
	}
	sub.UpdatedAt = time.Now().UTC()
	c := copySubscriber(sub)
	c.DailyUsage = cur.DailyUsage
	c.DailyResetAt = cur.DailyResetAt
	s.subscribers[sub.ID.String()] = c
	return nil
}

// DeleteSubscriber removes a subscriber.
func (s *Store) DeleteSubscriber(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[subID.String()]; !ok {
		return courier.ErrSubscriberNotFound
	}
	delete(s.subscribers, subID.String())
	return nil
}

// ListSubscribers returns subscribers for a form, newest first.
func (s *Store) ListSubscribers(_ context.Context, formID string, opts subscriber.ListOpts) ([]*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscriber.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if formID != "" && sub.FormID != formID {
			continue
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		if opts.Approval != nil && sub.Approval != *opts.Approval {
			continue
		}
		result = append(result, copySubscriber(sub))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Resolve returns all subscribers registered for a form.
func (s *Store) Resolve(_ context.Context, formID string) ([]*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscriber.Subscriber, 0)
	for _, sub := range s.subscribers {
		if sub.FormID != formID {
			continue
		}
		result = append(result, copySubscriber(sub))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// IncrementUsageIfUnderLimit bumps the daily usage counter when still under
// the limit. The whole read-modify-write happens under one lock, matching
// the single-statement guarantee of the SQL stores.
func (s *Store) IncrementUsageIfUnderLimit(_ context.Context, subID id.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[subID.String()]
	if !ok {
		return false, courier.ErrSubscriberNotFound
	}
	if sub.DailyLimit <= 0 {
		return true, nil
	}
	if sub.DailyUsage >= sub.DailyLimit {
		return false, nil
	}
	sub.DailyUsage++
	return true, nil
}

// ResetDailyUsage zeroes the usage counter and advances the reset boundary.
// A reset whose boundary the subscriber has already reached is a no-op, so
// concurrent gate checks reset each window exactly once.
func (s *Store) ResetDailyUsage(_ context.Context, subID id.ID, nextReset time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[subID.String()]
	if !ok {
		return courier.ErrSubscriberNotFound
	}
	if !sub.DailyResetAt.Before(nextReset) {
		return nil
	}
	sub.DailyUsage = 0
	sub.DailyResetAt = nextReset
	return nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// CreateDelivery persists a new delivery.
func (s *Store) CreateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// CreateDeliveries persists a fan-out batch.
func (s *Store) CreateDeliveries(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		s.deliveries[d.ID.String()] = copyDelivery(d)
	}
	return nil
}

// ClaimDue moves due deliveries into StateInProgress and returns copies so
// callers can mutate without holding a lock. The state transition under one
// lock guarantees no double-claim.
func (s *Store) ClaimDue(_ context.Context, limit int) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))

	for _, d := range s.deliveries {
		if d.State != delivery.StatePending && d.State != delivery.StateScheduled {
			continue
		}
		if d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(*candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		d.State = delivery.StateInProgress
		d.UpdatedAt = now
		result = append(result, copyDelivery(d))
	}

	return result, nil
}

// ClaimDelivery claims one specific non-terminal delivery for an immediate
// out-of-band attempt.
func (s *Store) ClaimDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, courier.ErrDeliveryNotFound
	}
	if d.State == delivery.StateInProgress {
		return nil, courier.ErrDeliveryNotFound
	}
	d.State = delivery.StateInProgress
	d.UpdatedAt = time.Now().UTC()
	return copyDelivery(d), nil
}

// UpdateDelivery modifies a delivery, releasing its claim via the state
// written by the caller.
func (s *Store) UpdateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID.String()]; !ok {
		return courier.ErrDeliveryNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a copy of the delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, courier.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// ListBySubscriber returns delivery history for a subscriber, newest first.
func (s *Store) ListBySubscriber(_ context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.SubscriberID.String() != subID.String() {
			continue
		}
		if opts.State != nil && d.State != *opts.State {
			continue
		}
		if opts.From != nil && d.CreatedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && d.CreatedAt.After(*opts.To) {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListStaleClaims returns in-progress deliveries claimed before the cutoff.
func (s *Store) ListStaleClaims(_ context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0)
	for _, d := range s.deliveries {
		if d.State != delivery.StateInProgress {
			continue
		}
		if !d.UpdatedAt.Before(cutoff) {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// ListRetryable returns failed deliveries whose retry time has come due.
func (s *Store) ListRetryable(_ context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0)
	for _, d := range s.deliveries {
		if d.State != delivery.StateFailed {
			continue
		}
		if d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NextAttemptAt.Before(*result[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// PurgeOlderThan deletes terminal deliveries created before the cutoff.
func (s *Store) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, d := range s.deliveries {
		if !d.Terminal() {
			continue
		}
		if !d.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.deliveries, key)
		purged++
	}
	return purged, nil
}

// CountByState returns the number of deliveries in the given state.
func (s *Store) CountByState(_ context.Context, state delivery.State) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.deliveries {
		if d.State == state {
			n++
		}
	}
	return n, nil
}

// Stats aggregates a subscriber's deliveries over the trailing number of days.
func (s *Store) Stats(_ context.Context, subID id.ID, days int) (*delivery.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 7
	}
	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1))
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, now.Location())

	byDay := make(map[string]*delivery.DayStats)
	stats := &delivery.Stats{}
	var latencySum, latencyCount int64

	for _, d := range s.deliveries {
		if d.SubscriberID.String() != subID.String() {
			continue
		}
		created := d.CreatedAt.In(now.Location())
		if created.Before(fromDay) {
			continue
		}

		day := created.Format("2006-01-02")
		ds, ok := byDay[day]
		if !ok {
			ds = &delivery.DayStats{Date: day}
			byDay[day] = ds
		}

		stats.Total++
		switch {
		case d.State == delivery.StateSucceeded:
			stats.Succeeded++
			ds.Succeeded++
		case d.Terminal():
			stats.Failed++
			ds.Failed++
		default:
			ds.Pending++
		}

		if d.ResponseAt != nil {
			latencySum += int64(d.LatencyMs())
			latencyCount++
		}
	}

	for i := 0; i < days; i++ {
		day := fromDay.AddDate(0, 0, i).Format("2006-01-02")
		if ds, ok := byDay[day]; ok {
			stats.Days = append(stats.Days, *ds)
		} else {
			stats.Days = append(stats.Days, delivery.DayStats{Date: day})
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	if latencyCount > 0 {
		stats.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copySubscriber(sub *subscriber.Subscriber) *subscriber.Subscriber {
	c := *sub
	c.EventTypes = append(c.EventTypes[:0:0], c.EventTypes...)
	c.AllowedIPs = append(c.AllowedIPs[:0:0], c.AllowedIPs...)
	c.IncludeFields = append(c.IncludeFields[:0:0], c.IncludeFields...)
	c.ExcludeFields = append(c.ExcludeFields[:0:0], c.ExcludeFields...)
	if sub.Headers != nil {
		c.Headers = make(map[string]string, len(sub.Headers))
		for k, v := range sub.Headers {
			c.Headers[k] = v
		}
	}
	if sub.Metadata != nil {
		c.Metadata = make(map[string]string, len(sub.Metadata))
		for k, v := range sub.Metadata {
			c.Metadata[k] = v
		}
	}
	if sub.DeactivatedBy != nil {
		v := *sub.DeactivatedBy
		c.DeactivatedBy = &v
	}
	return &c
}

func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	c := *d
	c.RequestBody = append(c.RequestBody[:0:0], c.RequestBody...)
	if d.ResponseAt != nil {
		v := *d.ResponseAt
		c.ResponseAt = &v
	}
	if d.NextAttemptAt != nil {
		v := *d.NextAttemptAt
		c.NextAttemptAt = &v
	}
	return &c
}
