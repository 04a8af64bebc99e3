package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID            string          `json:"id"`
	SubscriberID  string          `json:"subscriber_id"`
	SubmissionID  string          `json:"submission_id,omitempty"`
	EventType     string          `json:"event_type"`
	State         string          `json:"state"`
	RequestBody   json.RawMessage `json:"request_body"`
	RequestAt     time.Time       `json:"request_at"`
	ResponseAt    *time.Time      `json:"response_at,omitempty"`
	StatusCode    int             `json:"status_code,omitempty"`
	ResponseBody  string          `json:"response_body,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:            d.ID.String(),
		SubscriberID:  d.SubscriberID.String(),
		SubmissionID:  d.SubmissionID,
		EventType:     string(d.EventType),
		State:         string(d.State),
		RequestBody:   d.RequestBody,
		RequestAt:     d.RequestAt,
		ResponseAt:    d.ResponseAt,
		StatusCode:    d.StatusCode,
		ResponseBody:  d.ResponseBody,
		ErrorMessage:  d.ErrorMessage,
		AttemptCount:  d.AttemptCount,
		NextAttemptAt: d.NextAttemptAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseSubscriberID(m.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("parse subscriber ID %q: %w", m.SubscriberID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            delID,
		SubscriberID:  subID,
		SubmissionID:  m.SubmissionID,
		EventType:     event.Type(m.EventType),
		State:         delivery.State(m.State),
		RequestBody:   m.RequestBody,
		RequestAt:     m.RequestAt,
		ResponseAt:    m.ResponseAt,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		ErrorMessage:  m.ErrorMessage,
		AttemptCount:  m.AttemptCount,
		NextAttemptAt: m.NextAttemptAt,
	}, nil
}

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	return s.CreateDeliveries(ctx, []*delivery.Delivery{d})
}

func (s *Store) CreateDeliveries(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("courier/redis: marshal delivery: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
		pipe.ZAdd(ctx, zDeliveryAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		pipe.ZAdd(ctx, zDeliverySub+m.SubscriberID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		if m.NextAttemptAt != nil {
			pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(*m.NextAttemptAt), Member: m.ID})
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: create deliveries: %w", err)
	}
	return nil
}

// claimScript atomically pops due delivery IDs from a sorted set. Removal
// from the set is the claim; no other sweep can pop the same member.
// KEYS[1] = due sorted set
// ARGV[1] = current score threshold
// ARGV[2] = limit
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	now := time.Now().UTC()
	ids, err := claimScript.Run(ctx, s.rdb,
		[]string{zDeliveryDue},
		strconv.FormatFloat(scoreFromTime(now), 'f', -1, 64),
		limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: claim due: %w", err)
	}
	return s.markInProgress(ctx, ids)
}

// markInProgress loads claimed deliveries and persists their in_progress
// state.
func (s *Store) markInProgress(ctx context.Context, ids []string) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, len(ids))
	pipe := s.rdb.Pipeline()
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				continue // purged between claim and load
			}
			return nil, err
		}
		m.State = string(delivery.StateInProgress)
		m.UpdatedAt = time.Now().UTC()

		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("courier/redis: marshal delivery: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
		pipe.ZAdd(ctx, zDeliveryClaimed, goredis.Z{Score: scoreFromTime(m.UpdatedAt), Member: m.ID})

		d, err := fromDeliveryModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if _, err := pipe.Exec(ctx); err != nil && len(result) > 0 {
		return nil, fmt.Errorf("courier/redis: mark in progress: %w", err)
	}
	return result, nil
}

func (s *Store) ClaimDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, err
	}
	if m.State == string(delivery.StateInProgress) || m.State == string(delivery.StateSucceeded) {
		return nil, courier.ErrDeliveryNotFound
	}

	s.rdb.ZRem(ctx, zDeliveryDue, m.ID)
	s.rdb.ZRem(ctx, zDeliveryRetry, m.ID)

	m.State = string(delivery.StateInProgress)
	m.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, entityKey(prefixDelivery, m.ID), m); err != nil {
		return nil, fmt.Errorf("courier/redis: claim delivery: %w", err)
	}
	s.rdb.ZAdd(ctx, zDeliveryClaimed, goredis.Z{Score: scoreFromTime(m.UpdatedAt), Member: m.ID})
	return fromDeliveryModel(m)
}

// UpdateDelivery persists a delivery and re-files it in the due and retry
// indexes according to its new state.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	exists, err := s.rdb.Exists(ctx, entityKey(prefixDelivery, d.ID.String())).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return courier.ErrDeliveryNotFound
	}

	d.UpdatedAt = time.Now().UTC()
	m := toDeliveryModel(d)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("courier/redis: marshal delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
	pipe.ZRem(ctx, zDeliveryDue, m.ID)
	pipe.ZRem(ctx, zDeliveryRetry, m.ID)
	pipe.ZRem(ctx, zDeliveryClaimed, m.ID)
	if m.NextAttemptAt != nil {
		switch delivery.State(m.State) {
		case delivery.StatePending, delivery.StateScheduled:
			pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(*m.NextAttemptAt), Member: m.ID})
		case delivery.StateFailed:
			pipe.ZAdd(ctx, zDeliveryRetry, goredis.Z{Score: scoreFromTime(*m.NextAttemptAt), Member: m.ID})
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListBySubscriber(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDeliverySub+subID.String(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(m)
		if err != nil {
			return nil, err
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
		result = append(result, d)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListRetryable(ctx context.Context, now time.Time, limit int) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zDeliveryRetry, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(scoreFromTime(now), 'f', -1, 64),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

// ListStaleClaims returns in-progress deliveries claimed before the cutoff.
// Entries whose record left in_progress without an index update are dropped
// from the claimed set as they are seen.
func (s *Store) ListStaleClaims(ctx context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zDeliveryClaimed, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(scoreFromTime(cutoff), 'f', -1, 64),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zDeliveryClaimed, delID)
				continue
			}
			return nil, err
		}
		if delivery.State(m.State) != delivery.StateInProgress {
			s.rdb.ZRem(ctx, zDeliveryClaimed, delID)
			continue
		}
		d, err := fromDeliveryModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zDeliveryAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(scoreFromTime(cutoff), 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zDeliveryAll, delID)
				continue
			}
			return purged, err
		}
		d, err := fromDeliveryModel(m)
		if err != nil {
			return purged, err
		}
		if !d.Terminal() {
			continue
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDelivery, delID))
		pipe.ZRem(ctx, zDeliveryAll, delID)
		pipe.ZRem(ctx, zDeliveryDue, delID)
		pipe.ZRem(ctx, zDeliveryRetry, delID)
		pipe.ZRem(ctx, zDeliverySub+m.SubscriberID, delID)
		if _, err := pipe.Exec(ctx); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *Store) CountByState(ctx context.Context, state delivery.State) (int64, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryAll, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	var n int64
	for _, delID := range ids {
		m := new(deliveryModel)
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return 0, err
		}
		if delivery.State(m.State) == state {
			n++
		}
	}
	return n, nil
}

// Stats aggregates a subscriber's deliveries over the trailing number of days.
func (s *Store) Stats(ctx context.Context, subID id.ID, days int) (*delivery.Stats, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1))
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, now.Location())

	ds, err := s.ListBySubscriber(ctx, subID, delivery.ListOpts{From: &fromDay})
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*delivery.DayStats)
	stats := &delivery.Stats{}
	var latencySum, latencyCount int64

	for _, d := range ds {
		day := d.CreatedAt.In(now.Location()).Format("2006-01-02")
		bucket, ok := byDay[day]
		if !ok {
			bucket = &delivery.DayStats{Date: day}
			byDay[day] = bucket
		}

		stats.Total++
		switch {
		case d.State == delivery.StateSucceeded:
			stats.Succeeded++
			bucket.Succeeded++
		case d.Terminal():
			stats.Failed++
			bucket.Failed++
		default:
			bucket.Pending++
		}

		if d.ResponseAt != nil {
			latencySum += int64(d.LatencyMs())
			latencyCount++
		}
	}

	for i := 0; i < days; i++ {
		day := fromDay.AddDate(0, 0, i).Format("2006-01-02")
		if bucket, ok := byDay[day]; ok {
			stats.Days = append(stats.Days, *bucket)
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
