package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/security"
	"github.com/xraph/courier/subscriber"
)

// subscriberModel is the JSON representation stored in Redis. It carries the
// secret fields the domain type excludes from serialization.
type subscriberModel struct {
	ID                string            `json:"id"`
	FormID            string            `json:"form_id"`
	URL               string            `json:"url"`
	Description       string            `json:"description,omitempty"`
	Active            bool              `json:"active"`
	Approval          string            `json:"approval"`
	DeactivatedBy     *string           `json:"deactivated_by,omitempty"`
	AdminLocked       bool              `json:"admin_locked"`
	EventTypes        []string          `json:"event_types"`
	AuthMode          string            `json:"auth_mode"`
	AuthCredential    string            `json:"auth_credential,omitempty"`
	SigningSecret     string            `json:"signing_secret,omitempty"`
	VerificationToken string            `json:"verification_token,omitempty"`
	AllowedIPs        []string          `json:"allowed_ips,omitempty"`
	IncludeFields     []string          `json:"include_fields,omitempty"`
	ExcludeFields     []string          `json:"exclude_fields,omitempty"`
	RetryCount        int               `json:"retry_count"`
	RetryInterval     int               `json:"retry_interval"`
	RateLimit         int               `json:"rate_limit"`
	DailyLimit        int               `json:"daily_limit"`
	Headers           map[string]string `json:"headers,omitempty"`
	FilterCondition   json.RawMessage   `json:"filter_condition,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toSubscriberModel(sub *subscriber.Subscriber) *subscriberModel {
	eventTypes := make([]string, len(sub.EventTypes))
	for i, et := range sub.EventTypes {
		eventTypes[i] = string(et)
	}
	return &subscriberModel{
		ID:                sub.ID.String(),
		FormID:            sub.FormID,
		URL:               sub.URL,
		Description:       sub.Description,
		Active:            sub.Active,
		Approval:          string(sub.Approval),
		DeactivatedBy:     sub.DeactivatedBy,
		AdminLocked:       sub.AdminLocked,
		EventTypes:        eventTypes,
		AuthMode:          string(sub.AuthMode),
		AuthCredential:    sub.AuthCredential,
		SigningSecret:     sub.SigningSecret,
		VerificationToken: sub.VerificationToken,
		AllowedIPs:        sub.AllowedIPs,
		IncludeFields:     sub.IncludeFields,
		ExcludeFields:     sub.ExcludeFields,
		RetryCount:        sub.RetryCount,
		RetryInterval:     sub.RetryInterval,
		RateLimit:         sub.RateLimit,
		DailyLimit:        sub.DailyLimit,
		Headers:           sub.Headers,
		FilterCondition:   sub.FilterCondition,
		Metadata:          sub.Metadata,
		CreatedAt:         sub.CreatedAt,
		UpdatedAt:         sub.UpdatedAt,
	}
}

func fromSubscriberModel(m *subscriberModel) (*subscriber.Subscriber, error) {
	subID, err := id.ParseSubscriberID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscriber ID %q: %w", m.ID, err)
	}
	eventTypes := make([]event.Type, len(m.EventTypes))
	for i, et := range m.EventTypes {
		eventTypes[i] = event.Type(et)
	}
	return &subscriber.Subscriber{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                subID,
		FormID:            m.FormID,
		URL:               m.URL,
		Description:       m.Description,
		Active:            m.Active,
		Approval:          subscriber.Approval(m.Approval),
		DeactivatedBy:     m.DeactivatedBy,
		AdminLocked:       m.AdminLocked,
		EventTypes:        eventTypes,
		AuthMode:          security.AuthMode(m.AuthMode),
		AuthCredential:    m.AuthCredential,
		SigningSecret:     m.SigningSecret,
		VerificationToken: m.VerificationToken,
		AllowedIPs:        security.AllowList(m.AllowedIPs),
		IncludeFields:     m.IncludeFields,
		ExcludeFields:     m.ExcludeFields,
		RetryCount:        m.RetryCount,
		RetryInterval:     m.RetryInterval,
		RateLimit:         m.RateLimit,
		DailyLimit:        m.DailyLimit,
		Headers:           m.Headers,
		FilterCondition:   m.FilterCondition,
		Metadata:          m.Metadata,
	}, nil
}

func (s *Store) CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	m := toSubscriberModel(sub)
	if err := s.setEntity(ctx, entityKey(prefixSubscriber, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: create subscriber: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zSubscriberAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zSubscriberForm+m.FormID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if !sub.DailyResetAt.IsZero() {
		pipe.Set(ctx, resetAtKey(m.ID), sub.DailyResetAt.Unix(), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: create subscriber indexes: %w", err)
	}
	return nil
}

// GetSubscriber returns a subscriber with its quota counters overlaid from
// the dedicated usage and reset keys.
func (s *Store) GetSubscriber(ctx context.Context, subID id.ID) (*subscriber.Subscriber, error) {
	return s.getSubscriber(ctx, subID.String())
}

func (s *Store) getSubscriber(ctx context.Context, subID string) (*subscriber.Subscriber, error) {
	m := new(subscriberModel)
	if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID), m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrSubscriberNotFound
		}
		return nil, err
	}
	sub, err := fromSubscriberModel(m)
	if err != nil {
		return nil, err
	}
	return sub, s.overlayQuota(ctx, sub)
}

func (s *Store) overlayQuota(ctx context.Context, sub *subscriber.Subscriber) error {
	vals, err := s.rdb.MGet(ctx, usageKey(sub.ID.String()), resetAtKey(sub.ID.String())).Result()
	if err != nil {
		return err
	}
	if raw, ok := vals[0].(string); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			sub.DailyUsage = n
		}
	}
	if raw, ok := vals[1].(string); ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			sub.DailyResetAt = time.Unix(unix, 0).UTC()
		}
	}
	return nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error {
	old := new(subscriberModel)
	if err := s.getEntity(ctx, entityKey(prefixSubscriber, sub.ID.String()), old); err != nil {
		if isRedisNil(err) {
			return courier.ErrSubscriberNotFound
		}
		return err
	}

	sub.UpdatedAt = time.Now().UTC()
	m := toSubscriberModel(sub)
	if err := s.setEntity(ctx, entityKey(prefixSubscriber, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: update subscriber: %w", err)
	}

	if old.FormID != m.FormID {
		pipe := s.rdb.Pipeline()
		pipe.ZRem(ctx, zSubscriberForm+old.FormID, m.ID)
		pipe.ZAdd(ctx, zSubscriberForm+m.FormID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("courier/redis: update subscriber indexes: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteSubscriber(ctx context.Context, subID id.ID) error {
	m := new(subscriberModel)
	if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID.String()), m); err != nil {
		if isRedisNil(err) {
			return courier.ErrSubscriberNotFound
		}
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, entityKey(prefixSubscriber, m.ID), usageKey(m.ID), resetAtKey(m.ID))
	pipe.ZRem(ctx, zSubscriberAll, m.ID)
	pipe.ZRem(ctx, zSubscriberForm+m.FormID, m.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ListSubscribers(ctx context.Context, formID string, opts subscriber.ListOpts) ([]*subscriber.Subscriber, error) {
	indexKey := zSubscriberAll
	if formID != "" {
		indexKey = zSubscriberForm + formID
	}

	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*subscriber.Subscriber, 0, len(ids))
	for _, subID := range ids {
		sub, err := s.getSubscriber(ctx, subID)
		if err != nil {
			if errors.Is(err, courier.ErrSubscriberNotFound) {
				continue // index lag
			}
			return nil, err
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		if opts.Approval != nil && sub.Approval != *opts.Approval {
			continue
		}
		result = append(result, sub)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, formID string) ([]*subscriber.Subscriber, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriberForm+formID, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*subscriber.Subscriber, 0, len(ids))
	for _, subID := range ids {
		sub, err := s.getSubscriber(ctx, subID)
		if err != nil {
			if errors.Is(err, courier.ErrSubscriberNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, sub)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// incrementScript consumes one unit of daily quota when the counter is
// still under the limit.
// KEYS[1] = usage counter key
// ARGV[1] = daily limit
var incrementScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
if limit <= 0 then return 1 end
local usage = tonumber(redis.call('GET', KEYS[1]) or '0')
if usage >= limit then return 0 end
redis.call('INCR', KEYS[1])
return 1
`)

// IncrementUsageIfUnderLimit consumes quota via a Lua script so the
// check-and-increment is a single atomic step.
func (s *Store) IncrementUsageIfUnderLimit(ctx context.Context, subID id.ID) (bool, error) {
	m := new(subscriberModel)
	if err := s.getEntity(ctx, entityKey(prefixSubscriber, subID.String()), m); err != nil {
		if isRedisNil(err) {
			return false, courier.ErrSubscriberNotFound
		}
		return false, err
	}
	if m.DailyLimit <= 0 {
		return true, nil
	}

	res, err := incrementScript.Run(ctx, s.rdb,
		[]string{usageKey(subID.String())},
		m.DailyLimit,
	).Int()
	if err != nil {
		return false, fmt.Errorf("courier/redis: increment usage: %w", err)
	}
	return res == 1, nil
}

// resetScript zeroes the usage counter and advances the reset boundary,
// but only when the stored boundary is older than the requested one, so a
// window resets exactly once however many gate checks race across it.
// KEYS[1] = usage counter key
// KEYS[2] = reset boundary key
// ARGV[1] = next reset boundary (unix seconds)
var resetScript = goredis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current >= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], 0)
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

func (s *Store) ResetDailyUsage(ctx context.Context, subID id.ID, nextReset time.Time) error {
	err := resetScript.Run(ctx, s.rdb,
		[]string{usageKey(subID.String()), resetAtKey(subID.String())},
		nextReset.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("courier/redis: reset daily usage: %w", err)
	}
	return nil
}
