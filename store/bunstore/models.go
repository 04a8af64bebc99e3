package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/security"
	"github.com/xraph/courier/subscriber"
)

// Collection-valued fields are stored as explicit JSON text so the same
// schema works on both the Postgres and SQLite dialects.

// --- Subscriber model ---

type subscriberModel struct {
	bun.BaseModel `bun:"table:courier_subscribers"`

	ID                string          `bun:"id,pk"`
	FormID            string          `bun:"form_id"`
	URL               string          `bun:"url"`
	Description       string          `bun:"description"`
	Active            bool            `bun:"active"`
	Approval          string          `bun:"approval"`
	DeactivatedBy     *string         `bun:"deactivated_by"`
	AdminLocked       bool            `bun:"admin_locked"`
	EventTypes        json.RawMessage `bun:"event_types,type:jsonb"`
	AuthMode          string          `bun:"auth_mode"`
	AuthCredential    string          `bun:"auth_credential"`
	SigningSecret     string          `bun:"signing_secret"`
	VerificationToken string          `bun:"verification_token"`
	AllowedIPs        json.RawMessage `bun:"allowed_ips,type:jsonb"`
	IncludeFields     json.RawMessage `bun:"include_fields,type:jsonb"`
	ExcludeFields     json.RawMessage `bun:"exclude_fields,type:jsonb"`
	RetryCount        int             `bun:"retry_count"`
	RetryInterval     int             `bun:"retry_interval"`
	RateLimit         int             `bun:"rate_limit"`
	DailyLimit        int             `bun:"daily_limit"`
	DailyUsage        int             `bun:"daily_usage"`
	DailyResetAt      time.Time       `bun:"daily_reset_at,nullzero"`
	Headers           json.RawMessage `bun:"headers,type:jsonb"`
	FilterCondition   json.RawMessage `bun:"filter_condition,type:jsonb"`
	Metadata          json.RawMessage `bun:"metadata,type:jsonb"`
	CreatedAt         time.Time       `bun:"created_at,nullzero"`
	UpdatedAt         time.Time       `bun:"updated_at,nullzero"`
}

func toSubscriberModel(sub *subscriber.Subscriber) (*subscriberModel, error) {
	eventTypes, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return nil, fmt.Errorf("marshal event types: %w", err)
	}
	allowedIPs, err := json.Marshal(sub.AllowedIPs)
	if err != nil {
		return nil, fmt.Errorf("marshal allowed IPs: %w", err)
	}
	includeFields, err := json.Marshal(sub.IncludeFields)
	if err != nil {
		return nil, fmt.Errorf("marshal include fields: %w", err)
	}
	excludeFields, err := json.Marshal(sub.ExcludeFields)
	if err != nil {
		return nil, fmt.Errorf("marshal exclude fields: %w", err)
	}
	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	metadata, err := json.Marshal(sub.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
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
		AllowedIPs:        allowedIPs,
		IncludeFields:     includeFields,
		ExcludeFields:     excludeFields,
		RetryCount:        sub.RetryCount,
		RetryInterval:     sub.RetryInterval,
		RateLimit:         sub.RateLimit,
		DailyLimit:        sub.DailyLimit,
		DailyUsage:        sub.DailyUsage,
		DailyResetAt:      sub.DailyResetAt,
		Headers:           headers,
		FilterCondition:   sub.FilterCondition,
		Metadata:          metadata,
		CreatedAt:         sub.CreatedAt,
		UpdatedAt:         sub.UpdatedAt,
	}, nil
}

func fromSubscriberModel(m *subscriberModel) (*subscriber.Subscriber, error) {
	subID, err := id.ParseSubscriberID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscriber ID %q: %w", m.ID, err)
	}

	sub := &subscriber.Subscriber{
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
		AuthMode:          security.AuthMode(m.AuthMode),
		AuthCredential:    m.AuthCredential,
		SigningSecret:     m.SigningSecret,
		VerificationToken: m.VerificationToken,
		RetryCount:        m.RetryCount,
		RetryInterval:     m.RetryInterval,
		RateLimit:         m.RateLimit,
		DailyLimit:        m.DailyLimit,
		DailyUsage:        m.DailyUsage,
		DailyResetAt:      m.DailyResetAt,
		FilterCondition:   m.FilterCondition,
	}

	if err := unmarshalInto(m.EventTypes, &sub.EventTypes, "event types"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(m.AllowedIPs, &sub.AllowedIPs, "allowed IPs"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(m.IncludeFields, &sub.IncludeFields, "include fields"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(m.ExcludeFields, &sub.ExcludeFields, "exclude fields"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(m.Headers, &sub.Headers, "headers"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(m.Metadata, &sub.Metadata, "metadata"); err != nil {
		return nil, err
	}
	return sub, nil
}

func unmarshalInto(raw json.RawMessage, dst any, what string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

// --- Delivery model ---

type deliveryModel struct {
	bun.BaseModel `bun:"table:courier_deliveries"`

	ID            string          `bun:"id,pk"`
	SubscriberID  string          `bun:"subscriber_id"`
	SubmissionID  string          `bun:"submission_id"`
	EventType     string          `bun:"event_type"`
	State         string          `bun:"state"`
	RequestBody   json.RawMessage `bun:"request_body,type:jsonb"`
	RequestAt     time.Time       `bun:"request_at,nullzero"`
	ResponseAt    *time.Time      `bun:"response_at"`
	StatusCode    int             `bun:"status_code"`
	ResponseBody  string          `bun:"response_body"`
	ErrorMessage  string          `bun:"error_message"`
	AttemptCount  int             `bun:"attempt_count"`
	NextAttemptAt *time.Time      `bun:"next_attempt_at"`
	CreatedAt     time.Time       `bun:"created_at,nullzero"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`
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
