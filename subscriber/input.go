package subscriber

import (
	"encoding/json"

	"github.com/xraph/courier/event"
	"github.com/xraph/courier/security"
)

// Input is the creation/update payload for subscribers.
type Input struct {
	// FormID identifies the owning form. Required on create.
	FormID string `json:"form_id"`

	// URL is the webhook delivery URL. Required on create.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description,omitempty"`

	// EventTypes is the subscribed event type set. Required on create.
	EventTypes []event.Type `json:"event_types"`

	// AuthMode selects the outbound authentication scheme (default: none).
	AuthMode security.AuthMode `json:"auth_mode,omitempty"`

	// AuthCredential is the secret material for AuthMode.
	AuthCredential string `json:"auth_credential,omitempty"`

	// SigningSecret is the HMAC signing secret. Auto-generated when empty
	// on create.
	SigningSecret string `json:"signing_secret,omitempty"`

	// VerificationToken is the static X-Webhook-Token value.
	VerificationToken string `json:"verification_token,omitempty"`

	// AllowedIPs restricts inbound confirmation callers.
	AllowedIPs []string `json:"allowed_ips,omitempty"`

	// IncludeFields / ExcludeFields filter the submission data.
	IncludeFields []string `json:"include_fields,omitempty"`
	ExcludeFields []string `json:"exclude_fields,omitempty"`

	// RetryCount is the maximum number of delivery attempts.
	RetryCount int `json:"retry_count,omitempty"`

	// RetryInterval is the base backoff interval in seconds.
	RetryInterval int `json:"retry_interval,omitempty"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit,omitempty"`

	// DailyLimit caps deliveries per day. 0 means unlimited.
	DailyLimit int `json:"daily_limit,omitempty"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// FilterCondition is the filter predicate as JSON.
	FilterCondition json.RawMessage `json:"filter_condition,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListOpts configures filtering and pagination for subscriber listing.
type ListOpts struct {
	Offset   int
	Limit    int
	Active   *bool
	Approval *Approval
}
