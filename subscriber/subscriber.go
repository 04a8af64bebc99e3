// Package subscriber holds webhook subscriber configuration and the
// eligibility rules deciding which events each subscriber receives.
package subscriber

import (
	"encoding/json"
	"time"

	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/security"
)

// Approval is the administrator approval state of a subscriber.
// Pending and rejected both block delivery; only an explicit approval
// allows it.
type Approval string

// Approval states.
const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// Subscriber represents one webhook configuration bound to a form.
type Subscriber struct {
	entity.Entity

	// ID is the unique TypeID for this subscriber.
	ID id.ID `json:"id"`

	// FormID identifies the owning form.
	FormID string `json:"form_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this subscriber.
	Description string `json:"description,omitempty"`

	// Active is the owner-controlled on/off switch.
	Active bool `json:"active"`

	// Approval is the administrator approval state.
	Approval Approval `json:"approval"`

	// DeactivatedBy records the administrator who force-disabled this
	// subscriber. While set, the owner cannot re-activate it.
	DeactivatedBy *string `json:"deactivated_by,omitempty"`

	// AdminLocked freezes all owner edits.
	AdminLocked bool `json:"admin_locked"`

	// EventTypes is the non-empty set of subscribed event types.
	EventTypes []event.Type `json:"event_types"`

	// AuthMode selects the outbound authentication scheme.
	AuthMode security.AuthMode `json:"auth_mode"`

	// AuthCredential is the secret material for AuthMode. Never serialized.
	AuthCredential string `json:"-"`

	// SigningSecret is the HMAC signing secret. Never serialized.
	SigningSecret string `json:"-"`

	// VerificationToken is a static shared secret sent as X-Webhook-Token.
	// Never serialized.
	VerificationToken string `json:"-"`

	// AllowedIPs restricts which caller IPs may use inbound confirmation
	// endpoints. Empty means unrestricted.
	AllowedIPs security.AllowList `json:"allowed_ips,omitempty"`

	// IncludeFields limits the submission data sent to these field IDs.
	// Takes precedence over ExcludeFields when both are set.
	IncludeFields []string `json:"include_fields,omitempty"`

	// ExcludeFields removes these field IDs from the submission data.
	ExcludeFields []string `json:"exclude_fields,omitempty"`

	// RetryCount is the maximum number of delivery attempts.
	RetryCount int `json:"retry_count"`

	// RetryInterval is the base backoff interval in seconds.
	RetryInterval int `json:"retry_interval"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// DailyLimit caps deliveries per day. 0 means unlimited.
	DailyLimit int `json:"daily_limit"`

	// DailyUsage is the running delivery count for the current window.
	DailyUsage int `json:"daily_usage"`

	// DailyResetAt is when the usage counter next resets.
	DailyResetAt time.Time `json:"daily_reset_at"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// FilterCondition is the stored filter predicate (condition.Condition
	// as JSON). Malformed conditions fail closed at evaluation time.
	FilterCondition json.RawMessage `json:"filter_condition,omitempty"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubscribesTo reports whether t is in the subscribed event type set.
func (s *Subscriber) SubscribesTo(t event.Type) bool {
	for _, et := range s.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Deliverable reports whether the subscriber may receive deliveries at all:
// active, not administrator-deactivated, and approved. The dispatcher
// re-checks this at send time since state may change between enqueue and
// dispatch.
func (s *Subscriber) Deliverable() (string, bool) {
	switch {
	case !s.Active:
		return "subscriber inactive", false
	case s.DeactivatedBy != nil:
		return "subscriber deactivated by administrator", false
	case s.Approval != ApprovalApproved:
		return "subscriber not approved", false
	default:
		return "", true
	}
}

// QuotaWindowExpired reports whether the daily usage window has rolled over.
func (s *Subscriber) QuotaWindowExpired(now time.Time) bool {
	return s.DailyLimit > 0 && now.After(s.DailyResetAt)
}

// QuotaExhausted reports whether the daily limit has been reached.
// Call after any pending window reset has been applied.
func (s *Subscriber) QuotaExhausted() bool {
	return s.DailyLimit > 0 && s.DailyUsage >= s.DailyLimit
}

// NextResetBoundary returns the next local-midnight boundary after now.
func NextResetBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
