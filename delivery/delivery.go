package delivery

import (
	"encoding/json"
	"time"

	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// State represents the current state of a delivery.
type State string

const (
	// StatePending indicates the delivery is awaiting its first attempt.
	StatePending State = "pending"

	// StateInProgress indicates a worker has claimed the delivery for an
	// attempt. The claim prevents two scheduler ticks from dispatching the
	// same record concurrently.
	StateInProgress State = "in_progress"

	// StateScheduled indicates a failed attempt with a retry scheduled at
	// NextAttemptAt.
	StateScheduled State = "scheduled"

	// StateSucceeded indicates the delivery completed. Terminal.
	StateSucceeded State = "succeeded"

	// StateFailed indicates the delivery failed. Terminal once
	// NextAttemptAt is nil.
	StateFailed State = "failed"
)

// Delivery represents one persisted attempt-series for delivering a single
// event to a single subscriber.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// SubscriberID references the target subscriber.
	SubscriberID id.ID `json:"subscriber_id"`

	// SubmissionID references the triggering submission, when any.
	SubmissionID string `json:"submission_id,omitempty"`

	// EventType is the wire event type being delivered.
	EventType event.Type `json:"event_type"`

	// State is the current delivery state.
	State State `json:"state"`

	// RequestBody is the computed payload. Persisted once at enqueue time
	// and immutable thereafter; every attempt sends these exact bytes.
	RequestBody json.RawMessage `json:"request_body"`

	// RequestAt is when the most recent attempt started.
	RequestAt time.Time `json:"request_at"`

	// ResponseAt is when the most recent response arrived, if one did.
	ResponseAt *time.Time `json:"response_at,omitempty"`

	// StatusCode is the HTTP status from the most recent attempt.
	StatusCode int `json:"status_code,omitempty"`

	// ResponseBody is the response body from the most recent attempt
	// (capped at 1KB).
	ResponseBody string `json:"response_body,omitempty"`

	// ErrorMessage is the transport or system error from the most recent
	// failed attempt.
	ErrorMessage string `json:"error_message,omitempty"`

	// AttemptCount is the number of attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// NextAttemptAt is when the next attempt should occur. Nil means no
	// further attempts are scheduled.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// Terminal reports whether the delivery will never be attempted again.
func (d *Delivery) Terminal() bool {
	switch d.State {
	case StateSucceeded:
		return true
	case StateFailed:
		return d.NextAttemptAt == nil
	default:
		return false
	}
}

// LatencyMs returns the most recent attempt's response latency in
// milliseconds, or 0 when no response arrived.
func (d *Delivery) LatencyMs() int {
	if d.ResponseAt == nil {
		return 0
	}
	return int(d.ResponseAt.Sub(d.RequestAt).Milliseconds())
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
	From   *time.Time
	To     *time.Time
}

// DayStats is one day's delivery counts for a subscriber.
type DayStats struct {
	// Date is the day in YYYY-MM-DD form, local time.
	Date string `json:"date"`

	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// Stats aggregates a subscriber's delivery history over a trailing window.
type Stats struct {
	Days []DayStats `json:"days"`

	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`

	// SuccessRate is Succeeded/Total in [0,1]; 0 when Total is 0.
	SuccessRate float64 `json:"success_rate"`

	// AvgLatencyMs averages response latency over attempts that received
	// a response.
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
