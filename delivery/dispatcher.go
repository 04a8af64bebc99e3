package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/security"
	"github.com/xraph/courier/subscriber"
)

// Outcome classifies the result of one dispatch for metrics and logging.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeScheduled Outcome = "scheduled"
	OutcomeFailed    Outcome = "failed"
)

// SubscriberReader is the subscriber access the dispatcher needs.
type SubscriberReader interface {
	GetSubscriber(ctx context.Context, subID id.ID) (*subscriber.Subscriber, error)
}

// Dispatcher turns one claimed Delivery into exactly one HTTP attempt and
// classifies the outcome onto the record.
type Dispatcher struct {
	subs    SubscriberReader
	sender  *Sender
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. The limiter is optional.
func NewDispatcher(subs SubscriberReader, sender *Sender, limiter *ratelimit.Limiter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:    subs,
		sender:  sender,
		limiter: limiter,
		logger:  logger,
	}
}

// Dispatch performs one attempt for a claimed delivery, mutating the record
// in place. The caller persists the result.
//
// Subscriber eligibility is re-validated here because time may have passed
// since enqueue; a subscriber that has since been disabled, deactivated or
// unapproved fails the delivery terminally without a network call.
func (dp *Dispatcher) Dispatch(ctx context.Context, d *Delivery) Outcome {
	now := time.Now().UTC()
	d.RequestAt = now

	sub, err := dp.subs.GetSubscriber(ctx, d.SubscriberID)
	if err != nil {
		return dp.failTerminal(d, fmt.Sprintf("load subscriber: %v", err))
	}

	if reason, ok := sub.Deliverable(); !ok {
		return dp.failTerminal(d, reason)
	}

	if dp.limiter != nil && sub.RateLimit > 0 {
		if waitErr := dp.limiter.Wait(ctx, d.SubscriberID.String(), sub.RateLimit); waitErr != nil {
			return dp.failAttempt(d, sub, now, "rate limit wait: "+waitErr.Error())
		}
	}

	headers := security.BuildHeaders(security.HeaderSpec{
		SubscriberID:      d.SubscriberID.String(),
		Mode:              sub.AuthMode,
		Credential:        sub.AuthCredential,
		SigningSecret:     sub.SigningSecret,
		VerificationToken: sub.VerificationToken,
		Payload:           d.RequestBody,
		Custom:            sub.Headers,
	})

	res := dp.sender.Send(ctx, sub.URL, d.RequestBody, headers)
	d.AttemptCount++

	if res.Delivered {
		respAt := d.RequestAt.Add(time.Duration(res.LatencyMs) * time.Millisecond)
		d.State = StateSucceeded
		d.StatusCode = res.StatusCode
		d.ResponseBody = res.Body
		d.ResponseAt = &respAt
		d.ErrorMessage = res.Error
		d.NextAttemptAt = nil
		return OutcomeSucceeded
	}

	return dp.failAttempt(d, sub, now, res.Error)
}

// failTerminal marks the delivery failed with no further attempts. Used for
// ineligible subscribers and system errors; the attempt count is unchanged
// because no request went out.
func (dp *Dispatcher) failTerminal(d *Delivery, msg string) Outcome {
	d.State = StateFailed
	d.ErrorMessage = msg
	d.NextAttemptAt = nil
	return OutcomeFailed
}

// failAttempt records a failed transport attempt and either schedules the
// next retry with exponential backoff or finalizes the delivery when the
// subscriber's retry budget is spent.
func (dp *Dispatcher) failAttempt(d *Delivery, sub *subscriber.Subscriber, now time.Time, msg string) Outcome {
	d.ErrorMessage = msg
	d.StatusCode = 0
	d.ResponseBody = ""
	d.ResponseAt = nil

	if d.AttemptCount >= sub.RetryCount {
		d.State = StateFailed
		d.NextAttemptAt = nil
		return OutcomeFailed
	}

	next := now.Add(Backoff(sub.RetryInterval, d.AttemptCount))
	d.State = StateScheduled
	d.NextAttemptAt = &next
	return OutcomeScheduled
}

// TestResult is the synchronous outcome of a one-shot test delivery.
type TestResult struct {
	Success     bool   `json:"success"`
	RequestSent bool   `json:"request_sent"`
	StatusCode  int    `json:"status_code,omitempty"`
	Response    string `json:"response,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TestSend performs a one-shot delivery of body to the subscriber,
// bypassing the queue and the daily quota. The result is returned to the
// caller and logged, but nothing is persisted.
func (dp *Dispatcher) TestSend(ctx context.Context, sub *subscriber.Subscriber, body []byte) TestResult {
	if reason, ok := sub.Deliverable(); !ok {
		return TestResult{Error: reason}
	}

	headers := security.BuildHeaders(security.HeaderSpec{
		SubscriberID:      sub.ID.String(),
		Mode:              sub.AuthMode,
		Credential:        sub.AuthCredential,
		SigningSecret:     sub.SigningSecret,
		VerificationToken: sub.VerificationToken,
		Payload:           body,
		Custom:            sub.Headers,
	})

	res := dp.sender.Send(ctx, sub.URL, body, headers)

	dp.logger.DebugContext(ctx, "test delivery",
		"subscriber_id", sub.ID,
		"delivered", res.Delivered,
		"status", res.StatusCode,
		"error", res.Error,
	)

	return TestResult{
		Success:     res.Delivered,
		RequestSent: true,
		StatusCode:  res.StatusCode,
		Response:    res.Body,
		Error:       res.Error,
	}
}
