package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/courier/condition"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/scheduler"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/subscriber"
)

// Courier is the root webhook delivery engine.
type Courier struct {
	config        Config
	store         store.Store
	validator     *event.Validator
	subscriberSvc *subscriber.Service
	limiter       *ratelimit.Limiter
	dispatcher    *delivery.Dispatcher
	engine        *delivery.Engine
	sched         *scheduler.Scheduler
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	logger        *slog.Logger
}

// New creates a new Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	c.wireServices()
	return c, nil
}

// wireServices initializes the internal services after options have been applied.
func (c *Courier) wireServices() {
	c.validator = event.NewValidator()
	c.subscriberSvc = subscriber.NewService(c.store, c.logger)
	c.limiter = ratelimit.New()

	sender := delivery.NewSender(c.config.RequestTimeout)
	c.dispatcher = delivery.NewDispatcher(c.store, sender, c.limiter, c.logger)

	c.engine = delivery.NewEngine(c.store, c.store, c.dispatcher, delivery.EngineConfig{
		Concurrency: c.config.Concurrency,
		BatchSize:   c.config.BatchSize,
		ClaimLease:  c.config.ClaimLease,
		Metrics:     c.metrics,
		Tracer:      c.tracer,
	}, c.logger)

	c.sched = scheduler.New(c.engine, scheduler.Config{
		SweepInterval:   c.config.SweepInterval,
		PromoteInterval: c.config.PromoteInterval,
		CleanupHour:     c.config.CleanupHour,
		Retention:       c.config.Retention,
	}, c.logger)
}

// Start begins the periodic sweeps.
func (c *Courier) Start(ctx context.Context) error {
	return c.sched.Start(ctx)
}

// Stop halts the sweeps and waits for in-flight deliveries to complete.
func (c *Courier) Stop(_ context.Context) {
	c.sched.Stop()
}

// Publish fans an event out to every eligible subscriber of its form.
//
// The critical path:
//  1. Reject unknown event types.
//  2. Validate the event data against the type's JSON Schema (if defined).
//  3. Resolve the form's subscribers.
//  4. Gate each subscriber (eligibility, quota, event type, filter condition);
//     ineligibility is a silent skip, never an error.
//  5. Enqueue one pending delivery per passing subscriber, with the payload
//     rendered per that subscriber's field include/exclude lists.
func (c *Courier) Publish(ctx context.Context, evt *event.Event) error {
	def, ok := event.Lookup(evt.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, evt.Type)
	}

	if len(def.Schema) > 0 && evt.Data != nil {
		if err := c.validator.Validate(def.Schema, evt.Data); err != nil {
			return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, err.Error())
		}
	}

	subs, err := c.store.Resolve(ctx, evt.FormID)
	if err != nil {
		return fmt.Errorf("courier: resolve subscribers: %w", err)
	}

	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(subs))
	for _, sub := range subs {
		d, ok := c.admit(ctx, sub, evt, now)
		if !ok {
			continue
		}
		deliveries = append(deliveries, d)
	}

	if len(deliveries) == 0 {
		return nil
	}

	if err := c.store.CreateDeliveries(ctx, deliveries); err != nil {
		return fmt.Errorf("courier: enqueue deliveries: %w", err)
	}

	if c.metrics != nil {
		c.metrics.EventsPublishedTotal.Inc()
		c.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	c.logger.DebugContext(ctx, "event published",
		"type", evt.Type,
		"form_id", evt.FormID,
		"deliveries", len(deliveries),
	)

	return nil
}

// Enqueue creates a pending delivery of the event for one subscriber,
// applying the same eligibility gate as Publish. Ineligibility is a silent
// no-op.
func (c *Courier) Enqueue(ctx context.Context, subID id.ID, evt *event.Event) error {
	if _, ok := event.Lookup(evt.Type); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, evt.Type)
	}

	sub, err := c.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}

	d, ok := c.admit(ctx, sub, evt, time.Now().UTC())
	if !ok {
		return nil
	}

	if err := c.store.CreateDelivery(ctx, d); err != nil {
		return fmt.Errorf("courier: enqueue delivery: %w", err)
	}

	if c.metrics != nil {
		c.metrics.PendingDeliveries.Inc()
	}
	return nil
}

// admit runs the eligibility gate for one subscriber and, when it passes,
// returns the pending delivery record ready to persist. Every failed check
// is a silent skip logged at debug level.
//
// Checks run in order, short-circuiting on the first failure: active,
// not admin-deactivated, approved, daily quota (resetting the window at the
// local-midnight boundary first), event type subscription, filter condition.
// The quota is consumed by an atomic conditional increment at the storage
// layer so concurrent publishes cannot overshoot the limit.
func (c *Courier) admit(ctx context.Context, sub *subscriber.Subscriber, evt *event.Event, now time.Time) (*delivery.Delivery, bool) {
	if reason, ok := sub.Deliverable(); !ok {
		return c.skip(ctx, sub, reason)
	}

	if sub.DailyLimit > 0 {
		if sub.QuotaWindowExpired(now) {
			if err := c.store.ResetDailyUsage(ctx, sub.ID, subscriber.NextResetBoundary(now)); err != nil {
				c.logger.ErrorContext(ctx, "reset daily usage failed",
					"subscriber_id", sub.ID, "error", err)
				return nil, false
			}
			sub.DailyUsage = 0
			sub.DailyResetAt = subscriber.NextResetBoundary(now)
		}
		if sub.QuotaExhausted() {
			if c.metrics != nil {
				c.metrics.QuotaSkipsTotal.Inc()
			}
			return c.skip(ctx, sub, "daily quota exhausted")
		}
	}

	if !sub.SubscribesTo(evt.Type) {
		return c.skip(ctx, sub, "event type not subscribed")
	}

	cond, err := condition.Parse(sub.FilterCondition)
	if err != nil {
		// Malformed conditions fail closed.
		return c.skip(ctx, sub, "malformed filter condition")
	}
	if !cond.Evaluate(evt.Data) {
		return c.skip(ctx, sub, "filter condition not met")
	}

	if sub.DailyLimit > 0 {
		under, err := c.store.IncrementUsageIfUnderLimit(ctx, sub.ID)
		if err != nil {
			c.logger.ErrorContext(ctx, "increment daily usage failed",
				"subscriber_id", sub.ID, "error", err)
			return nil, false
		}
		if !under {
			if c.metrics != nil {
				c.metrics.QuotaSkipsTotal.Inc()
			}
			return c.skip(ctx, sub, "daily quota exhausted")
		}
	}

	body, err := event.BuildPayload(evt, sub.ID.String(), sub.IncludeFields, sub.ExcludeFields)
	if err != nil {
		c.logger.ErrorContext(ctx, "build payload failed",
			"subscriber_id", sub.ID, "error", err)
		return nil, false
	}

	at := now
	return &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		SubscriberID:  sub.ID,
		SubmissionID:  evt.SubmissionID,
		EventType:     evt.Type,
		State:         delivery.StatePending,
		RequestBody:   body,
		NextAttemptAt: &at,
	}, true
}

func (c *Courier) skip(ctx context.Context, sub *subscriber.Subscriber, reason string) (*delivery.Delivery, bool) {
	c.logger.DebugContext(ctx, "subscriber skipped",
		"subscriber_id", sub.ID, "reason", reason)
	return nil, false
}

// TestDeliver performs a synchronous one-shot delivery to the subscriber,
// bypassing the queue and the daily quota. When payload is nil a sample
// payload for the subscriber's first subscribed event type is sent. The
// result is returned immediately and nothing is persisted.
func (c *Courier) TestDeliver(ctx context.Context, subID id.ID, payload json.RawMessage) (delivery.TestResult, error) {
	sub, err := c.store.GetSubscriber(ctx, subID)
	if err != nil {
		return delivery.TestResult{}, err
	}

	body := []byte(payload)
	if len(body) == 0 {
		evtType := event.SubmissionCreated
		if len(sub.EventTypes) > 0 {
			evtType = sub.EventTypes[0]
		}
		body, err = event.BuildPayload(&event.Event{
			Type:       evtType,
			FormID:     sub.FormID,
			OccurredAt: time.Now().UTC(),
			Data:       map[string]any{"test": true},
		}, sub.ID.String(), sub.IncludeFields, sub.ExcludeFields)
		if err != nil {
			return delivery.TestResult{}, fmt.Errorf("courier: build test payload: %w", err)
		}
	} else if !json.Valid(body) {
		return delivery.TestResult{}, ErrInvalidTestPayload
	}

	return c.dispatcher.TestSend(ctx, sub, body), nil
}

// RetryNow runs one immediate attempt for the delivery, regardless of its
// schedule, and returns the updated record.
func (c *Courier) RetryNow(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return c.engine.RetryNow(ctx, delID)
}

// DeliveryLogs returns the subscriber's delivery records, newest first.
func (c *Courier) DeliveryLogs(ctx context.Context, subID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return c.store.ListBySubscriber(ctx, subID, opts)
}

// DeliveryStats returns per-day outcome counts and aggregates over the last
// days days for the subscriber.
func (c *Courier) DeliveryStats(ctx context.Context, subID id.ID, days int) (*delivery.Stats, error) {
	return c.store.Stats(ctx, subID, days)
}

// Subscribers returns the subscriber management service.
func (c *Courier) Subscribers() *subscriber.Service {
	return c.subscriberSvc
}

// Engine returns the delivery engine.
func (c *Courier) Engine() *delivery.Engine {
	return c.engine
}

// Store returns the underlying store.
func (c *Courier) Store() store.Store {
	return c.store
}
