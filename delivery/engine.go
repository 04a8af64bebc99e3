package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/observability"
)

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency int
	BatchSize   int
	// ClaimLease bounds how long a claimed delivery may sit in
	// StateInProgress before the promotion sweep re-files it.
	ClaimLease time.Duration
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// Engine drains due deliveries through a bounded worker pool and finalizes
// retry bookkeeping. It does not own a loop; the scheduler invokes
// ProcessDue, PromoteRetries and Cleanup on their cadences.
type Engine struct {
	store      Store
	subs       SubscriberReader
	dispatcher *Dispatcher
	config     EngineConfig
	logger     *slog.Logger
}

// NewEngine creates a delivery engine.
func NewEngine(store Store, subs SubscriberReader, dispatcher *Dispatcher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Engine{
		store:      store,
		subs:       subs,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// ProcessDue claims one batch of due deliveries and dispatches them across
// the worker pool, blocking until the batch is fully processed. It returns
// the number of deliveries attempted. Per-record failures are logged and do
// not abort the batch.
func (e *Engine) ProcessDue(ctx context.Context) (int, error) {
	batch, err := e.store.ClaimDue(ctx, e.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due deliveries: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, d := range batch {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			e.releaseClaims(ctx, batch[i:])
			return i, err
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			e.releaseClaims(ctx, batch[i:])
			return i, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(del *Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			e.process(ctx, del)
		}(d)
	}

	wg.Wait()
	return len(batch), nil
}

// releaseClaims returns claimed but undispatched deliveries to the
// scheduled pool so the next sweep picks them up. The writes use a
// detached context; the caller's is already cancelled.
func (e *Engine) releaseClaims(ctx context.Context, batch []*Delivery) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	for _, d := range batch {
		d.State = StateScheduled
		at := now
		d.NextAttemptAt = &at
		if err := e.store.UpdateDelivery(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "release claim failed",
				"delivery_id", d.ID, "error", err)
		}
	}
}

// process runs one attempt for a claimed delivery and persists the result.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.SubscriberID.String(), string(d.EventType))
	}

	outcome := e.dispatcher.Dispatch(ctx, d)

	latencySeconds := float64(d.LatencyMs()) / 1000.0
	if e.config.Metrics != nil {
		e.config.Metrics.RecordDelivery(string(outcome), latencySeconds)
		if d.Terminal() {
			e.config.Metrics.PendingDeliveries.Dec()
		}
	}

	switch outcome {
	case OutcomeSucceeded:
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", d.StatusCode, "latency_ms", d.LatencyMs())
	case OutcomeScheduled:
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", d.NextAttemptAt)
	case OutcomeFailed:
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "error", d.ErrorMessage)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, d.StatusCode, d.LatencyMs(), d.ErrorMessage)
	}

	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// PromoteRetries sweeps failed deliveries whose NextAttemptAt has come due
// and moves them back into the scheduled pool so the next due sweep picks
// them up. Records whose subscriber is gone or ineligible, or whose retry
// budget is spent, are finalized instead. It also recovers stale claims:
// in-progress records whose lease expired without an outcome write are
// re-filed as scheduled. Returns the number promoted.
func (e *Engine) PromoteRetries(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	batch, err := e.store.ListRetryable(ctx, now, e.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list retryable deliveries: %w", err)
	}

	promoted := 0
	for _, d := range batch {
		sub, err := e.subs.GetSubscriber(ctx, d.SubscriberID)
		if err != nil {
			e.finalize(ctx, d, fmt.Sprintf("load subscriber: %v", err))
			continue
		}
		if reason, ok := sub.Deliverable(); !ok {
			e.finalize(ctx, d, reason)
			continue
		}
		if d.AttemptCount >= sub.RetryCount {
			e.finalize(ctx, d, d.ErrorMessage)
			continue
		}

		d.State = StateScheduled
		at := now
		d.NextAttemptAt = &at
		if err := e.store.UpdateDelivery(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "promote delivery failed",
				"delivery_id", d.ID, "error", err)
			continue
		}
		promoted++
	}

	stale, err := e.store.ListStaleClaims(ctx, now.Add(-e.config.ClaimLease), e.config.BatchSize)
	if err != nil {
		return promoted, fmt.Errorf("list stale claims: %w", err)
	}
	for _, d := range stale {
		e.logger.WarnContext(ctx, "recovering stale claim",
			"delivery_id", d.ID, "claimed_at", d.UpdatedAt)
		d.State = StateScheduled
		at := now
		d.NextAttemptAt = &at
		if err := e.store.UpdateDelivery(ctx, d); err != nil {
			e.logger.ErrorContext(ctx, "recover stale claim failed",
				"delivery_id", d.ID, "error", err)
			continue
		}
		promoted++
	}

	if promoted > 0 {
		e.logger.DebugContext(ctx, "promoted retries", "count", promoted)
	}
	return promoted, nil
}

// finalize marks a delivery permanently failed and persists it.
func (e *Engine) finalize(ctx context.Context, d *Delivery, msg string) {
	d.State = StateFailed
	d.ErrorMessage = msg
	d.NextAttemptAt = nil
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "finalize delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// Cleanup deletes terminal deliveries older than the retention window and
// returns how many were removed.
func (e *Engine) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	purged, err := e.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	if purged > 0 {
		e.logger.DebugContext(ctx, "purged old deliveries", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

// RetryNow claims a specific delivery regardless of its schedule and runs
// one attempt immediately, returning the updated record.
func (e *Engine) RetryNow(ctx context.Context, delID id.ID) (*Delivery, error) {
	d, err := e.store.ClaimDelivery(ctx, delID)
	if err != nil {
		return nil, err
	}
	e.process(ctx, d)
	return d, nil
}
