package scheduler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/event"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/scheduler"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/subscriber"
)

func TestDefaultConfig(t *testing.T) {
	cfg := scheduler.DefaultConfig()

	if cfg.SweepInterval != time.Minute {
		t.Fatalf("unexpected sweep interval %v", cfg.SweepInterval)
	}
	if cfg.PromoteInterval != 15*time.Minute {
		t.Fatalf("unexpected promote interval %v", cfg.PromoteInterval)
	}
	if cfg.CleanupHour != 3 {
		t.Fatalf("unexpected cleanup hour %d", cfg.CleanupHour)
	}
	if cfg.Retention != 90*24*time.Hour {
		t.Fatalf("unexpected retention %v", cfg.Retention)
	}
}

func TestSchedulerRunsSweep(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	ctx := context.Background()

	sub := &subscriber.Subscriber{
		Entity:        entity.New(),
		ID:            id.NewSubscriberID(),
		FormID:        "form-1",
		URL:           srv.URL,
		Active:        true,
		Approval:      subscriber.ApprovalApproved,
		EventTypes:    []event.Type{event.SubmissionCreated},
		RetryCount:    3,
		RetryInterval: 60,
	}
	if err := store.CreateSubscriber(ctx, sub); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	d := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		SubscriberID:  sub.ID,
		EventType:     event.SubmissionCreated,
		State:         delivery.StatePending,
		RequestBody:   []byte(`{}`),
		NextAttemptAt: &now,
	}
	if err := store.CreateDelivery(ctx, d); err != nil {
		t.Fatal(err)
	}

	engine := delivery.NewEngine(store, store, delivery.NewDispatcher(store, delivery.NewSender(2*time.Second), nil, nil), delivery.EngineConfig{}, nil)
	sched := scheduler.New(engine, scheduler.Config{SweepInterval: 50 * time.Millisecond}, nil)

	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for hits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for the sweep to fire")
		case <-time.After(20 * time.Millisecond):
		}
	}

	sched.Stop()

	got, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != delivery.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", got.State)
	}
}

func TestSchedulerStopIsIdempotentAfterStart(t *testing.T) {
	store := memory.New()
	engine := delivery.NewEngine(store, store, delivery.NewDispatcher(store, delivery.NewSender(time.Second), nil, nil), delivery.EngineConfig{}, nil)
	sched := scheduler.New(engine, scheduler.DefaultConfig(), nil)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched.Stop()
}
