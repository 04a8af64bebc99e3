package subscriber_test

import (
	"testing"
	"time"

	"github.com/xraph/courier/event"
	"github.com/xraph/courier/subscriber"
)

func TestDeliverable(t *testing.T) {
	admin := "admin-1"

	tests := []struct {
		name string
		sub  subscriber.Subscriber
		ok   bool
	}{
		{
			name: "active approved",
			sub:  subscriber.Subscriber{Active: true, Approval: subscriber.ApprovalApproved},
			ok:   true,
		},
		{
			name: "inactive",
			sub:  subscriber.Subscriber{Active: false, Approval: subscriber.ApprovalApproved},
			ok:   false,
		},
		{
			name: "admin deactivated",
			sub:  subscriber.Subscriber{Active: true, Approval: subscriber.ApprovalApproved, DeactivatedBy: &admin},
			ok:   false,
		},
		{
			name: "pending approval",
			sub:  subscriber.Subscriber{Active: true, Approval: subscriber.ApprovalPending},
			ok:   false,
		},
		{
			name: "rejected",
			sub:  subscriber.Subscriber{Active: true, Approval: subscriber.ApprovalRejected},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := tt.sub.Deliverable()
			if ok != tt.ok {
				t.Fatalf("Deliverable = %v (%q), want %v", ok, reason, tt.ok)
			}
			if !ok && reason == "" {
				t.Fatal("expected a reason for ineligibility")
			}
		})
	}
}

func TestSubscribesTo(t *testing.T) {
	s := subscriber.Subscriber{EventTypes: []event.Type{event.SubmissionCreated, event.FormPublished}}

	if !s.SubscribesTo(event.SubmissionCreated) {
		t.Fatal("expected subscribed type to match")
	}
	if s.SubscribesTo(event.SubmissionUpdated) {
		t.Fatal("expected unsubscribed type to not match")
	}
}

func TestNextResetBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	next := subscriber.NextResetBoundary(now)

	want := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	if next.Location() != loc {
		t.Fatal("boundary should stay in the input's location")
	}
}

func TestNextResetBoundaryMonthRollover(t *testing.T) {
	now := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	next := subscriber.NextResetBoundary(now)

	want := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestQuotaWindowExpired(t *testing.T) {
	now := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

	s := subscriber.Subscriber{DailyLimit: 10, DailyResetAt: now.Add(-time.Hour)}
	if !s.QuotaWindowExpired(now) {
		t.Fatal("expected window to be expired past the boundary")
	}

	s.DailyResetAt = now.Add(time.Hour)
	if s.QuotaWindowExpired(now) {
		t.Fatal("expected window to be current before the boundary")
	}

	// Unlimited subscribers never roll windows.
	s = subscriber.Subscriber{DailyLimit: 0, DailyResetAt: now.Add(-time.Hour)}
	if s.QuotaWindowExpired(now) {
		t.Fatal("expected no window with no limit")
	}
}

func TestQuotaExhausted(t *testing.T) {
	s := subscriber.Subscriber{DailyLimit: 2, DailyUsage: 1}
	if s.QuotaExhausted() {
		t.Fatal("under limit should not be exhausted")
	}

	s.DailyUsage = 2
	if !s.QuotaExhausted() {
		t.Fatal("at limit should be exhausted")
	}

	s = subscriber.Subscriber{DailyLimit: 0, DailyUsage: 1000}
	if s.QuotaExhausted() {
		t.Fatal("no limit should never be exhausted")
	}
}
