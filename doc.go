// Package courier provides a webhook delivery engine for form platforms.
//
// Courier is a library, not a service. Import it into your application to
// notify subscriber endpoints when form events occur (a submission is
// created or updated, a form is published or unpublished), with at-least-once
// delivery, exponential backoff retries, HMAC-SHA256 signing, per-subscriber
// auth and daily quotas, and declarative event filtering.
//
// Key features:
//   - Durable delivery records with a claim-based dispatch loop
//   - Exponential backoff retries with a 24-hour cap
//   - HMAC-SHA256 signatures and pluggable auth on every delivery
//   - Per-subscriber daily quotas with atomic bookkeeping
//   - Declarative filter conditions over submission data
//   - Composable store pattern with multiple backends (Bun, Redis, Memory)
//
// Quick start:
//
//	c, err := courier.New(
//	    courier.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Start(ctx)
//
//	sub, _ := c.Subscribers().Create(ctx, subscriber.Input{
//	    FormID:     "form_123",
//	    URL:        "https://example.com/hook",
//	    EventTypes: []event.Type{event.SubmissionCreated},
//	})
//
//	c.Publish(ctx, &event.Event{
//	    Type:   event.SubmissionCreated,
//	    FormID: "form_123",
//	    Data:   map[string]any{"email": "a@b.co"},
//	})
package courier
