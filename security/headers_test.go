package security_test

import (
	"testing"

	"github.com/xraph/courier/security"
)

func TestBuildHeadersBaseSet(t *testing.T) {
	h := security.BuildHeaders(security.HeaderSpec{
		SubscriberID: "sub_01h455vb4pex5vsknk084sn02q",
		Mode:         security.AuthNone,
		Payload:      []byte(`{}`),
	})

	if got := h.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json, got %q", got)
	}
	if got := h.Get("User-Agent"); got != security.UserAgent {
		t.Fatalf("expected %q, got %q", security.UserAgent, got)
	}
	if got := h.Get(security.HeaderWebhookID); got != "sub_01h455vb4pex5vsknk084sn02q" {
		t.Fatalf("expected subscriber ID header, got %q", got)
	}
	if h.Get(security.HeaderSignature) != "" {
		t.Fatal("expected no signature without a signing secret")
	}
	if h.Get(security.HeaderToken) != "" {
		t.Fatal("expected no token without a verification token")
	}
}

func TestBuildHeadersSignature(t *testing.T) {
	payload := []byte(`{"event":"FORM_PUBLISHED"}`)
	secret := "whsec_headers"

	h := security.BuildHeaders(security.HeaderSpec{
		SubscriberID:  "sub_x",
		SigningSecret: secret,
		Payload:       payload,
	})

	sig := h.Get(security.HeaderSignature)
	if sig == "" {
		t.Fatal("expected signature header")
	}
	if !security.Verify(payload, sig, secret) {
		t.Fatal("header signature does not verify against payload")
	}
}

func TestBuildHeadersVerificationToken(t *testing.T) {
	h := security.BuildHeaders(security.HeaderSpec{
		SubscriberID:      "sub_x",
		VerificationToken: "static-token",
	})

	if got := h.Get(security.HeaderToken); got != "static-token" {
		t.Fatalf("expected token to be sent verbatim, got %q", got)
	}
}

func TestBuildHeadersCustomCannotOverrideReserved(t *testing.T) {
	h := security.BuildHeaders(security.HeaderSpec{
		SubscriberID:      "sub_real",
		SigningSecret:     "whsec_s",
		VerificationToken: "real-token",
		Payload:           []byte(`{}`),
		Custom: map[string]string{
			"Content-Type":      "text/plain",
			"User-Agent":        "curl/8.0",
			"X-Webhook-ID":      "sub_spoofed",
			"X-Webhook-Token":   "spoofed",
			"X-Custom-Tracking": "abc123",
		},
	})

	if got := h.Get("Content-Type"); got != "application/json" {
		t.Fatalf("custom header overrode Content-Type: %q", got)
	}
	if got := h.Get("User-Agent"); got != security.UserAgent {
		t.Fatalf("custom header overrode User-Agent: %q", got)
	}
	if got := h.Get(security.HeaderWebhookID); got != "sub_real" {
		t.Fatalf("custom header overrode webhook ID: %q", got)
	}
	if got := h.Get(security.HeaderToken); got != "real-token" {
		t.Fatalf("custom header overrode token: %q", got)
	}
	if got := h.Get("X-Custom-Tracking"); got != "abc123" {
		t.Fatalf("expected custom header to survive, got %q", got)
	}
}

func TestBuildHeadersAuth(t *testing.T) {
	h := security.BuildHeaders(security.HeaderSpec{
		SubscriberID: "sub_x",
		Mode:         security.AuthBearer,
		Credential:   "tok",
	})

	if got := h.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer auth, got %q", got)
	}
}
