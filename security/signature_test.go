package security_test

import (
	"strings"
	"testing"

	"github.com/xraph/courier/security"
)

func TestSignFormat(t *testing.T) {
	sig := security.Sign([]byte(`{"hello":"world"}`), "whsec_test")

	if !strings.HasPrefix(sig, security.SignaturePrefix) {
		t.Fatalf("expected %q prefix, got %q", security.SignaturePrefix, sig)
	}
	// sha256= + 64 hex chars
	if len(sig) != len(security.SignaturePrefix)+64 {
		t.Fatalf("unexpected signature length %d", len(sig))
	}
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"a":1}`)

	if security.Sign(payload, "secret") != security.Sign(payload, "secret") {
		t.Fatal("same payload and secret produced different signatures")
	}
	if security.Sign(payload, "secret") == security.Sign(payload, "other") {
		t.Fatal("different secrets produced the same signature")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"SUBMISSION_CREATED"}`)
	secret := "whsec_roundtrip"

	sig := security.Sign(payload, secret)
	if !security.Verify(payload, sig, secret) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	secret := "whsec_tamper"
	sig := security.Sign([]byte(`{"amount":100}`), secret)

	if security.Verify([]byte(`{"amount":999}`), sig, secret) {
		t.Fatal("expected tampered payload to fail verification")
	}
}

func TestVerifyRejectsFlippedByte(t *testing.T) {
	payload := []byte(`{"x":1}`)
	secret := "whsec_flip"

	sig := []byte(security.Sign(payload, secret))
	last := len(sig) - 1
	if sig[last] == 'a' {
		sig[last] = 'b'
	} else {
		sig[last] = 'a'
	}

	if security.Verify(payload, string(sig), secret) {
		t.Fatal("expected flipped signature byte to fail verification")
	}
}

func TestVerifyRejectsLengthMismatch(t *testing.T) {
	payload := []byte(`{"x":1}`)

	if security.Verify(payload, "sha256=abc", "secret") {
		t.Fatal("expected truncated signature to fail verification")
	}
	if security.Verify(payload, "", "secret") {
		t.Fatal("expected empty signature to fail verification")
	}
}

func TestGenerateSecret(t *testing.T) {
	a := security.GenerateSecret()
	b := security.GenerateSecret()

	if !strings.HasPrefix(a, "whsec_") {
		t.Fatalf("expected whsec_ prefix, got %q", a)
	}
	if len(a) != 70 {
		t.Fatalf("expected 70 characters, got %d", len(a))
	}
	if a == b {
		t.Fatal("two generated secrets collided")
	}
}
