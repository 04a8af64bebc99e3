package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignaturePrefix identifies the signing scheme in X-Webhook-Signature.
const SignaturePrefix = "sha256="

// Sign computes the HMAC-SHA256 signature of the payload with the given
// secret. The result is hex-encoded and prefixed with "sha256=".
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the valid signature of payload under secret.
//
// A length mismatch is rejected up front; signature lengths are fixed by the
// scheme, so the early return leaks nothing useful. The byte comparison
// itself is constant-time.
func Verify(payload []byte, sig, secret string) bool {
	expected := Sign(payload, secret)
	if len(expected) != len(sig) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig))
}
