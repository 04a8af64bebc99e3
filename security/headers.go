package security

import "net/http"

// UserAgent is the fixed identifier sent with every delivery.
const UserAgent = "Courier/1.0"

// Standard header names used on outbound deliveries.
const (
	HeaderWebhookID = "X-Webhook-ID"
	HeaderSignature = "X-Webhook-Signature"
	HeaderToken     = "X-Webhook-Token"
)

// HeaderSpec describes everything needed to build the headers for one
// outbound delivery.
type HeaderSpec struct {
	// SubscriberID is sent as X-Webhook-ID.
	SubscriberID string

	// Mode and Credential select and feed the auth strategy.
	Mode       AuthMode
	Credential string

	// SigningSecret, when non-empty, adds X-Webhook-Signature over Payload.
	SigningSecret string

	// VerificationToken, when non-empty, is sent verbatim as X-Webhook-Token.
	// It is a static shared secret, not a signature.
	VerificationToken string

	// Payload is the exact request body the signature covers.
	Payload []byte

	// Custom are subscriber-configured extra headers.
	Custom map[string]string
}

// BuildHeaders assembles the full header set for a delivery.
//
// Custom headers are applied first and the reserved identity/content
// headers afterwards, so a subscriber cannot override Content-Type,
// User-Agent, X-Webhook-ID, the signature, or the verification token.
func BuildHeaders(spec HeaderSpec) http.Header {
	h := make(http.Header, len(spec.Custom)+6)

	for k, v := range spec.Custom {
		h.Set(k, v)
	}

	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", UserAgent)
	h.Set(HeaderWebhookID, spec.SubscriberID)

	StrategyFor(spec.Mode).Apply(h, spec.Credential)

	if spec.SigningSecret != "" {
		h.Set(HeaderSignature, Sign(spec.Payload, spec.SigningSecret))
	}
	if spec.VerificationToken != "" {
		h.Set(HeaderToken, spec.VerificationToken)
	}

	return h
}
