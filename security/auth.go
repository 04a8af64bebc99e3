// Package security builds outbound webhook auth headers, computes and
// verifies HMAC payload signatures, and matches caller IPs against
// per-subscriber allow-lists.
package security

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// AuthMode selects how a subscriber authenticates deliveries at its endpoint.
type AuthMode string

// Supported authentication modes.
const (
	AuthNone   AuthMode = "none"
	AuthBasic  AuthMode = "basic"
	AuthBearer AuthMode = "bearer"
	AuthAPIKey AuthMode = "api_key"
)

// Valid reports whether the mode is one of the supported auth modes.
func (m AuthMode) Valid() bool {
	_, ok := strategies[m]
	return ok
}

// AuthStrategy applies one authentication scheme to an outbound request.
// One implementation exists per AuthMode; new schemes register here rather
// than growing a switch in the dispatcher.
type AuthStrategy interface {
	// Apply sets the scheme's headers using the subscriber's secret material.
	Apply(h http.Header, credential string)
}

// strategies is the mode-keyed strategy table.
var strategies = map[AuthMode]AuthStrategy{
	AuthNone:   noneAuth{},
	AuthBasic:  basicAuth{},
	AuthBearer: bearerAuth{},
	AuthAPIKey: apiKeyAuth{},
}

// StrategyFor returns the strategy for the given mode.
// Unknown modes fall back to AuthNone so a misconfigured subscriber still
// receives unauthenticated deliveries rather than none at all.
func StrategyFor(mode AuthMode) AuthStrategy {
	if s, ok := strategies[mode]; ok {
		return s
	}
	return strategies[AuthNone]
}

type noneAuth struct{}

func (noneAuth) Apply(http.Header, string) {}

type basicAuth struct{}

func (basicAuth) Apply(h http.Header, credential string) {
	if credential == "" {
		return
	}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credential)))
}

type bearerAuth struct{}

func (bearerAuth) Apply(h http.Header, credential string) {
	if credential == "" {
		return
	}
	h.Set("Authorization", "Bearer "+credential)
}

type apiKeyAuth struct{}

func (apiKeyAuth) Apply(h http.Header, credential string) {
	if credential == "" {
		return
	}
	h.Set("X-API-Key", credential)
}

// ParseAuthMode validates a raw mode string.
func ParseAuthMode(s string) (AuthMode, error) {
	m := AuthMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("security: unknown auth mode %q", s)
	}
	return m, nil
}
