package security_test

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/xraph/courier/security"
)

func TestAuthStrategies(t *testing.T) {
	tests := []struct {
		name       string
		mode       security.AuthMode
		credential string
		header     string
		want       string
	}{
		{
			name:       "none sets nothing",
			mode:       security.AuthNone,
			credential: "ignored",
			header:     "Authorization",
			want:       "",
		},
		{
			name:       "basic base64-encodes user:pass",
			mode:       security.AuthBasic,
			credential: "user:pass",
			header:     "Authorization",
			want:       "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass")),
		},
		{
			name:       "bearer prefixes the token",
			mode:       security.AuthBearer,
			credential: "tok123",
			header:     "Authorization",
			want:       "Bearer tok123",
		},
		{
			name:       "api key sets X-API-Key",
			mode:       security.AuthAPIKey,
			credential: "key456",
			header:     "X-API-Key",
			want:       "key456",
		},
		{
			name:       "unknown mode falls back to none",
			mode:       security.AuthMode("kerberos"),
			credential: "ignored",
			header:     "Authorization",
			want:       "",
		},
		{
			name:       "empty credential sets nothing",
			mode:       security.AuthBearer,
			credential: "",
			header:     "Authorization",
			want:       "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			security.StrategyFor(tt.mode).Apply(h, tt.credential)
			if got := h.Get(tt.header); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthModeValid(t *testing.T) {
	for _, m := range []security.AuthMode{security.AuthNone, security.AuthBasic, security.AuthBearer, security.AuthAPIKey} {
		if !m.Valid() {
			t.Fatalf("expected %q to be valid", m)
		}
	}
	if security.AuthMode("digest").Valid() {
		t.Fatal("expected unknown mode to be invalid")
	}
}

func TestParseAuthMode(t *testing.T) {
	m, err := security.ParseAuthMode("bearer")
	if err != nil {
		t.Fatal(err)
	}
	if m != security.AuthBearer {
		t.Fatalf("expected bearer, got %q", m)
	}

	if _, err := security.ParseAuthMode("digest"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
