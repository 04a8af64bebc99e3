package api

import (
	"net/http/httptest"
	"testing"
)

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		def  int
		want int
	}{
		{"absent", "", 50, 50},
		{"plain", "42", 50, 42},
		{"zero", "0", 50, 0},
		{"malformed", "abc", 50, 50},
		{"negative", "-3", 50, 50},
		{"overflow", "99999999999999999999", 50, 50},
		{"clamped", "500000", 50, maxQueryInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/deliveries"
			if tt.raw != "" {
				url += "?limit=" + tt.raw
			}
			r := httptest.NewRequest("GET", url, nil)
			if got := queryInt(r, "limit", tt.def); got != tt.want {
				t.Fatalf("queryInt(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}
