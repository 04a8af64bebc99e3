package security_test

import (
	"testing"

	"github.com/xraph/courier/security"
)

func TestAllowListAllows(t *testing.T) {
	tests := []struct {
		name      string
		list      security.AllowList
		candidate string
		want      bool
	}{
		{"empty list allows everyone", nil, "203.0.113.9", true},
		{"exact match", security.AllowList{"203.0.113.9"}, "203.0.113.9", true},
		{"exact mismatch", security.AllowList{"203.0.113.9"}, "203.0.113.10", false},
		{"cidr contains", security.AllowList{"192.168.1.0/24"}, "192.168.1.42", true},
		{"cidr excludes", security.AllowList{"192.168.1.0/24"}, "192.168.2.1", false},
		{"second entry matches", security.AllowList{"10.0.0.1", "172.16.0.0/12"}, "172.16.5.4", true},
		{"ipv6 exact", security.AllowList{"2001:db8::1"}, "2001:db8::1", true},
		{"ipv4-mapped ipv6 normalizes", security.AllowList{"10.0.0.1"}, "::ffff:10.0.0.1", true},
		{"whitespace entry trimmed", security.AllowList{" 203.0.113.9 "}, "203.0.113.9", true},
		{"non-ip entry matches by exact string", security.AllowList{"not-an-ip"}, "not-an-ip", true},
		{"non-ip entry never matches an ip", security.AllowList{"not-an-ip"}, "203.0.113.9", false},
		{"garbage cidr skipped", security.AllowList{"300.1.2.0/24"}, "203.0.113.9", false},
		{"empty entries skipped", security.AllowList{"", "203.0.113.9"}, "203.0.113.9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.list.Allows(tt.candidate); got != tt.want {
				t.Fatalf("Allows(%q) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}
