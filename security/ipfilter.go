package security

import (
	"net"
	"strings"
)

// AllowList is a set of exact IP addresses and CIDR ranges.
// An empty list allows every caller.
type AllowList []string

// Allows reports whether the candidate IP passes the allow-list.
//
// Each entry is either an exact address ("203.0.113.9") or a CIDR range
// ("192.168.1.0/24"). Range matching masks both sides and compares the
// network bits. Unparseable entries never match.
func (l AllowList) Allows(candidate string) bool {
	if len(l) == 0 {
		return true
	}

	ip := net.ParseIP(strings.TrimSpace(candidate))

	for _, entry := range l {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			if ip == nil {
				continue
			}
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if network.Contains(ip) {
				return true
			}
			continue
		}

		if entry == candidate {
			return true
		}
		// Normalized comparison catches forms like "::ffff:10.0.0.1".
		if ip != nil {
			if other := net.ParseIP(entry); other != nil && other.Equal(ip) {
				return true
			}
		}
	}

	return false
}
