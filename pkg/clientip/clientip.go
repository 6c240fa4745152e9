// Package clientip resolves the requester's IP for rate-limit keys and
// audit rows.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Unknown is recorded when no valid address can be resolved, so audit rows
// never carry an empty IP column.
const Unknown = "0.0.0.0"

// Get returns the client's IP address, preferring proxy headers over the
// socket address: X-Forwarded-For (first valid entry), then X-Real-IP, then
// RemoteAddr.
func Get(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(ip); parsed != "" {
				return parsed
			}
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return Unknown
}

// parseIP validates and normalizes an address, returning "" when invalid.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
