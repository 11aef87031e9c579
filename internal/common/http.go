package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the originating address of r. The leftmost parseable
// X-Forwarded-For entry wins, then X-Real-IP, then RemoteAddr. Header values
// that are not IP addresses are ignored so a client cannot mint arbitrary
// rate limit keys.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip, ok := parseIP(hop); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
