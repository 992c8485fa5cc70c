package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP extracts the caller address from an HTTP request. Forwarding headers
// are only consulted when trustProxy is set, since the result feeds the
// geographic rule. Returns "" when no valid address can be found.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if ip := normalizeIP(xri); ip != "" {
				return ip
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return ""
	}
	return addr.WithZone("").Unmap().String()
}
