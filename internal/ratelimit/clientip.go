package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// IPResolver extracts the real client IP of a request. Forwarding headers
// are only honoured when the direct peer is a trusted proxy.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses the trusted proxy CIDRs. Invalid entries are logged
// and skipped.
func NewIPResolver(trustedProxies []string, logger *slog.Logger) *IPResolver {
	var nets []*net.IPNet
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
			continue
		}
		nets = append(nets, ipNet)
	}
	return &IPResolver{trusted: nets}
}

// ClientIP returns the client address for r. Behind a trusted peer,
// CF-Connecting-IP wins, then the right-most untrusted X-Forwarded-For hop.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peerIP := extractIP(r.RemoteAddr)
	if len(res.trusted) == 0 || !res.isTrusted(peerIP) {
		return peerIP
	}

	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); net.ParseIP(cf) != nil {
		return cf
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(parts[i])
			if ip != "" && !res.isTrusted(ip) {
				return ip
			}
		}
	}

	return peerIP
}

func (res *IPResolver) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range res.trusted {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
