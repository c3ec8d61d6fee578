// Package cors decides whether a request Origin may read price responses
// and writes the matching response headers.
package cors

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// DefaultOrigins are the emeditor.com sites allowed to read prices.
var DefaultOrigins = []string{
	"https://www.emeditor.com",
	"https://jp.emeditor.com",
	"https://ko.emeditor.com",
	"https://de.emeditor.com",
	"https://zh-cn.emeditor.com",
	"https://zh-tw.emeditor.com",
	"https://ru.emeditor.com",
}

const (
	allowMethods = "GET, OPTIONS"
	allowHeaders = "Content-Type, CF-IPCountry"
	vary         = "Origin, CF-IPCountry"
	maxAge       = "86400" // one day
)

// Gate is an immutable origin allow-list.
type Gate struct {
	origins map[string]struct{}
}

// NewGate builds a gate from fully-qualified origins (scheme and host, no
// trailing slash). Entries are stored after normalization; empty entries and
// the "*" wildcard are ignored.
func NewGate(origins []string) *Gate {
	g := &Gate{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = Normalize(strings.TrimSpace(o))
		if o == "" || o == "*" {
			continue
		}
		g.origins[o] = struct{}{}
	}
	return g
}

// Normalize strips exactly one trailing slash.
func Normalize(origin string) string {
	return strings.TrimSuffix(origin, "/")
}

// IsAllowed reports whether origin is on the allow-list. The comparison is
// exact and case-sensitive after Normalize; an empty origin never matches.
func (g *Gate) IsAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := g.origins[Normalize(origin)]
	return ok
}

// Origins returns the allow-list entries in sorted order.
func (g *Gate) Origins() []string {
	return slices.Sorted(maps.Keys(g.origins))
}

// SetPreflight writes the preflight headers when origin is allowed and
// reports whether it did. Nothing is written for a disallowed origin.
func (g *Gate) SetPreflight(h http.Header, origin string) bool {
	if !g.SetResponse(h, origin) {
		return false
	}
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Max-Age", maxAge)
	return true
}

// SetResponse writes Access-Control-Allow-Origin and Vary for a non-preflight
// response when origin is allowed. The echoed value is always the normalized
// request origin, never a wildcard.
func (g *Gate) SetResponse(h http.Header, origin string) bool {
	if !g.IsAllowed(origin) {
		return false
	}
	h.Set("Access-Control-Allow-Origin", Normalize(origin))
	h.Set("Vary", vary)
	return true
}
