package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// DefaultKeyHeader and DefaultKey identify callers in the reference
// configuration.
const (
	DefaultKeyHeader = "user"
	DefaultKey       = "anonymous"
)

// KeyFunc extracts a rate limit key from an inbound request.
type KeyFunc func(r *http.Request) string

// HeaderKeyFunc returns a KeyFunc that uses the first value of header as
// the key, or fallback when the header is absent or empty.
func HeaderKeyFunc(header, fallback string) KeyFunc {
	if fallback == "" {
		fallback = DefaultKey
	}
	return func(r *http.Request) string {
		if values := r.Header.Values(header); len(values) > 0 && values[0] != "" {
			return values[0]
		}
		return fallback
	}
}

// IPKeyFunc uses the client IP as the rate limit key.
func IPKeyFunc(r *http.Request) string {
	return GetClientIP(r)
}

// PerRouteKeyFunc prefixes keys with the route id so that routes sharing a
// limiter do not share buckets.
func PerRouteKeyFunc(routeID string, base KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		return routeID + ":" + base(r)
	}
}

// GetClientIP extracts the client IP from the request.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
