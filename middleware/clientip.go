package middleware

import (
	"net"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// ClientIP attaches the caller's IP to the request context. With
// trustProxy the first X-Forwarded-For entry wins; only enable it behind a
// proxy that overwrites the header.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goSession.WithClientIP(r.Context(), RequestIP(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIP extracts the caller's IP from r.
func RequestIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
