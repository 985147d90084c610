package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

func TestRequestIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.7:5123"
	r.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")

	if got := RequestIP(r, false); got != "198.51.100.7" {
		t.Fatalf("untrusted: %q", got)
	}
	if got := RequestIP(r, true); got != "203.0.113.1" {
		t.Fatalf("trusted: %q", got)
	}
	r.Header.Set("X-Forwarded-For", "garbage")
	if got := RequestIP(r, true); got != "198.51.100.7" {
		t.Fatalf("invalid header must fall back: %q", got)
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var seen string
	h := ClientIP(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = goSession.ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.44:1"
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "192.0.2.44" {
		t.Fatalf("ip in context = %q", seen)
	}
}
