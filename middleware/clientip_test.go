package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveClientIPUsesRemoteAddrWithoutXFF(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.RemoteAddr = "203.0.113.7:54321"

	if got := resolveClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected 203.0.113.7, got %s", got)
	}
}

func TestResolveClientIPSkipsPrivateHops(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 172.16.5.5, 203.0.113.9")

	if got := resolveClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected the first non-private hop 203.0.113.9, got %s", got)
	}
}

func TestResolveClientIPFallsBackWhenAllHopsPrivate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.RemoteAddr = "198.51.100.2:1234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.1.1")

	if got := resolveClientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected fallback to RemoteAddr 198.51.100.2, got %s", got)
	}
}

func TestClientIPMiddlewareAttachesIPToContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	rw := httptest.NewRecorder()

	var ip string
	ClientIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = GetClientIP(r.Context())
	})).ServeHTTP(rw, req)

	if ip != "203.0.113.7" {
		t.Fatalf("expected context client IP 203.0.113.7, got %s", ip)
	}
}
