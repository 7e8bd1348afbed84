package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	mw := CORSMiddleware([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rw := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })).ServeHTTP(rw, req)

	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected the configured origin to be echoed, got %q", got)
	}
}

func TestCORSMiddlewareRejectsUnlistedOrigin(t *testing.T) {
	mw := CORSMiddleware([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rw := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })).ServeHTTP(rw, req)

	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header for an unlisted origin, got %q", got)
	}
}

func TestCORSMiddlewareWildcardAllowsAnyOrigin(t *testing.T) {
	mw := CORSMiddleware([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	rw := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })).ServeHTTP(rw, req)

	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.com" {
		t.Fatalf("expected the wildcard config to echo any origin, got %q", got)
	}
}

func TestCORSMiddlewareShortCircuitsPreflight(t *testing.T) {
	mw := CORSMiddleware([]string{"*"})
	req := httptest.NewRequest(http.MethodOptions, "/v1/models", nil)
	rw := httptest.NewRecorder()

	var called bool
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if called {
		t.Fatal("expected an OPTIONS preflight to never reach the wrapped handler")
	}
	if rw.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for a preflight request, got %d", rw.Result().StatusCode)
	}
}

func TestSecurityHeadersMiddlewareSetsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rw := httptest.NewRecorder()

	SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rw, req)

	if rw.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected X-Content-Type-Options: nosniff")
	}
	if rw.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected X-Frame-Options: DENY")
	}
}

func TestRequestIDMiddlewareGeneratesWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rw := httptest.NewRecorder()

	var seenInContext string
	RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = GetRequestID(r.Context())
	})).ServeHTTP(rw, req)

	if seenInContext == "" {
		t.Fatal("expected a request id to be generated and attached to the context")
	}
	if rw.Header().Get("X-Request-ID") != seenInContext {
		t.Fatal("expected the response header to carry the same request id")
	}
}

func TestRequestIDMiddlewarePreservesCallerSupplied(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rw := httptest.NewRecorder()

	var seenInContext string
	RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInContext = GetRequestID(r.Context())
	})).ServeHTTP(rw, req)

	if seenInContext != "caller-supplied-id" {
		t.Fatalf("expected the caller-supplied request id to be preserved, got %q", seenInContext)
	}
}
