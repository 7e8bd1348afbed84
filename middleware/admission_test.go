package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/kv"
)

type recordingSuspicion struct {
	ticks []string
}

func (r *recordingSuspicion) RecordTick(ip string) {
	r.ticks = append(r.ticks, ip)
}

func testAdmission(t *testing.T, cfg *config.Config, suspicion SuspicionRecorder) *Admission {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg.RedisURL = "redis://" + mr.Addr()
	store, err := kv.New(cfg)
	if err != nil {
		t.Fatalf("kv.New: %v", err)
	}
	return NewAdmission(cfg, store, suspicion, zerolog.New(io.Discard))
}

func testAdmissionWithDeadStore(t *testing.T, cfg *config.Config, suspicion SuspicionRecorder) *Admission {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	cfg.RedisURL = "redis://" + mr.Addr()
	store, err := kv.New(cfg)
	if err != nil {
		t.Fatalf("kv.New: %v", err)
	}
	mr.Close()
	return NewAdmission(cfg, store, suspicion, zerolog.New(io.Discard))
}

func TestGlobalFailsClosedWhenKVUnavailable(t *testing.T) {
	a := testAdmissionWithDeadStore(t, &config.Config{RateLimitEnabled: true, GlobalRPS: 100, GlobalBurst: 100}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()

	var called bool
	a.Global(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if called {
		t.Fatal("expected the request to be denied, not passed through, when the kv store is unreachable")
	}
	if rw.Result().StatusCode != http.StatusBadGateway {
		t.Fatalf("expected a retryable upstream-unavailable response, got %d", rw.Result().StatusCode)
	}
	if rw.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on the fail-closed response")
	}
}

func TestPerIPFailsClosedWhenKVUnavailable(t *testing.T) {
	a := testAdmissionWithDeadStore(t, &config.Config{RateLimitEnabled: true, PerIPPerMinute: 100}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = req.WithContext(WithClientIP(req.Context(), "5.5.5.5"))
	rw := httptest.NewRecorder()

	var called bool
	a.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if called {
		t.Fatal("expected the request to be denied, not passed through, when the kv store is unreachable")
	}
	if rw.Result().StatusCode != http.StatusBadGateway {
		t.Fatalf("expected a retryable upstream-unavailable response, got %d", rw.Result().StatusCode)
	}
}

func TestPerPrincipalFailsClosedWhenKVUnavailable(t *testing.T) {
	cfg := &config.Config{
		RateLimitEnabled: true,
		Tiers: map[string]config.Tier{
			"free": {Name: "free", RequestsPerHour: 1000, ConcurrentRequests: 5},
		},
	}
	a := testAdmissionWithDeadStore(t, cfg, nil)
	principal := &identity.Principal{ID: "principal-1", Tier: "free"}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rw := httptest.NewRecorder()

	var called bool
	a.PerPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if called {
		t.Fatal("expected the request to be denied, not passed through, when the kv store is unreachable")
	}
	if rw.Result().StatusCode != http.StatusBadGateway {
		t.Fatalf("expected a retryable upstream-unavailable response, got %d", rw.Result().StatusCode)
	}
}

func TestGlobalDisabledPassesThrough(t *testing.T) {
	a := testAdmission(t, &config.Config{RateLimitEnabled: false}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()

	var called bool
	a.Global(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if !called {
		t.Fatal("expected next handler to run when rate limiting is disabled")
	}
}

func TestGlobalBlocksOverLimit(t *testing.T) {
	a := testAdmission(t, &config.Config{RateLimitEnabled: true, GlobalRPS: 1, GlobalBurst: 0}, nil)

	var allowed, limited int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		rw := httptest.NewRecorder()
		a.Global(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rw, req)
		if rw.Result().StatusCode == http.StatusOK {
			allowed++
		} else if rw.Result().StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}

	if allowed == 0 || limited == 0 {
		t.Fatalf("expected a mix of allowed and rate-limited requests, got %d allowed, %d limited", allowed, limited)
	}
}

func TestPerIPEscalatesToSuspicionOverLimit(t *testing.T) {
	suspicion := &recordingSuspicion{}
	a := testAdmission(t, &config.Config{RateLimitEnabled: true, PerIPPerMinute: 2}, suspicion)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		req = req.WithContext(WithClientIP(req.Context(), "5.5.5.5"))
		rw := httptest.NewRecorder()
		a.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rw, req)
	}

	if len(suspicion.ticks) == 0 {
		t.Fatal("expected the over-limit ip to be recorded against the suspicion tracker")
	}
}

func TestPerIPSkipsWithoutClientIP(t *testing.T) {
	a := testAdmission(t, &config.Config{RateLimitEnabled: true, PerIPPerMinute: 1}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()

	var called bool
	a.PerIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rw, req)

	if !called {
		t.Fatal("expected pass-through when no client ip is attached to the context")
	}
}

func TestPerPrincipalRequiresPrincipal(t *testing.T) {
	a := testAdmission(t, &config.Config{RateLimitEnabled: false, Tiers: map[string]config.Tier{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rw := httptest.NewRecorder()

	a.PerPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a principal")
	})).ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Result().StatusCode)
	}
}

func TestPerPrincipalEnforcesConcurrencyCap(t *testing.T) {
	cfg := &config.Config{
		RateLimitEnabled: false,
		Tiers: map[string]config.Tier{
			"free": {Name: "free", ConcurrentRequests: 1},
		},
	}
	a := testAdmission(t, cfg, nil)
	principal := &identity.Principal{ID: "principal-1", Tier: "free"}

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		req = req.WithContext(WithPrincipal(req.Context(), principal))
		rw := httptest.NewRecorder()
		a.PerPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(started)
			<-release
		})).ServeHTTP(rw, req)
	}()
	<-started

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = req.WithContext(WithPrincipal(req.Context(), principal))
	rw := httptest.NewRecorder()
	a.PerPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("second concurrent request should not reach the handler while the cap is held")
	})).ServeHTTP(rw, req)

	close(release)

	if rw.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for exceeding the concurrency cap, got %d", rw.Result().StatusCode)
	}
}
