package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
)

func TestHealthPollerFiresCallbackOnTransition(t *testing.T) {
	var mu sync.Mutex
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		status := "healthy"
		if !healthy {
			status = "degraded"
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	}))
	defer srv.Close()

	registry := testRegistry(map[string]config.Model{
		"qwen3_42b": testModel(srv.URL),
	})
	hp := NewHealthPoller(registry, zerolog.Nop())

	var transitions []bool
	hp.OnStatusChange(func(modelID string, healthy bool, status HealthStatus) {
		transitions = append(transitions, healthy)
	})

	// First poll establishes the baseline; no prior state means no
	// transition is recorded.
	hp.poll(context.Background())
	if len(transitions) != 0 {
		t.Fatalf("expected no transition on the first poll, got %v", transitions)
	}
	if !hp.IsHealthy("qwen3_42b") {
		t.Fatal("expected the model to be recorded healthy after the first poll")
	}

	mu.Lock()
	healthy = false
	mu.Unlock()
	hp.poll(context.Background())

	if len(transitions) != 1 || transitions[0] != false {
		t.Fatalf("expected exactly one healthy->unhealthy transition, got %v", transitions)
	}
	if hp.IsHealthy("qwen3_42b") {
		t.Fatal("expected the model to be recorded unhealthy after the second poll")
	}
}

func TestHealthPollerNoCallbackWithoutTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	registry := testRegistry(map[string]config.Model{
		"qwen3_42b": testModel(srv.URL),
	})
	hp := NewHealthPoller(registry, zerolog.Nop())

	var calls int
	hp.OnStatusChange(func(modelID string, healthy bool, status HealthStatus) {
		calls++
	})

	hp.poll(context.Background())
	hp.poll(context.Background())

	if calls != 0 {
		t.Fatalf("expected no transitions when the model stays healthy across polls, got %d calls", calls)
	}
}

func TestHealthPollerIsHealthyUnknownModel(t *testing.T) {
	registry := testRegistry(map[string]config.Model{})
	hp := NewHealthPoller(registry, zerolog.Nop())
	if hp.IsHealthy("never-polled") {
		t.Fatal("expected IsHealthy to be false for a model that has never been polled")
	}
}
