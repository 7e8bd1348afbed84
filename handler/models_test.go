package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/middleware"
)

func testConfigWithModels() *config.Config {
	return &config.Config{
		MaxBodyBytes: 1 << 20,
		Tiers: map[string]config.Tier{
			"free": {
				Name:          "free",
				AllowedModels: map[string]bool{"qwen3_42b": true},
			},
			"enterprise": {
				Name:          "enterprise",
				AllowedModels: map[string]bool{"*": true},
			},
		},
		Models: map[string]config.Model{
			"qwen3_42b": {ID: "qwen3_42b", DisplayName: "Qwen3 42B", ContextWindow: 32768, MaxOutputTokens: 4096},
			"gpt-oss":   {ID: "gpt-oss", DisplayName: "GPT OSS", ContextWindow: 8192, MaxOutputTokens: 2048},
		},
	}
}

func withPrincipal(r *http.Request, id, tier string) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), &identity.Principal{ID: id, Tier: tier}))
}

func TestListModelsFiltersByTier(t *testing.T) {
	h := &Handler{cfg: testConfigWithModels()}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = withPrincipal(req, "principal-1", "free")
	rw := httptest.NewRecorder()

	h.ListModels(rw, req)

	var out struct {
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Models) != 1 || out.Models[0].ID != "qwen3_42b" {
		t.Fatalf("expected only qwen3_42b for free tier, got %+v", out.Models)
	}
}

func TestListModelsUnrestrictedTierSeesAll(t *testing.T) {
	h := &Handler{cfg: testConfigWithModels()}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = withPrincipal(req, "principal-2", "enterprise")
	rw := httptest.NewRecorder()

	h.ListModels(rw, req)

	var out struct {
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Models) != 2 {
		t.Fatalf("expected both models for the unrestricted tier, got %+v", out.Models)
	}
}

func TestListModelsUnknownTierReturnsEmptyList(t *testing.T) {
	h := &Handler{cfg: testConfigWithModels()}

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = withPrincipal(req, "principal-3", "nonexistent")
	rw := httptest.NewRecorder()

	h.ListModels(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Result().StatusCode)
	}
	var out struct {
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Models) != 0 {
		t.Fatalf("expected no models for an unknown tier, got %+v", out.Models)
	}
}
