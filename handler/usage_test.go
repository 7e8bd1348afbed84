package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/identity"
)

func TestUsageAggregatesAcrossKeys(t *testing.T) {
	ids := identity.New()
	k1, _, err := ids.CreateKey("principal-1", "key-a", "free")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	k2, _, err := ids.CreateKey("principal-1", "key-b", "free")
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if err := ids.BumpUsage(k1.ID, 3, 100, 200, 0.05); err != nil {
		t.Fatalf("BumpUsage: %v", err)
	}
	if err := ids.BumpUsage(k2.ID, 2, 50, 80, 0.02); err != nil {
		t.Fatalf("BumpUsage: %v", err)
	}

	h := &Handler{cfg: &config.Config{}, ids: ids}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req = withPrincipal(req, "principal-1", "free")
	rw := httptest.NewRecorder()

	h.Usage(rw, req)

	var out usageSummary
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Requests != 5 {
		t.Fatalf("expected 5 requests total, got %d", out.Requests)
	}
	if out.InputTokens != 150 || out.OutputTokens != 280 {
		t.Fatalf("expected 150/280 tokens, got %d/%d", out.InputTokens, out.OutputTokens)
	}
	if out.CurrentCostUSD < 0.069 || out.CurrentCostUSD > 0.071 {
		t.Fatalf("expected current cost ~0.07, got %f", out.CurrentCostUSD)
	}
}

func TestUsageNoKeysReturnsZeroes(t *testing.T) {
	ids := identity.New()
	h := &Handler{cfg: &config.Config{}, ids: ids}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
	req = withPrincipal(req, "principal-empty", "free")
	rw := httptest.NewRecorder()

	h.Usage(rw, req)

	var out usageSummary
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Requests != 0 || out.CurrentCostUSD != 0 {
		t.Fatalf("expected all-zero summary for a principal with no keys, got %+v", out)
	}
}
