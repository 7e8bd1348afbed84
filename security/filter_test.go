package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
)

func testFilter() *Filter {
	cfg := &config.Config{
		AllowedContentTypes: []string{"application/json"},
		MaxBodyBytes:        1 << 20,
		IPBlacklistTicks:    5,
	}
	return New(cfg, zerolog.New(io.Discard))
}

func TestSanitizeInputRejectsMaliciousContent(t *testing.T) {
	f := testFilter()
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	body := []byte(`{"prompt":"<script>alert(1)</script>"}`)
	_, gerr := f.SanitizeInput(req, "1.2.3.4", body)
	if gerr == nil {
		t.Fatal("expected malicious-content rejection")
	}
	if string(gerr.Kind) != "malicious-content" {
		t.Fatalf("expected malicious-content, got %s", gerr.Kind)
	}
}

func TestSanitizeInputRejectsBadContentType(t *testing.T) {
	f := testFilter()
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/xml")

	_, gerr := f.SanitizeInput(req, "1.2.3.4", []byte(`<x/>`))
	if gerr == nil || string(gerr.Kind) != "unsupported-content-type" {
		t.Fatalf("expected unsupported-content-type, got %v", gerr)
	}
}

func TestSanitizeInputPassesCleanJSON(t *testing.T) {
	f := testFilter()
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	body := []byte(`{"prompt":"hello world","max_tokens":100}`)
	out, gerr := f.SanitizeInput(req, "1.2.3.4", body)
	if gerr != nil {
		t.Fatalf("unexpected rejection: %v", gerr)
	}
	if !strings.Contains(string(out), "hello world") {
		t.Fatalf("expected clean body to survive sanitization, got %s", out)
	}
}

func TestRecordTickBlocksAfterThreshold(t *testing.T) {
	f := testFilter()
	ip := "9.9.9.9"

	for i := 0; i < 4; i++ {
		f.RecordTick(ip)
		if f.IsBlocked(ip) {
			t.Fatalf("ip blocked too early at tick %d", i+1)
		}
	}
	f.RecordTick(ip)
	if !f.IsBlocked(ip) {
		t.Fatal("expected ip to be blocked after reaching the tick threshold")
	}
}

func TestFilterOutputMasksSensitiveKeys(t *testing.T) {
	f := testFilter()
	body := []byte(`{"api_key":"sk-abcdefghijklmnop","result":"ok"}`)
	out := f.FilterOutput(body)
	if strings.Contains(string(out), "sk-abcdefghijklmnop") {
		t.Fatalf("expected api_key value to be masked, got %s", out)
	}
}

func TestFilterOutputMasksInlineSecretInContent(t *testing.T) {
	f := testFilter()
	body := []byte(`{"choices":[{"message":{"content":"your password=hunter2 is set"}}]}`)
	out := f.FilterOutput(body)
	if strings.Contains(string(out), "hunter2") {
		t.Fatalf("expected hunter2 to be redacted, got %s", out)
	}
}

func TestFilterOutputIsIdempotent(t *testing.T) {
	f := testFilter()
	body := []byte(`{"email":"john.doe@example.com","api_key":"sk-abcdefghijklmnop"}`)
	once := f.FilterOutput(body)
	twice := f.FilterOutput(once)
	if string(once) != string(twice) {
		t.Fatalf("expected idempotent masking, got %s then %s", once, twice)
	}
}
