package security

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
)

func testSanitizeFilter() *Filter {
	return New(&config.Config{
		IPBlacklistTicks:    5,
		AllowedContentTypes: []string{"application/json", "text/plain"},
		MaxBodyBytes:        1024,
	}, zerolog.New(io.Discard))
}

func TestValidateContentTypeAllowsConfigured(t *testing.T) {
	f := testSanitizeFilter()
	if !f.ValidateContentType("application/json; charset=utf-8") {
		t.Fatal("expected an allow-listed content type with params to pass")
	}
	if f.ValidateContentType("application/xml") {
		t.Fatal("expected an unlisted content type to be rejected")
	}
	if !f.ValidateContentType("") {
		t.Fatal("expected an empty content type to pass through")
	}
}

func TestSanitizeInputRejectsUnsupportedContentType(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/xml")

	_, gerr := f.SanitizeInput(req, "1.2.3.4", []byte("<a/>"))
	if gerr == nil {
		t.Fatal("expected a rejection for an unsupported content type")
	}
}

func TestSanitizeInputRejectsOversizedBody(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	big := make([]byte, 2048)
	_, gerr := f.SanitizeInput(req, "1.2.3.4", big)
	if gerr == nil {
		t.Fatal("expected a rejection for a body over the configured cap")
	}
}

func TestSanitizeInputRejectsMaliciousPattern(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	_, gerr := f.SanitizeInput(req, "5.6.7.8", []byte(`{"prompt":"<script>alert(1)</script>"}`))
	if gerr == nil {
		t.Fatal("expected a rejection when the body matches a malicious pattern")
	}
}

func TestSanitizeInputEscapesJSONStringValues(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	out, gerr := f.SanitizeInput(req, "9.9.9.9", []byte(`{"name":"O'Brien"}`))
	if gerr != nil {
		t.Fatalf("expected a clean JSON body to pass, got %v", gerr)
	}
	if string(out) == `{"name":"O'Brien"}` {
		t.Fatal("expected the single quote to be escaped in the sanitized output")
	}
}

func TestSanitizeInputPassesThroughNonJSONBody(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "text/plain")

	out, gerr := f.SanitizeInput(req, "9.9.9.9", []byte("just plain text"))
	if gerr != nil {
		t.Fatalf("expected a non-JSON body to pass through, got %v", gerr)
	}
	if string(out) != "just plain text" {
		t.Fatalf("expected the body to be returned unmodified, got %q", out)
	}
}

func TestSanitizeInputEmptyBodyPassesThrough(t *testing.T) {
	f := testSanitizeFilter()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	req.Header.Set("Content-Type", "application/json")

	out, gerr := f.SanitizeInput(req, "9.9.9.9", nil)
	if gerr != nil || len(out) != 0 {
		t.Fatalf("expected an empty body to pass through untouched, got %v %v", out, gerr)
	}
}
