package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecoveryCatchesPanicAndReturns500(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/completions", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-123"))
	rw := httptest.NewRecorder()

	Recovery(zerolog.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})).ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Result().StatusCode)
	}

	var body map[string]string
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected valid JSON body, got error: %v, body: %s", err, rw.Body.String())
	}
	if body["requestId"] != "req-123" {
		t.Fatalf("expected requestId req-123 in panic envelope, got %+v", body)
	}
}

func TestRecoveryPassesThroughWithoutPanic(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/completions", nil)
	rw := httptest.NewRecorder()

	Recovery(zerolog.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 passthrough, got %d", rw.Result().StatusCode)
	}
}
