package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// HeaderNormalization performs request and response header normalization.
type HeaderNormalization struct {
	logger zerolog.Logger
}

func NewHeaderNormalization(logger zerolog.Logger) *HeaderNormalization {
	return &HeaderNormalization{logger: logger}
}

// headersToStripFromRequest are headers clients should not set directly;
// the gateway manages upstream auth itself.
var headersToStripFromRequest = []string{
	"x-api-key-upstream",
	"x-stainless-lang",
	"x-stainless-os",
	"x-stainless-runtime",
	"x-stainless-arch",
	"x-stainless-package-version",
}

// headersToStripFromResponse are upstream headers that should not leak to
// the client.
var headersToStripFromResponse = []string{
	"x-ratelimit-limit-requests",
	"x-ratelimit-limit-tokens",
	"x-ratelimit-remaining-requests",
	"x-ratelimit-remaining-tokens",
	"x-ratelimit-reset-requests",
	"x-ratelimit-reset-tokens",
	"server",
}

// gatewayResponseHeaders are headers the gateway always sets on responses.
var gatewayResponseHeaders = map[string]string{
	"X-Powered-By": "aigateway",
}

// Handler returns the HTTP middleware handler.
func (h *HeaderNormalization) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, header := range headersToStripFromRequest {
			if r.Header.Get(header) != "" {
				h.logger.Debug().Str("header", header).Str("path", r.URL.Path).Msg("stripped header from request")
				r.Header.Del(header)
			}
		}

		ct := r.Header.Get("Content-Type")
		if ct != "" && strings.Contains(ct, "json") && ct != "application/json" {
			r.Header.Set("Content-Type", "application/json")
		}
		if r.Header.Get("Accept") == "" {
			r.Header.Set("Accept", "application/json")
		}

		wrapped := &headerNormWriter{ResponseWriter: w}
		next.ServeHTTP(wrapped, r)
	})
}

type headerNormWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (hw *headerNormWriter) WriteHeader(code int) {
	if hw.wroteHeader {
		return
	}
	hw.wroteHeader = true

	for _, header := range headersToStripFromResponse {
		hw.ResponseWriter.Header().Del(header)
	}
	for k, v := range gatewayResponseHeaders {
		hw.ResponseWriter.Header().Set(k, v)
	}

	hw.ResponseWriter.WriteHeader(code)
}

func (hw *headerNormWriter) Write(b []byte) (int, error) {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	return hw.ResponseWriter.Write(b)
}

func (hw *headerNormWriter) Flush() {
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
