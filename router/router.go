// Package router assembles C7: the exact request pipeline ordering from
// SPEC_FULL.md §4.7 as a chi middleware chain, and mounts the §4.8 route
// table.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/handler"
	gwmw "github.com/alfreddev/aigateway/middleware"
	"github.com/alfreddev/aigateway/oauthflow"
	"github.com/alfreddev/aigateway/observability"
	"github.com/alfreddev/aigateway/security"
)

// Deps bundles every component the router wires together. Each field is
// constructed once in main.go and handed to New.
type Deps struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Admission     *gwmw.Admission
	Authenticator *gwmw.Authenticator
	Security      *security.Filter
	Handler       *handler.Handler
	OAuth         *oauthflow.Flow
	Metrics       *observability.Metrics
}

// New builds the chi router with the full §4.7 middleware chain and §4.8
// route table mounted.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Step 1: request-id + client-ip.
	r.Use(gwmw.RequestIDMiddleware)
	r.Use(gwmw.ClientIPMiddleware)

	// Panic recovery wraps everything below it so a panic anywhere in the
	// pipeline still produces the spec's exact envelope.
	r.Use(gwmw.Recovery(d.Logger))

	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)

	// Step 2: active-connections gauge + structured request log + metrics,
	// bracketing every stage below so step 9's "observability close" covers
	// the whole pipeline, not just the handler.
	r.Use(observabilityMiddleware(d.Metrics, d.Logger))

	// Steps 3-4 (IP block gate, input sanitize) and step 8 (output filter)
	// are one middleware: security.Filter.Gate buffers the response so the
	// output stage can run over the complete body.
	r.Use(d.Security.Gate)

	// Step 5: global admission limit.
	r.Use(d.Admission.Global)

	mountUnauthenticated(r, d)
	mountV1(r, d)
	mountAuth(r, d)

	return r
}

func mountUnauthenticated(r chi.Router, d Deps) {
	r.Get("/health", d.Handler.Health)
	r.Get("/ready", d.Handler.Ready)
	r.Get("/openapi.json", handler.OpenAPIHandler())
	r.Get("/docs", handler.SwaggerUIHandler())
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.Handler().ServeHTTP)
	}
}

// mountV1 is the §4.8 `/v1/*` surface: step 6 is chi's own route match
// (404 falls through to chi's NotFound), step 7 is C4 authenticate then C5
// tier limit then the handler.
func mountV1(r chi.Router, d Deps) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(d.Authenticator.Authenticate)
		r.Use(d.Admission.PerPrincipal)

		r.Get("/models", d.Handler.ListModels)
		r.Post("/completions", d.Handler.Completions)
		r.Post("/chat/completions", d.Handler.ChatCompletions)
		r.Post("/code/analysis", d.Handler.CodeAnalysis)
		r.Post("/security/scan", d.Handler.SecurityScan)
		r.Get("/usage", d.Handler.Usage)
	})
}

// mountAuth is the §4.8 `/auth/*` surface: api-keys CRUD sits behind the
// same authenticate+tier-limit stack as /v1 (it identifies a principal);
// the OAuth start/callback pair is unauthenticated by nature — it is how
// a principal is established in the first place.
func mountAuth(r chi.Router, d Deps) {
	r.Route("/auth", func(r chi.Router) {
		r.Get("/oauth/{provider}", func(w http.ResponseWriter, r *http.Request) {
			d.OAuth.StartLogin(w, r, chi.URLParam(r, "provider"))
		})
		r.Get("/oauth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
			d.OAuth.HandleCallback(w, r, chi.URLParam(r, "provider"))
		})

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.Authenticate)
			r.Use(d.Admission.PerPrincipal)

			r.Post("/api-keys", d.Handler.CreateAPIKey)
			r.Get("/api-keys", d.Handler.ListAPIKeys)
			r.Delete("/api-keys/{id}", d.Handler.RevokeAPIKey)
		})
	})
}

// observabilityMiddleware is step 2 (connection gauge) and step 9
// (observability close): it records http_requests_total/duration and
// writes the structured per-request log line the teacher's
// mwRequestLogger established, generalized to also carry the resolved
// principal's tier once C4 has run.
func observabilityMiddleware(metrics *observability.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.ConnectionOpened()
			defer metrics.ConnectionClosed()

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			dur := time.Since(start)

			tier := "anonymous"
			if p := gwmw.GetPrincipal(r.Context()); p != nil {
				tier = p.Tier
			}
			endpoint := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				endpoint = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.ObserveRequest(r.Method, strconv.Itoa(status), endpoint, tier, dur)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("requestId", gwmw.GetRequestID(r.Context())).
				Str("clientIp", gwmw.GetClientIP(r.Context())).
				Int("status", status).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
