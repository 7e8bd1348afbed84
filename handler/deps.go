// Package handler holds C8: the gateway's endpoint handlers. Each handler
// is a method on Handler, which carries every dependency a handler might
// need (config, C2 identity, C3 provider registry/pricing, C9 metrics),
// injected once at startup rather than read from package globals.
package handler

import (
	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/observability"
	"github.com/alfreddev/aigateway/provider"
)

type Handler struct {
	cfg      *config.Config
	ids      *identity.Store
	registry *provider.Registry
	pricing  *provider.Pricing
	metrics  *observability.Metrics
	health   *observability.HealthAggregator
	logger   zerolog.Logger
}

func New(cfg *config.Config, ids *identity.Store, registry *provider.Registry, pricing *provider.Pricing, metrics *observability.Metrics, health *observability.HealthAggregator, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		ids:      ids,
		registry: registry,
		pricing:  pricing,
		metrics:  metrics,
		health:   health,
		logger:   logger.With().Str("component", "handler").Logger(),
	}
}
