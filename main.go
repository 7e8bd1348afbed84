package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/handler"
	"github.com/alfreddev/aigateway/identity"
	"github.com/alfreddev/aigateway/jwtauth"
	"github.com/alfreddev/aigateway/kv"
	"github.com/alfreddev/aigateway/logger"
	"github.com/alfreddev/aigateway/middleware"
	"github.com/alfreddev/aigateway/oauthflow"
	"github.com/alfreddev/aigateway/observability"
	"github.com/alfreddev/aigateway/provider"
	"github.com/alfreddev/aigateway/router"
	"github.com/alfreddev/aigateway/security"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("aigateway starting")

	store, err := kv.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("kv store init failed")
	}
	if err := store.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing, admission/identity calls will fail fast")
	} else {
		log.Info().Msg("redis connected")
	}

	ids := identity.New()

	tokens := newTokenManager(cfg, log)

	pool := provider.NewConnectionPool(provider.DefaultPoolConfig())
	registry := provider.NewRegistry(cfg, pool)
	pricing := provider.NewPricing(cfg)

	metrics := observability.New()
	health := observability.NewHealthAggregator(store, registry, pool)

	healthPoller := provider.NewHealthPoller(registry, log)
	healthPoller.OnStatusChange(func(modelID string, healthy bool, status provider.HealthStatus) {
		if healthy {
			log.Info().Str("model", modelID).Msg("model recovered")
		} else {
			log.Error().Str("model", modelID).Str("error", status.Error).Msg("model degraded")
		}
	})
	healthPoller.Start()

	filter := security.New(cfg, log)
	filter.StartJanitor()

	auth := middleware.NewAuthenticator(cfg, ids, tokens, log)
	admission := middleware.NewAdmission(cfg, store, filter, log)
	oauth := oauthflow.New(cfg.OAuthProviders, store, ids, tokens, log)
	h := handler.New(cfg, ids, registry, pricing, metrics, health, log)

	r := router.New(router.Deps{
		Config:        cfg,
		Logger:        log,
		Admission:     admission,
		Authenticator: auth,
		Security:      filter,
		Handler:       h,
		OAuth:         oauth,
		Metrics:       metrics,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Int("models", len(registry.List())).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}

// newTokenManager selects the bearer-token signing key: RS256 whenever a
// keypair is configured, falling back to an HS256 dev key only in
// development — and loudly, since a misconfigured production deploy
// falling back to a shared dev secret would be a silent credential hole.
func newTokenManager(cfg *config.Config, log zerolog.Logger) *jwtauth.TokenManager {
	if cfg.JWTPrivateKeyPEM != "" {
		ks, err := jwtauth.NewRS256KeySet(cfg.JWTPrivateKeyPEM)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load RS256 signing key")
		}
		return jwtauth.NewTokenManager(ks, cfg.JWTIssuer, cfg.JWTAudience)
	}

	if !cfg.IsDevelopment() {
		log.Fatal().Msg("no JWT_PRIVATE_KEY_PEM configured outside development — refusing to start with no signing key")
	}

	log.Warn().Msg("no JWT_PRIVATE_KEY_PEM configured — using HS256 development key, NEVER use this in production")
	ks := jwtauth.NewHS256DevKeySet(cfg.JWTDevHS256Secret)
	return jwtauth.NewTokenManager(ks, cfg.JWTIssuer, cfg.JWTAudience)
}
