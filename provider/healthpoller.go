package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const healthPollInterval = 30 * time.Second

// HealthPoller continuously probes every model's health in the background
// and logs transitions (healthy → unhealthy or back).
type HealthPoller struct {
	registry *Registry
	logger   zerolog.Logger

	mu             sync.RWMutex
	lastStatus     map[string]bool // model id → was healthy
	statusChangeCB func(modelID string, healthy bool, status HealthStatus)

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthPoller(registry *Registry, logger zerolog.Logger) *HealthPoller {
	return &HealthPoller{
		registry:   registry,
		logger:     logger.With().Str("component", "health_poller").Logger(),
		lastStatus: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// OnStatusChange registers a callback invoked when a model's health status
// transitions.
func (hp *HealthPoller) OnStatusChange(cb func(modelID string, healthy bool, status HealthStatus)) {
	hp.statusChangeCB = cb
}

// Start begins the background polling loop. Call Stop to shut it down.
func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel

	hp.logger.Info().Dur("interval", healthPollInterval).Msg("starting model health poller")
	go hp.pollLoop(ctx)
}

func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
	hp.logger.Info().Msg("health poller stopped")
}

func (hp *HealthPoller) pollLoop(ctx context.Context) {
	defer close(hp.done)

	hp.poll(ctx)

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.poll(ctx)
		}
	}
}

func (hp *HealthPoller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, healthPollInterval/2)
	defer cancel()

	results := hp.registry.HealthCheckAll(pollCtx)

	hp.mu.Lock()
	defer hp.mu.Unlock()

	healthy, unhealthy := 0, 0
	for id, status := range results {
		wasHealthy, known := hp.lastStatus[id]
		if known && wasHealthy != status.Healthy {
			transition := "recovered"
			if !status.Healthy {
				transition = "degraded"
			}
			hp.logger.Warn().
				Str("model", id).
				Str("transition", transition).
				Str("error", status.Error).
				Dur("latency", status.Latency).
				Msg("model health transition")

			if hp.statusChangeCB != nil {
				hp.statusChangeCB(id, status.Healthy, status)
			}
		}
		hp.lastStatus[id] = status.Healthy

		if status.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}

	hp.logger.Debug().Int("healthy", healthy).Int("unhealthy", unhealthy).Msg("health poll complete")
}

// IsHealthy returns whether modelID was healthy at last check.
func (hp *HealthPoller) IsHealthy(modelID string) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	healthy, ok := hp.lastStatus[modelID]
	return ok && healthy
}
