package observability

import (
	"context"
	"runtime"
	"time"

	"github.com/alfreddev/aigateway/kv"
	"github.com/alfreddev/aigateway/provider"
)

// Status is one component's or the overall system's health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is one named component's reported status.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport is the §4.9 aggregate health view.
type HealthReport struct {
	Status     Status                      `json:"status"`
	Components []ComponentHealth           `json:"components"`
	UptimeSec  float64                     `json:"uptimeSeconds"`
	HeapAlloc  uint64                      `json:"heapAllocBytes"`
	PoolStats  map[string]map[string]int64 `json:"poolStats,omitempty"`
}

// HealthAggregator computes /health and /ready from C1 and the model
// fleet's live state.
type HealthAggregator struct {
	store     *kv.Store
	registry  *provider.Registry
	pool      *provider.ConnectionPool
	startedAt time.Time
}

func NewHealthAggregator(store *kv.Store, registry *provider.Registry, pool *provider.ConnectionPool) *HealthAggregator {
	return &HealthAggregator{store: store, registry: registry, pool: pool, startedAt: time.Now()}
}

// Health walks C1 and every model, returning the §4.9 aggregation: overall
// status is unhealthy iff any model or C1 is unhealthy, else degraded if
// any component is degraded, else healthy.
func (h *HealthAggregator) Health(ctx context.Context) HealthReport {
	components := make([]ComponentHealth, 0, len(h.registry.List())+1)

	kvStatus := StatusHealthy
	if err := h.store.Ping(ctx); err != nil {
		kvStatus = StatusUnhealthy
	}
	components = append(components, ComponentHealth{Name: "kv", Status: kvStatus})

	anyUnhealthy := kvStatus == StatusUnhealthy
	anyDegraded := false

	for _, modelID := range h.registry.List() {
		conn, err := h.registry.Get(modelID)
		if err != nil {
			continue
		}
		hs := conn.Status()
		breakerState := conn.BreakerState()
		status := StatusHealthy
		detail := ""
		switch {
		case !hs.Healthy:
			status = StatusUnhealthy
			anyUnhealthy = true
			detail = hs.Error
		case breakerState.String() != "closed":
			status = StatusDegraded
			anyDegraded = true
			detail = "circuit breaker " + breakerState.String()
		case hs.Latency > 5*time.Second:
			status = StatusDegraded
			anyDegraded = true
		}
		components = append(components, ComponentHealth{Name: conn.Model().ID, Status: status, Detail: detail})
	}

	overall := StatusHealthy
	if anyUnhealthy {
		overall = StatusUnhealthy
	} else if anyDegraded {
		overall = StatusDegraded
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return HealthReport{
		Status:     overall,
		Components: components,
		UptimeSec:  time.Since(h.startedAt).Seconds(),
		HeapAlloc:  mem.HeapAlloc,
		PoolStats:  h.pool.Metrics(),
	}
}

// Ready reports readiness: C1 reachable and at least one model healthy.
func (h *HealthAggregator) Ready(ctx context.Context) bool {
	if err := h.store.Ping(ctx); err != nil {
		return false
	}
	return h.registry.AnyHealthy()
}
