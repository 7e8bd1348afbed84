package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfreddev/aigateway/config"
)

// Registry holds one Connector per configured model, keyed by model id.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
}

// NewRegistry builds a connector for every model in cfg.Models, sharing a
// single ConnectionPool across all of them.
func NewRegistry(cfg *config.Config, pool *ConnectionPool) *Registry {
	r := &Registry{connectors: make(map[string]*Connector, len(cfg.Models))}
	for id, model := range cfg.Models {
		r.connectors[id] = NewConnector(model, pool)
	}
	return r
}

// Get returns the connector for modelID.
func (r *Registry) Get(modelID string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[modelID]
	if !ok {
		return nil, fmt.Errorf("provider: no connector registered for model %q", modelID)
	}
	return c, nil
}

// List returns every configured model id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	return ids
}

// HealthCheckAll probes every model concurrently and returns their
// statuses keyed by model id.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	connectors := make(map[string]*Connector, len(r.connectors))
	for id, c := range r.connectors {
		connectors[id] = c
	}
	r.mu.RUnlock()

	results := make(map[string]HealthStatus, len(connectors))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for id, c := range connectors {
		wg.Add(1)
		go func(modelID string, conn *Connector) {
			defer wg.Done()
			status := conn.HealthCheck(ctx)
			mu.Lock()
			results[modelID] = status
			mu.Unlock()
		}(id, c)
	}
	wg.Wait()

	return results
}

// AnyHealthy reports whether at least one model is currently healthy,
// used by /ready (§4.9).
func (r *Registry) AnyHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.connectors {
		if c.Status().Healthy {
			return true
		}
	}
	return false
}
