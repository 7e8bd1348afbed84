package provider

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	DisableCompression    bool
	ForceHTTP2            bool
}

// DefaultPoolConfig returns production-grade pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		ResponseHeaderTimeout: 0, // bounded by the request context deadline instead
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    false,
		ForceHTTP2:            true,
	}
}

// PoolMetrics tracks connection pool utilization per model.
type PoolMetrics struct {
	ActiveConnections sync.Map // map[string]*int64
	TotalRequests     sync.Map // map[string]*int64
	TotalErrors       sync.Map // map[string]*int64
	ConnectionReuses  sync.Map // map[string]*int64
}

// ConnectionPool manages shared HTTP transports and clients keyed by model
// id, so every upstream connector reuses pooled connections instead of each
// allocating its own transport.
type ConnectionPool struct {
	mu         sync.RWMutex
	transports map[string]*http.Transport
	clients    map[string]*http.Client
	configs    map[string]PoolConfig
	defaults   PoolConfig
	metrics    *PoolMetrics
}

func NewConnectionPool(defaults PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		transports: make(map[string]*http.Transport),
		clients:    make(map[string]*http.Client),
		configs:    make(map[string]PoolConfig),
		defaults:   defaults,
		metrics:    &PoolMetrics{},
	}
}

// GetClient returns a shared HTTP client for a model with the given
// timeout, creating its transport on first access.
func (p *ConnectionPool) GetClient(modelID string, timeout time.Duration) *http.Client {
	p.mu.RLock()
	if c, ok := p.clients[modelID]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[modelID]; ok {
		return c
	}

	cfg := p.configFor(modelID)
	transport := p.createTransport(cfg)
	p.transports[modelID] = transport

	client := &http.Client{
		Transport: &metricsRoundTripper{
			inner:   transport,
			modelID: modelID,
			metrics: p.metrics,
		},
		Timeout: timeout,
	}
	p.clients[modelID] = client

	return client
}

// Metrics returns the current pool metrics snapshot.
func (p *ConnectionPool) Metrics() map[string]map[string]int64 {
	result := make(map[string]map[string]int64)

	collect := func(store *sync.Map, field string) {
		store.Range(func(key, value interface{}) bool {
			name := key.(string)
			if _, ok := result[name]; !ok {
				result[name] = make(map[string]int64)
			}
			result[name][field] = atomic.LoadInt64(value.(*int64))
			return true
		})
	}
	collect(&p.metrics.TotalRequests, "total_requests")
	collect(&p.metrics.TotalErrors, "total_errors")
	collect(&p.metrics.ActiveConnections, "active_connections")
	collect(&p.metrics.ConnectionReuses, "connection_reuses")

	return result
}

// Close gracefully closes all idle connections.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		t.CloseIdleConnections()
	}
}

func (p *ConnectionPool) configFor(modelID string) PoolConfig {
	if cfg, ok := p.configs[modelID]; ok {
		return cfg
	}
	return p.defaults
}

func (p *ConnectionPool) createTransport(cfg PoolConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableCompression:    cfg.DisableCompression,
	}

	if cfg.ForceHTTP2 {
		t.TLSClientConfig = &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
			MinVersion: tls.VersionTLS12,
		}
		t.ForceAttemptHTTP2 = true
	}

	return t
}

// metricsRoundTripper wraps an http.RoundTripper to track connection
// metrics per model.
type metricsRoundTripper struct {
	inner   http.RoundTripper
	modelID string
	metrics *PoolMetrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	active := m.counter(&m.metrics.ActiveConnections)
	atomic.AddInt64(active, 1)
	defer atomic.AddInt64(active, -1)

	atomic.AddInt64(m.counter(&m.metrics.TotalRequests), 1)

	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		atomic.AddInt64(m.counter(&m.metrics.TotalErrors), 1)
		return nil, err
	}

	if !resp.Close {
		atomic.AddInt64(m.counter(&m.metrics.ConnectionReuses), 1)
	}

	return resp, nil
}

func (m *metricsRoundTripper) counter(store *sync.Map) *int64 {
	if val, ok := store.Load(m.modelID); ok {
		return val.(*int64)
	}
	counter := new(int64)
	actual, _ := store.LoadOrStore(m.modelID, counter)
	return actual.(*int64)
}
