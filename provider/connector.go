package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alfreddev/aigateway/circuitbreaker"
	"github.com/alfreddev/aigateway/config"
)

// hardCallTimeout is the absolute ceiling on a single upstream completion
// call, regardless of the client's own deadline (§5).
const hardCallTimeout = 120 * time.Second

const healthCheckTimeout = 10 * time.Second

// UpstreamError distinguishes caller-caused 4xx responses (which do not
// trip the circuit breaker) from everything else.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream-error: status %d: %s", e.StatusCode, e.Body)
}

// ErrUpstreamUnavailable is returned when the circuit breaker refuses a
// request or the model's last health probe reported unhealthy.
var ErrUpstreamUnavailable = fmt.Errorf("upstream-unavailable")

// Connector dispatches requests to one upstream model. Both fleet models
// (qwen3_42b, qwen3_moe) speak the same OpenAI-compatible wire contract, so
// one Connector implementation, parameterized by config.Model, serves both.
type Connector struct {
	model   config.Model
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker

	mu      sync.RWMutex
	healthy bool
	latency time.Duration
	lastErr string
	checked time.Time
}

// NewConnector builds a connector for model, drawing its HTTP client from
// the shared pool.
func NewConnector(model config.Model, pool *ConnectionPool) *Connector {
	return &Connector{
		model:   model,
		client:  pool.GetClient(model.ID, hardCallTimeout),
		breaker: circuitbreaker.New(),
	}
}

// Model returns the connector's static model configuration.
func (c *Connector) Model() config.Model { return c.model }

// Correlation carries the values C3 must propagate to the upstream for
// request correlation (§4.3 step 2).
type Correlation struct {
	RequestID       string
	PrincipalID     string
	PrincipalTier   string
}

// Dispatch sends req to the upstream's "/v1/<endpoint>" path (endpoint is
// "completions" or "chat/completions"), honoring the circuit breaker and
// request hard timeout.
func (c *Connector) Dispatch(ctx context.Context, endpoint string, req CompletionRequest, corr Correlation) (*CompletionResponse, error) {
	if !c.Status().Healthy {
		return nil, ErrUpstreamUnavailable
	}
	if !c.breaker.Allow() {
		return nil, ErrUpstreamUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, hardCallTimeout)
	defer cancel()

	req.Stream = false
	req.Model = c.model.ID

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("provider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.model.BaseURL+"/v1/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	c.setAuthHeader(httpReq)
	if corr.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", corr.RequestID)
	}
	if corr.PrincipalID != "" {
		httpReq.Header.Set("X-Principal-ID", corr.PrincipalID)
	}
	if corr.PrincipalTier != "" {
		httpReq.Header.Set("X-Principal-Tier", corr.PrincipalTier)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		c.breaker.RecordFailure()
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if resp.StatusCode >= 400 {
		// Caller-caused: surfaced, but does not trip the breaker.
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("provider: decode response: %w", err)
	}
	if out.Choices == nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("provider: contract error: missing choices")
	}

	c.breaker.RecordSuccess()
	return &out, nil
}

func (c *Connector) setAuthHeader(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch c.model.AuthStyle {
	case config.AuthStyleBearer:
		req.Header.Set(c.model.AuthHeaderName, "Bearer "+c.model.APIKey)
	default:
		req.Header.Set(c.model.AuthHeaderName, c.model.APIKey)
	}
}

// HealthCheck probes the model's health endpoint and updates the
// connector's cached status, including the EWMA latency.
func (c *Connector) HealthCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.model.BaseURL+c.model.HealthPath, nil)
	if err != nil {
		return c.record(false, 0, err.Error())
	}

	resp, err := c.client.Do(httpReq)
	observed := time.Since(start)
	if err != nil {
		return c.record(false, observed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.record(false, observed, fmt.Sprintf("status %d", resp.StatusCode))
	}

	var body struct {
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	healthy := body.Status == "healthy"

	errMsg := ""
	if !healthy {
		errMsg = fmt.Sprintf("unexpected status field %q", body.Status)
	}
	return c.record(healthy, observed, errMsg)
}

// record applies the EWMA new = (old + observed) / 2 and stores the
// connector's current health snapshot.
func (c *Connector) record(healthy bool, observed time.Duration, errMsg string) HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checked.IsZero() {
		c.latency = observed
	} else {
		c.latency = (c.latency + observed) / 2
	}
	c.healthy = healthy
	c.lastErr = errMsg
	c.checked = time.Now()

	return HealthStatus{Healthy: c.healthy, Latency: c.latency, LastCheck: c.checked, Error: c.lastErr}
}

// Status returns the connector's last-known health snapshot without
// issuing a new probe.
func (c *Connector) Status() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return HealthStatus{Healthy: c.healthy, Latency: c.latency, LastCheck: c.checked, Error: c.lastErr}
}

// BreakerState exposes the connector's circuit breaker state for /health.
func (c *Connector) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
