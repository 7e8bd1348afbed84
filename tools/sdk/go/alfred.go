// Package alfred provides a Go client for the gateway's own HTTP API: model
// listing, completions, code analysis, security scanning, usage reporting,
// and API key management.
package alfred

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Version is the SDK version.
const Version = "1.0.0"

// DefaultBaseURL is the default gateway base URL.
const DefaultBaseURL = "http://localhost:8080"

// ============================================================
// Client
// ============================================================

// Client is the gateway API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new gateway API client, authenticating requests with
// apiKey via the X-API-Key header.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		userAgent: fmt.Sprintf("aigateway-go-sdk/%s", Version),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request performs an HTTP request against the gateway.
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// ============================================================
// Error Types
// ============================================================

// Error represents a gateway API error, decoded from the gateway's flat
// error envelope: {"error": "<kind>", "message": ..., "requestId": ...}.
type Error struct {
	StatusCode int    `json:"-"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("aigateway: %s (%s, status %d)", e.Message, e.Kind, e.StatusCode)
}

// apiError lets the typed errors below embed Error without the embedded
// field's name colliding with the promoted Error method.
type apiError = Error

// AuthenticationError indicates missing or invalid credentials.
type AuthenticationError struct{ apiError }

// AuthorizationError indicates insufficient permissions or a forbidden model/endpoint.
type AuthorizationError struct{ apiError }

// NotFoundError indicates the resource does not exist.
type NotFoundError struct{ apiError }

// ValidationError indicates a malformed or invalid request body.
type ValidationError struct{ apiError }

// RateLimitError indicates a global, per-IP, per-principal, or tier limit was hit.
type RateLimitError struct{ apiError }

func parseError(statusCode int, body []byte) error {
	var envelope struct {
		Kind    string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)

	baseErr := Error{
		StatusCode: statusCode,
		Kind:       envelope.Kind,
		Message:    envelope.Message,
	}
	if baseErr.Message == "" {
		baseErr.Message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthenticationError{apiError: baseErr}
	case http.StatusForbidden:
		return &AuthorizationError{apiError: baseErr}
	case http.StatusNotFound:
		return &NotFoundError{apiError: baseErr}
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return &ValidationError{apiError: baseErr}
	case http.StatusTooManyRequests:
		return &RateLimitError{apiError: baseErr}
	default:
		return &baseErr
	}
}

// ============================================================
// Shared completion types
// ============================================================

// Message is a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the upstream token usage reported for a single completion,
// code-analysis, or security-scan call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one generated completion choice.
type Choice struct {
	Index        int      `json:"index"`
	Text         string   `json:"text,omitempty"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason"`
}

// CompletionRequest is a /v1/completions or /v1/chat/completions request.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// CompletionResponse is the gateway's completion response envelope.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ============================================================
// Models
// ============================================================

// ModelInfo describes one model available to the caller's tier.
type ModelInfo struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	ContextWindow   int    `json:"contextWindow"`
	MaxOutputTokens int    `json:"maxOutputTokens"`
}

// ListModels returns the models available to the authenticated principal's tier.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.request(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ============================================================
// Completions
// ============================================================

// Completion creates a single-prompt completion via /v1/completions.
func (c *Client) Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var resp CompletionResponse
	if err := c.request(ctx, http.MethodPost, "/v1/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatCompletion creates a multi-turn chat completion via /v1/chat/completions.
func (c *Client) ChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var resp CompletionResponse
	if err := c.request(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QuickChat sends a single user message and returns the first choice's text.
func (c *Client) QuickChat(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.ChatCompletion(ctx, &CompletionRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	choice := resp.Choices[0]
	if choice.Message != nil {
		return choice.Message.Content, nil
	}
	return choice.Text, nil
}

// ============================================================
// Code analysis / security scan
// ============================================================

// CodeAnalysisRequest is a /v1/code/analysis request.
type CodeAnalysisRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	AnalysisType string `json:"analysis_type"`
}

// CodeAnalysisResponse is the gateway's code-analysis response.
type CodeAnalysisResponse struct {
	AnalysisType string  `json:"analysisType"`
	Findings     string  `json:"findings"`
	Confidence   float64 `json:"confidence"`
	Model        string  `json:"model"`
	Usage        Usage   `json:"usage"`
}

// CodeAnalysis runs quality/performance/maintainability analysis over a code snippet.
func (c *Client) CodeAnalysis(ctx context.Context, req *CodeAnalysisRequest) (*CodeAnalysisResponse, error) {
	var resp CodeAnalysisResponse
	if err := c.request(ctx, http.MethodPost, "/v1/code/analysis", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SecurityScanRequest is a /v1/security/scan request.
type SecurityScanRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	ScanType string `json:"scan_type"`
}

// SecurityScanResponse is the gateway's security-scan response.
type SecurityScanResponse struct {
	ScanType  string `json:"scanType"`
	RiskLevel string `json:"riskLevel"`
	Findings  string `json:"findings"`
	Model     string `json:"model"`
	Usage     Usage  `json:"usage"`
}

// SecurityScan runs a vulnerability/injection/authentication scan over a code snippet.
func (c *Client) SecurityScan(ctx context.Context, req *SecurityScanRequest) (*SecurityScanResponse, error) {
	var resp SecurityScanResponse
	if err := c.request(ctx, http.MethodPost, "/v1/security/scan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ============================================================
// Usage
// ============================================================

// UsageSummary is the principal's aggregate usage and projected monthly cost.
type UsageSummary struct {
	Requests          int64   `json:"requests"`
	InputTokens       int64   `json:"inputTokens"`
	OutputTokens      int64   `json:"outputTokens"`
	CurrentCostUSD    float64 `json:"currentCostUsd"`
	ProjectedMonthUSD float64 `json:"projectedMonthlyCostUsd"`
}

// GetUsage returns the authenticated principal's usage summary.
func (c *Client) GetUsage(ctx context.Context) (*UsageSummary, error) {
	var summary UsageSummary
	if err := c.request(ctx, http.MethodGet, "/v1/usage", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ============================================================
// API keys
// ============================================================

// APIKey is an API key as listed by the gateway (secret never included).
type APIKey struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaskedKey  string `json:"maskedKey"`
	Tier       string `json:"tier"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"createdAt"`
	ExpiresAt  string `json:"expiresAt"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
}

// CreateAPIKeyRequest is the request to create an API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreateAPIKeyResponse is returned once, at creation time, and is the only
// response that ever carries the cleartext key.
type CreateAPIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	Tier      string `json:"tier"`
	ExpiresAt string `json:"expiresAt"`
}

// ListAPIKeys returns the authenticated principal's API keys.
func (c *Client) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var out struct {
		Keys []APIKey `json:"keys"`
	}
	if err := c.request(ctx, http.MethodGet, "/auth/api-keys", nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// CreateAPIKey creates a new API key. The returned Key is shown only once.
func (c *Client) CreateAPIKey(ctx context.Context, req *CreateAPIKeyRequest) (*CreateAPIKeyResponse, error) {
	var key CreateAPIKeyResponse
	if err := c.request(ctx, http.MethodPost, "/auth/api-keys", req, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// RevokeAPIKey revokes an API key by ID. Revoking an unknown or foreign key
// returns a NotFoundError; revoking an already-revoked key succeeds.
func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.request(ctx, http.MethodDelete, "/auth/api-keys/"+id, nil, nil)
}

// ============================================================
// Health
// ============================================================

// ComponentHealth is one component's status within a Health report.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Health represents the gateway's full component health breakdown.
type Health struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
	UptimeSec  float64           `json:"uptimeSeconds"`
	HeapAlloc  uint64            `json:"heapAllocBytes"`
}

// HealthCheck checks gateway health via /health.
func (c *Client) HealthCheck(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.request(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}
