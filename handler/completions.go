package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/middleware"
	"github.com/alfreddev/aigateway/provider"
)

const defaultCompletionModel = "qwen3_42b"

type completionRequestBody struct {
	Model       string                   `json:"model"`
	Prompt      string                   `json:"prompt"`
	Messages    []provider.ChatMessage   `json:"messages"`
	MaxTokens   int                      `json:"max_tokens"`
	Temperature float64                  `json:"temperature"`
	TopP        float64                  `json:"top_p"`
	Stop        []string                 `json:"stop"`
}

// Completions serves /v1/completions (§4.8).
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	h.dispatchCompletion(w, r, "completions", false)
}

// ChatCompletions serves /v1/chat/completions (§4.8): same admission and
// dispatch path as Completions, but requires a messages[] body.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.dispatchCompletion(w, r, "chat/completions", true)
}

func (h *Handler) dispatchCompletion(w http.ResponseWriter, r *http.Request, endpoint string, chat bool) {
	principal := middleware.GetPrincipal(r.Context())
	tier, ok := h.cfg.Tiers[principal.Tier]
	if !ok {
		middleware.WriteError(w, r, gwerror.New(gwerror.InsufficientPerms, "unknown tier"))
		return
	}

	var body completionRequestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxBodyBytes)).Decode(&body); err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "malformed request body"))
		return
	}

	if body.Model == "" {
		body.Model = defaultCompletionModel
	}
	if chat {
		if err := validateChatMessages(body.Messages); err != nil {
			middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, err.Error()))
			return
		}
	} else if body.Prompt == "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "prompt is required"))
		return
	}

	if !tier.AllowsModel(body.Model) {
		middleware.WriteError(w, r, gwerror.New(gwerror.ForbiddenModel, ""))
		return
	}
	if !tier.AllowsEndpoint("/v1/" + endpoint) {
		middleware.WriteError(w, r, gwerror.New(gwerror.ForbiddenEndpoint, ""))
		return
	}

	model, ok := h.cfg.Models[body.Model]
	if !ok {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "unknown model"))
		return
	}

	estimated := estimateRequestTokens(body.Prompt, body.Messages)
	if err := provider.ValidateRequest(estimated, body.MaxTokens, tier.MaxTokensPerRequest, tier.MaxContextWindow, model.MaxOutputTokens, model.ContextWindow); err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.TierTokenLimitExceeded, err.Error()))
		return
	}

	conn, err := h.registry.Get(body.Model)
	if err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.UpstreamUnavailable, ""))
		return
	}

	req := provider.CompletionRequest{
		Prompt:      body.Prompt,
		Messages:    body.Messages,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		TopP:        body.TopP,
		Stop:        body.Stop,
	}
	corr := provider.Correlation{
		RequestID:     middleware.GetRequestID(r.Context()),
		PrincipalID:   principal.ID,
		PrincipalTier: principal.Tier,
	}

	start := time.Now()
	resp, err := conn.Dispatch(r.Context(), endpoint, req, corr)
	latency := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.ObserveModelLatency(body.Model, endpoint, status, latency)

	if err != nil {
		middleware.WriteError(w, r, upstreamErrToGateway(err))
		return
	}

	cost := h.pricing.CalculateCost(body.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	h.metrics.ObserveTokens(body.Model, principal.Tier, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if principal.APIKeyID != "" {
		_ = h.ids.BumpUsage(principal.APIKeyID, 0, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), cost)
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func validateChatMessages(messages []provider.ChatMessage) error {
	if len(messages) == 0 {
		return errors.New("messages is required")
	}
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return errors.New("message role must be system, user, or assistant")
		}
		if m.Content == "" {
			return errors.New("message content is required")
		}
	}
	return nil
}

func estimateRequestTokens(prompt string, messages []provider.ChatMessage) int {
	if len(messages) > 0 {
		total := 0
		for _, m := range messages {
			total += provider.EstimateTokens(m.Content)
		}
		return total
	}
	return provider.EstimateTokens(prompt)
}

func upstreamErrToGateway(err error) *gwerror.GatewayError {
	var upErr *provider.UpstreamError
	if errors.As(err, &upErr) {
		return gwerror.New(gwerror.UpstreamError, upErr.Error())
	}
	if errors.Is(err, provider.ErrUpstreamUnavailable) {
		return gwerror.New(gwerror.UpstreamUnavailable, "")
	}
	return gwerror.Wrap(gwerror.UpstreamError, err)
}
