package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"

	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/middleware"
	"github.com/alfreddev/aigateway/provider"
)

const (
	coderModel    = "qwen3_42b"
	redTeamModel  = "qwen3_moe"
	fixedConfidence = 0.95
)

var allowedAnalysisTypes = map[string]bool{"quality": true, "performance": true, "maintainability": true}
var allowedScanTypes = map[string]bool{"vulnerability": true, "injection": true, "authentication": true}

type codeAnalysisRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	AnalysisType string `json:"analysis_type"`
}

type securityScanRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	ScanType string `json:"scan_type"`
}

// CodeAnalysis serves /v1/code/analysis (§4.8): composes an internal
// prompt, dispatches via the coder model at a fixed temperature/max-tokens,
// and reports a fixed confidence — this endpoint is a thin prompt-shaped
// wrapper over the same completion path, not a distinct model capability.
func (h *Handler) CodeAnalysis(w http.ResponseWriter, r *http.Request) {
	var req codeAnalysisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "malformed request body"))
		return
	}
	if req.Code == "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "code is required"))
		return
	}
	if req.AnalysisType == "" {
		req.AnalysisType = "quality"
	}
	if !allowedAnalysisTypes[req.AnalysisType] {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "analysis_type must be quality, performance, or maintainability"))
		return
	}

	prompt := "Perform a " + req.AnalysisType + " analysis of the following " + req.Language + " code and explain the findings:\n\n" + req.Code

	resp, gerr := h.runPromptCompletion(r, coderModel, prompt, 0.1, 2048)
	if gerr != nil {
		middleware.WriteError(w, r, gerr)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"analysisType": req.AnalysisType,
		"findings":     firstChoiceText(resp),
		"confidence":   fixedConfidence,
		"model":        resp.Model,
		"usage":        resp.Usage,
	})
}

var riskCritical = regexp.MustCompile(`(?i)critical|severe`)
var riskHigh = regexp.MustCompile(`(?i)\bhigh\b`)
var riskMedium = regexp.MustCompile(`(?i)medium|moderate`)

// SecurityScan serves /v1/security/scan (§4.8): composes a prompt,
// dispatches via the red-team model, and classifies risk_level by a
// lexical scan of the reply.
func (h *Handler) SecurityScan(w http.ResponseWriter, r *http.Request) {
	var req securityScanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "malformed request body"))
		return
	}
	if req.Code == "" {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "code is required"))
		return
	}
	if req.ScanType == "" {
		req.ScanType = "vulnerability"
	}
	if !allowedScanTypes[req.ScanType] {
		middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "scan_type must be vulnerability, injection, or authentication"))
		return
	}

	prompt := "Scan the following " + req.Language + " code for " + req.ScanType + " issues and describe every finding:\n\n" + req.Code

	resp, gerr := h.runPromptCompletion(r, redTeamModel, prompt, 0.1, 2048)
	if gerr != nil {
		middleware.WriteError(w, r, gerr)
		return
	}

	text := firstChoiceText(resp)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scanType":  req.ScanType,
		"riskLevel": classifyRiskLevel(text),
		"findings":  text,
		"model":     resp.Model,
		"usage":     resp.Usage,
	})
}

func classifyRiskLevel(text string) string {
	switch {
	case riskCritical.MatchString(text):
		return "critical"
	case riskHigh.MatchString(text):
		return "high"
	case riskMedium.MatchString(text):
		return "medium"
	default:
		return "low"
	}
}

func firstChoiceText(resp *provider.CompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	if resp.Choices[0].Message != nil {
		return resp.Choices[0].Message.Content
	}
	return resp.Choices[0].Text
}

// runPromptCompletion is the shared admission+dispatch path for the
// prompt-shaped analysis endpoints, which bypass the public
// completions/chat-completions request shape but still owe C5/C3 the same
// admission checks.
func (h *Handler) runPromptCompletion(r *http.Request, modelID, prompt string, temperature float64, maxTokens int) (*provider.CompletionResponse, *gwerror.GatewayError) {
	principal := middleware.GetPrincipal(r.Context())
	tier, ok := h.cfg.Tiers[principal.Tier]
	if !ok {
		return nil, gwerror.New(gwerror.InsufficientPerms, "unknown tier")
	}
	if !tier.AllowsModel(modelID) {
		return nil, gwerror.New(gwerror.ForbiddenModel, "")
	}

	model, ok := h.cfg.Models[modelID]
	if !ok {
		return nil, gwerror.New(gwerror.InvalidArgument, "unknown model")
	}

	estimated := provider.EstimateTokens(prompt)
	if err := provider.ValidateRequest(estimated, maxTokens, tier.MaxTokensPerRequest, tier.MaxContextWindow, model.MaxOutputTokens, model.ContextWindow); err != nil {
		return nil, gwerror.New(gwerror.TierTokenLimitExceeded, err.Error())
	}

	conn, err := h.registry.Get(modelID)
	if err != nil {
		return nil, gwerror.New(gwerror.UpstreamUnavailable, "")
	}

	req := provider.CompletionRequest{Prompt: prompt, MaxTokens: maxTokens, Temperature: temperature}
	corr := provider.Correlation{
		RequestID:     middleware.GetRequestID(r.Context()),
		PrincipalID:   principal.ID,
		PrincipalTier: principal.Tier,
	}

	resp, err := conn.Dispatch(r.Context(), "completions", req, corr)
	if err != nil {
		return nil, upstreamErrToGateway(err)
	}

	cost := h.pricing.CalculateCost(modelID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	h.metrics.ObserveTokens(modelID, principal.Tier, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if principal.APIKeyID != "" {
		_ = h.ids.BumpUsage(principal.APIKeyID, 0, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), cost)
	}

	return resp, nil
}
