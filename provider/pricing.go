package provider

import (
	"math"
	"sync"

	"github.com/alfreddev/aigateway/config"
)

// Pricing computes per-request cost from a model's configured per-token
// rates. Unlike the teacher's per-1M-token table, this fleet's rates are
// already per-token (config.Model.InputPricePerTok/OutputPricePerTk),
// since tier pricing and model pricing share the same unit throughout
// this spec (§3).
type Pricing struct {
	mu     sync.RWMutex
	models map[string]config.Model
}

func NewPricing(cfg *config.Config) *Pricing {
	models := make(map[string]config.Model, len(cfg.Models))
	for id, m := range cfg.Models {
		models[id] = m
	}
	return &Pricing{models: models}
}

// CalculateCost computes the USD cost of a completion, rounded to 8
// decimal places.
func (p *Pricing) CalculateCost(modelID string, inputTokens, outputTokens int) float64 {
	p.mu.RLock()
	m, ok := p.models[modelID]
	p.mu.RUnlock()
	if !ok {
		return 0
	}

	cost := float64(inputTokens)*m.InputPricePerTok + float64(outputTokens)*m.OutputPricePerTk
	return math.Round(cost*1e8) / 1e8
}

// EstimateCost estimates pre-request cost from an admission-time token
// estimate and the requested max_tokens.
func (p *Pricing) EstimateCost(modelID string, estimatedInputTokens, maxTokens int) float64 {
	return p.CalculateCost(modelID, estimatedInputTokens, maxTokens)
}
