package handler

import (
	"net/http"
	"time"

	"github.com/alfreddev/aigateway/middleware"
)

type usageSummary struct {
	Requests          int64   `json:"requests"`
	InputTokens       int64   `json:"inputTokens"`
	OutputTokens      int64   `json:"outputTokens"`
	CurrentCostUSD    float64 `json:"currentCostUsd"`
	ProjectedMonthUSD float64 `json:"projectedMonthlyCostUsd"`
}

// Usage serves /v1/usage (§4.8): aggregates the principal's keys' tallies
// and projects a monthly cost from the current cost and the day of month
// elapsed so far.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var summary usageSummary
	for _, k := range h.ids.ListKeys(principal.ID) {
		summary.Requests += k.Usage.Requests
		summary.InputTokens += k.Usage.InTokens
		summary.OutputTokens += k.Usage.OutTokens
		summary.CurrentCostUSD += k.Usage.CostUSD
	}

	day := time.Now().Day()
	if day < 1 {
		day = 1
	}
	summary.ProjectedMonthUSD = summary.CurrentCostUSD * (30.0 / float64(day))

	middleware.WriteJSON(w, http.StatusOK, summary)
}
