package handler

import (
	"net/http"

	"github.com/alfreddev/aigateway/middleware"
)

type modelInfo struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	ContextWindow int    `json:"contextWindow"`
	MaxOutput     int    `json:"maxOutputTokens"`
}

// ListModels returns the subset of configured models the caller's tier
// allows (§4.8).
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	tier, ok := h.cfg.Tiers[principal.Tier]
	if !ok {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"models": []modelInfo{}})
		return
	}

	out := make([]modelInfo, 0, len(h.cfg.Models))
	for id, m := range h.cfg.Models {
		if !tier.AllowsModel(id) {
			continue
		}
		out = append(out, modelInfo{ID: m.ID, DisplayName: m.DisplayName, ContextWindow: m.ContextWindow, MaxOutput: m.MaxOutputTokens})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}
