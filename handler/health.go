package handler

import (
	"net/http"

	"github.com/alfreddev/aigateway/middleware"
	"github.com/alfreddev/aigateway/observability"
)

// Health serves GET /health: the full §4.9 component breakdown.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Health(r.Context())
	status := http.StatusOK
	if report.Status == observability.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, report)
}

// Ready serves GET /ready: a boolean readiness probe for orchestrators.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.health.Ready(r.Context()) {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}
