package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/middleware"
)

type createKeyRequest struct {
	Name string `json:"name"`
}

type apiKeyView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Masked     string `json:"maskedKey"`
	Tier       string `json:"tier"`
	CreatedAt  string `json:"createdAt"`
	ExpiresAt  string `json:"expiresAt"`
	LastUsedAt string `json:"lastUsedAt,omitempty"`
	Active     bool   `json:"active"`
}

// CreateAPIKey serves POST /auth/api-keys: mints a new key for the
// authenticated principal and returns the cleartext secret exactly once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var body createKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxBodyBytes)).Decode(&body); err != nil {
			middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "malformed request body"))
			return
		}
	}
	if body.Name == "" {
		body.Name = "default"
	}

	key, cleartext, err := h.ids.CreateKey(principal.ID, body.Name, principal.Tier)
	if err != nil {
		middleware.WriteError(w, r, gwerror.Wrap(gwerror.InternalError, err))
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     key.ID,
		"name":   key.Name,
		"key":    cleartext,
		"tier":   key.Tier,
		"expiresAt": key.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// ListAPIKeys serves GET /auth/api-keys: every key belonging to the
// authenticated principal, masked.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	keys := h.ids.ListKeys(principal.ID)
	out := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		view := apiKeyView{
			ID:        k.ID,
			Name:      k.Name,
			Masked:    k.Masked(),
			Tier:      k.Tier,
			CreatedAt: k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ExpiresAt: k.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Active:    k.Active,
		}
		if !k.LastUsedAt.IsZero() {
			view.LastUsedAt = k.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, view)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"keys": out})
}

// RevokeAPIKey serves DELETE /auth/api-keys/{id}: idempotent revoke,
// scoped to the authenticated principal's own keys.
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.ids.RevokeKey(principal.ID, id); err != nil {
		middleware.WriteError(w, r, gwerror.New(gwerror.NotFound, "no such api key"))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"revoked": true})
}
