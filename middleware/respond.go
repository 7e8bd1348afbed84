package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfreddev/aigateway/gwerror"
)

// errorEnvelope is the §6 error response shape:
// {error, message?, type?, param?, code?, requestId, timestamp}.
type errorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Type      string `json:"type,omitempty"`
	Param     string `json:"param,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// WriteError writes a GatewayError as the standard error envelope,
// including Retry-After when the error carries a deterministic wait.
func WriteError(w http.ResponseWriter, r *http.Request, gerr *gwerror.GatewayError) {
	status := gwerror.Status(gerr.Kind)
	msg := gerr.Message
	if msg == "" {
		msg = gwerror.DefaultMessage(gerr.Kind)
	}

	if gerr.RetryAfter != nil {
		w.Header().Set("Retry-After", strconv.Itoa(int(gerr.RetryAfter.Seconds())+1))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:     string(gerr.Kind),
		Message:   msg,
		Code:      string(gerr.Kind),
		Param:     gerr.Param,
		RequestID: GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteJSON writes v as a JSON response body with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
