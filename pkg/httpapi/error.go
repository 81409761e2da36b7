package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/iota-uz/competency-hub/pkg/composables"
)

// Error codes shared by every /api/ handler.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidLevel         = "INVALID_LEVEL"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionScopeMismatch = "SESSION_SCOPE_MISMATCH"
	CodeLevelLocked          = "LEVEL_LOCKED"
	CodeBusy                 = "BUSY"
	CodeDirectoryUnavailable = "SCOPE_DIRECTORY_UNAVAILABLE"
	CodeUpstream             = "UPSTREAM_ERROR"
	CodeAuthzError           = "AUTHZ_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_SERVER_ERROR"
)

// ErrorEnvelope is the body of every non-2xx API response.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteRequestError is WriteError with the request id of r added to meta.
func WriteRequestError(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) error {
	if id, ok := composables.UseRequestID(r.Context()); ok {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["request_id"] = id
	}
	return WriteError(w, status, code, message, meta)
}
