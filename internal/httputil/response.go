// Package httputil holds the JSON response helpers shared by the API
// controllers and the webhook handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse is the error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status code. An encoding failure is only
// logged; the header has already been sent.
func JSON(w http.ResponseWriter, log *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && log != nil {
		log.Warn("Failed to encode response", zap.Error(err))
	}
}

func OK(w http.ResponseWriter, log *zap.Logger, data any) {
	JSON(w, log, http.StatusOK, data)
}

func Error(w http.ResponseWriter, log *zap.Logger, status int, message string) {
	JSON(w, log, status, ErrorResponse{Error: message})
}

// Decode reads a JSON body into dst. An empty body leaves dst untouched.
// It writes a 400 and returns false when the body does not parse.
func Decode(w http.ResponseWriter, r *http.Request, log *zap.Logger, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, log, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
