package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to HTTP responses. Forbidden
// responses carry no detail about the resource.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, model.ErrResumeUnavailable):
		writeError(w, http.StatusServiceUnavailable, "resume unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
