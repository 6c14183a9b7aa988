package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/db"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
)

const maxJSONBody = 1 << 20

// sendJSON writes v with the given status code
func sendJSON(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, message string, code int) {
	sendJSON(w, map[string]string{"error": message}, code)
}

// decodeBody reads a JSON object into v. It answers 400 and returns false
// for an unreadable body, invalid JSON, or an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		sendError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		sendError(w, "No data provided", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		sendError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// sendServiceError maps domain errors to status codes. notFound is the
// message used for a missing document.
func sendServiceError(w http.ResponseWriter, logger *zap.Logger, err error, notFound string) {
	switch {
	case errors.Is(err, research.ErrNotFound):
		sendError(w, notFound, http.StatusNotFound)
	case errors.Is(err, db.ErrInvalidInput):
		sendError(w, strings.TrimPrefix(err.Error(), db.ErrInvalidInput.Error()+": "), http.StatusBadRequest)
	case research.IsClientError(err):
		sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, research.ErrInvalidTransition):
		sendError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		logger.Warn("Dependency unavailable", zap.Error(err))
		sendError(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		logger.Error("Request failed", zap.Error(err))
		sendError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func episodeKey(r *http.Request) research.EpisodeKey {
	return research.EpisodeKey{
		ProjectID: r.PathValue("project_id"),
		SeriesID:  r.PathValue("series_id"),
		EpisodeID: r.PathValue("episode_id"),
	}
}
