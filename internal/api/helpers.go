package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/augmenthq/compete/internal/database"
	"github.com/augmenthq/compete/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleServiceError maps storage and state errors onto HTTP responses:
// missing rows become 404s, state violations surface their precondition as
// a 409, everything else is logged and hidden behind a 500.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	var sve *models.StateViolationError
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.As(err, &sve):
		respondJSON(w, http.StatusConflict, map[string]string{"error": sve.Reason})
	default:
		logger.Error(msg, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// pathSegment returns the nth segment of the request path, zero-indexed
// from the path root ("/api/cards/abc" -> segment 2 is "abc").
func pathSegment(r *http.Request, n int) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if n < 0 || n >= len(parts) {
		return ""
	}
	return parts[n]
}
