package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/models"
)

// SuggestionStore lists profile-update suggestions.
type SuggestionStore interface {
	List(ctx context.Context, status models.SuggestionStatus, limit int) ([]models.ProfileUpdateSuggestion, error)
}

// SuggestionReviewer resolves pending suggestions.
type SuggestionReviewer interface {
	Approve(ctx context.Context, id, userID string) (*models.ProfileUpdateSuggestion, error)
	Reject(ctx context.Context, id, userID string) (*models.ProfileUpdateSuggestion, error)
}

// SuggestionHandler handles profile-update suggestion requests.
type SuggestionHandler struct {
	suggestions SuggestionStore
	reviewer    SuggestionReviewer
	logger      *slog.Logger
}

// NewSuggestionHandler creates a new suggestion handler.
func NewSuggestionHandler(suggestions SuggestionStore, reviewer SuggestionReviewer, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		suggestions: suggestions,
		reviewer:    reviewer,
		logger:      logger,
	}
}

// List handles GET /api/suggestions. Defaults to pending suggestions.
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.SuggestionStatusPending
	if v := r.URL.Query().Get("status"); v != "" {
		switch s := models.SuggestionStatus(v); s {
		case models.SuggestionStatusPending, models.SuggestionStatusApproved, models.SuggestionStatusRejected:
			status = s
		default:
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	suggestions, err := h.suggestions.List(r.Context(), status, limit)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list suggestions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// Item handles POST /api/suggestions/{id}/approve and /reject.
func (h *SuggestionHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r, 2)
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())

	var suggestion *models.ProfileUpdateSuggestion
	var err error
	switch pathSegment(r, 3) {
	case "approve":
		suggestion, err = h.reviewer.Approve(r.Context(), id, identity.UserID)
	case "reject":
		suggestion, err = h.reviewer.Reject(r.Context(), id, identity.UserID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to resolve suggestion")
		return
	}

	h.logger.Info("Profile suggestion resolved",
		"suggestion_id", suggestion.ID,
		"field", suggestion.FieldName,
		"status", suggestion.Status)
	respondJSON(w, http.StatusOK, suggestion)
}
