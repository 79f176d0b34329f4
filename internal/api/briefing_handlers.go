package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/models"
)

// BriefingStore is the briefing persistence surface the handler needs.
type BriefingStore interface {
	GetByID(ctx context.Context, id string) (*models.Briefing, error)
	List(ctx context.Context, limit int) ([]models.Briefing, error)
	UpdateStatus(ctx context.Context, id string, status models.ReviewStatus, userID string) error
}

// BriefingGenerator produces the daily briefing on demand.
type BriefingGenerator interface {
	Generate(ctx context.Context, at time.Time) (*models.Briefing, error)
}

// BriefingHandler handles daily briefing requests.
type BriefingHandler struct {
	briefings BriefingStore
	generator BriefingGenerator
	logger    *slog.Logger
}

// NewBriefingHandler creates a new briefing handler.
func NewBriefingHandler(briefings BriefingStore, generator BriefingGenerator, logger *slog.Logger) *BriefingHandler {
	return &BriefingHandler{
		briefings: briefings,
		generator: generator,
		logger:    logger,
	}
}

// List handles GET /api/briefings.
func (h *BriefingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	briefings, err := h.briefings.List(r.Context(), limit)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list briefings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"briefings": briefings,
		"count":     len(briefings),
	})
}

// Generate handles POST /api/briefings/generate. Returns the existing
// briefing when today's already exists, and reports when there is nothing
// to brief.
func (h *BriefingHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	briefing, err := h.generator.Generate(r.Context(), time.Now().UTC())
	if err != nil {
		handleServiceError(w, h.logger, err, "briefing generation failed")
		return
	}
	if briefing == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"briefing": nil,
			"message":  "no cards in the briefing window",
		})
		return
	}

	respondJSON(w, http.StatusOK, briefing)
}

// Item handles /api/briefings/{id} and its status sub-resource.
func (h *BriefingHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r, 2)
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action := pathSegment(r, 3); action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		briefing, err := h.briefings.GetByID(r.Context(), id)
		if err != nil {
			handleServiceError(w, h.logger, err, "failed to get briefing")
			return
		}
		respondJSON(w, http.StatusOK, briefing)
	case "status":
		h.updateStatus(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// updateStatus handles POST /api/briefings/{id}/status with the same state
// machine as cards. Approval is admin-only.
func (h *BriefingHandler) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Status models.ReviewStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	briefing, err := h.briefings.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get briefing")
		return
	}

	if err := briefing.Status.CheckTransition(req.Status); err != nil {
		handleServiceError(w, h.logger, err, "")
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if req.Status.RequiresAdmin() && !identity.IsAdmin() {
		http.Error(w, "Admin privileges required", http.StatusForbidden)
		return
	}

	if err := h.briefings.UpdateStatus(r.Context(), id, req.Status, identity.UserID); err != nil {
		handleServiceError(w, h.logger, err, "failed to update briefing status")
		return
	}

	briefing, err = h.briefings.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload briefing")
		return
	}
	respondJSON(w, http.StatusOK, briefing)
}
