package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/models"
)

// CompetitorStore is the competitor persistence surface the handler needs.
type CompetitorStore interface {
	Create(ctx context.Context, c *models.Competitor) error
	GetByID(ctx context.Context, id string) (*models.Competitor, error)
	GetByName(ctx context.Context, name string) (*models.Competitor, error)
	List(ctx context.Context, activeOnly bool) ([]models.Competitor, error)
	Update(ctx context.Context, c *models.Competitor) error
}

// CompetitorHandler handles competitor requests.
type CompetitorHandler struct {
	competitors CompetitorStore
	logger      *slog.Logger
}

// NewCompetitorHandler creates a new competitor handler.
func NewCompetitorHandler(competitors CompetitorStore, logger *slog.Logger) *CompetitorHandler {
	return &CompetitorHandler{
		competitors: competitors,
		logger:      logger,
	}
}

// Collection handles GET and POST /api/competitors.
func (h *CompetitorHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active_only") == "true"
		competitors, err := h.competitors.List(r.Context(), activeOnly)
		if err != nil {
			handleServiceError(w, h.logger, err, "failed to list competitors")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"competitors": competitors,
			"count":       len(competitors),
		})
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CompetitorHandler) create(w http.ResponseWriter, r *http.Request) {
	var c models.Competitor
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	existing, err := h.competitors.GetByName(r.Context(), c.Name)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to check for existing competitor")
		return
	}
	if existing != nil {
		handleServiceError(w, h.logger, &models.StateViolationError{
			Reason: "a competitor named " + c.Name + " already exists",
		}, "")
		return
	}

	c.ID = uuid.New().String()
	// Operator-created competitors skip the suggestion review step.
	c.IsSuggested = false
	c.SuggestedReason = ""
	c.IsActive = true
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := h.competitors.Create(r.Context(), &c); err != nil {
		handleServiceError(w, h.logger, err, "failed to create competitor")
		return
	}

	h.logger.Info("Competitor created", "competitor_id", c.ID, "name", c.Name)
	respondJSON(w, http.StatusCreated, &c)
}

// Item handles /api/competitors/{id} and its approve/reject sub-resources.
func (h *CompetitorHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r, 2)
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action := pathSegment(r, 3); action {
	case "":
		switch r.Method {
		case http.MethodGet:
			competitor, err := h.competitors.GetByID(r.Context(), id)
			if err != nil {
				handleServiceError(w, h.logger, err, "failed to get competitor")
				return
			}
			respondJSON(w, http.StatusOK, competitor)
		case http.MethodPut:
			h.update(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "approve":
		h.resolveSuggested(w, r, id, true)
	case "reject":
		h.resolveSuggested(w, r, id, false)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *CompetitorHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var c models.Competitor
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	existing, err := h.competitors.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get competitor")
		return
	}

	c.ID = existing.ID
	// Suggestion state changes only through approve/reject.
	c.IsSuggested = existing.IsSuggested
	c.SuggestedReason = existing.SuggestedReason
	c.CreatedAt = existing.CreatedAt
	if strings.TrimSpace(c.Name) == "" {
		c.Name = existing.Name
	}

	if err := h.competitors.Update(r.Context(), &c); err != nil {
		handleServiceError(w, h.logger, err, "failed to update competitor")
		return
	}

	updated, err := h.competitors.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload competitor")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// resolveSuggested handles POST /api/competitors/{id}/approve and /reject.
// Approving promotes the suggestion to a tracked competitor; rejecting
// deactivates it.
func (h *CompetitorHandler) resolveSuggested(w http.ResponseWriter, r *http.Request, id string, approve bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	competitor, err := h.competitors.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get competitor")
		return
	}
	if !competitor.IsSuggested {
		handleServiceError(w, h.logger, &models.StateViolationError{
			Reason: "competitor is not a pending suggestion",
		}, "")
		return
	}

	competitor.IsSuggested = false
	if !approve {
		competitor.IsActive = false
	}

	if err := h.competitors.Update(r.Context(), competitor); err != nil {
		handleServiceError(w, h.logger, err, "failed to update competitor")
		return
	}

	verdict := "approved"
	if !approve {
		verdict = "rejected"
	}
	h.logger.Info("Suggested competitor resolved",
		"competitor_id", competitor.ID,
		"name", competitor.Name,
		"verdict", verdict)
	respondJSON(w, http.StatusOK, competitor)
}
