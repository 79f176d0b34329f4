package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/database"
	"github.com/augmenthq/compete/internal/models"
)

// CardStore is the card persistence surface the handler needs.
type CardStore interface {
	GetByID(ctx context.Context, id string) (*models.AnalysisCard, error)
	List(ctx context.Context, filter database.CardFilter) ([]models.AnalysisCard, error)
	UpdateFields(ctx context.Context, id string, changes map[string]string, userID string) error
	UpdateStatus(ctx context.Context, id string, status models.ReviewStatus, userID string) error
	ListEdits(ctx context.Context, cardID string) ([]models.CardEdit, error)
}

// editableCardFields maps PATCH body keys to their current-value reader.
var editableCardFields = map[string]func(*models.AnalysisCard) string{
	"title":                   func(c *models.AnalysisCard) string { return c.Title },
	"summary":                 func(c *models.AnalysisCard) string { return c.Summary },
	"impact_assessment":       func(c *models.AnalysisCard) string { return c.ImpactAssessment },
	"suggested_counter_moves": func(c *models.AnalysisCard) string { return c.SuggestedCounterMoves },
	"event_type":              func(c *models.AnalysisCard) string { return string(c.EventType) },
	"priority":                func(c *models.AnalysisCard) string { return string(c.Priority) },
}

// CardHandler handles analysis card review requests.
type CardHandler struct {
	cards  CardStore
	logger *slog.Logger
}

// NewCardHandler creates a new card handler.
func NewCardHandler(cards CardStore, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

// List handles GET /api/cards with status/priority/competitor/date filters.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := database.CardFilter{
		CompetitorID: r.URL.Query().Get("competitor_id"),
		Limit:        100,
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := models.ReviewStatus(v)
		if !models.ValidReviewStatus(status) {
			http.Error(w, fmt.Sprintf("unknown status %q", v), http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("priority"); v != "" {
		priority := models.Priority(v)
		if priority != models.PriorityRed && priority != models.PriorityYellow && priority != models.PriorityGreen {
			http.Error(w, fmt.Sprintf("unknown priority %q", v), http.StatusBadRequest)
			return
		}
		filter.Priority = priority
	}
	if v := r.URL.Query().Get("date_from"); v != "" {
		t, err := parseDateParam(v)
		if err != nil {
			http.Error(w, "invalid date_from", http.StatusBadRequest)
			return
		}
		filter.DateFrom = &t
	}
	if v := r.URL.Query().Get("date_to"); v != "" {
		t, err := parseDateParam(v)
		if err != nil {
			http.Error(w, "invalid date_to", http.StatusBadRequest)
			return
		}
		filter.DateTo = &t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	cards, err := h.cards.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list cards")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cards": cards,
		"count": len(cards),
	})
}

// Item handles /api/cards/{id} and its sub-resources.
func (h *CardHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r, 2)
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action := pathSegment(r, 3); action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPatch:
			h.patch(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "status":
		h.updateStatus(w, r, id)
	case "edits":
		h.listEdits(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *CardHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	card, err := h.cards.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get card")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// patch applies field edits. Every change lands in the card's edit log with
// the editing user.
func (h *CardHandler) patch(w http.ResponseWriter, r *http.Request, id string) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}

	card, err := h.cards.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get card")
		return
	}
	if !card.Status.Editable() {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("cards in %s status cannot be edited", card.Status),
		})
		return
	}

	changes := make(map[string]string, len(body))
	for field, value := range body {
		current, ok := editableCardFields[field]
		if !ok {
			http.Error(w, fmt.Sprintf("field %q is not editable", field), http.StatusBadRequest)
			return
		}
		switch field {
		case "event_type":
			if models.NormalizeEventType(value) != models.EventType(value) {
				http.Error(w, fmt.Sprintf("unknown event_type %q", value), http.StatusBadRequest)
				return
			}
		case "priority":
			if models.NormalizePriority(value) != models.Priority(value) {
				http.Error(w, fmt.Sprintf("unknown priority %q", value), http.StatusBadRequest)
				return
			}
		}
		if value != current(card) {
			changes[field] = value
		}
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if err := h.cards.UpdateFields(r.Context(), id, changes, identity.UserID); err != nil {
		handleServiceError(w, h.logger, err, "failed to update card")
		return
	}

	card, err = h.cards.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload card")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// updateStatus handles POST /api/cards/{id}/status. Approval is admin-only.
func (h *CardHandler) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
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

	card, err := h.cards.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get card")
		return
	}

	if err := card.Status.CheckTransition(req.Status); err != nil {
		handleServiceError(w, h.logger, err, "")
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if req.Status.RequiresAdmin() && !identity.IsAdmin() {
		http.Error(w, "Admin privileges required", http.StatusForbidden)
		return
	}

	if err := h.cards.UpdateStatus(r.Context(), id, req.Status, identity.UserID); err != nil {
		handleServiceError(w, h.logger, err, "failed to update card status")
		return
	}

	card, err = h.cards.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload card")
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (h *CardHandler) listEdits(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	edits, err := h.cards.ListEdits(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list card edits")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"edits": edits,
		"count": len(edits),
	})
}

// parseDateParam accepts RFC 3339 timestamps or bare dates.
func parseDateParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
