package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// CheckRunner executes one full source check cycle.
type CheckRunner interface {
	Run(ctx context.Context, scheduled time.Time, generateBriefing bool) (*models.CheckRun, error)
}

// ProfileReviewer runs one profile review pass.
type ProfileReviewer interface {
	ReviewAll(ctx context.Context) (int, error)
}

// CheckRunStore reads check run history.
type CheckRunStore interface {
	GetByID(ctx context.Context, id string) (*models.CheckRun, error)
	ListRecent(ctx context.Context, limit int) ([]models.CheckRun, error)
}

// SystemHandler handles manual pipeline triggers and run history.
type SystemHandler struct {
	runner   CheckRunner
	reviewer ProfileReviewer
	runs     CheckRunStore
	logger   *slog.Logger
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(runner CheckRunner, reviewer ProfileReviewer, runs CheckRunStore, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		runner:   runner,
		reviewer: reviewer,
		runs:     runs,
		logger:   logger,
	}
}

// Check handles POST /api/system/check?generate_briefing=bool. Ingestion is
// synchronous; analysis continues in the background after the response.
func (h *SystemHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	generateBriefing := r.URL.Query().Get("generate_briefing") == "true"

	run, err := h.runner.Run(r.Context(), time.Now().UTC(), generateBriefing)
	if err != nil {
		if run != nil {
			// The run row records the failure; return it with the error.
			respondJSON(w, http.StatusInternalServerError, run)
			return
		}
		handleServiceError(w, h.logger, err, "manual check run failed")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// CheckRuns handles GET /api/system/check-runs and /api/system/check-runs/{id}.
func (h *SystemHandler) CheckRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := pathSegment(r, 3); id != "" {
		run, err := h.runs.GetByID(r.Context(), id)
		if err != nil {
			handleServiceError(w, h.logger, err, "failed to get check run")
			return
		}
		respondJSON(w, http.StatusOK, run)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := h.runs.ListRecent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list check runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ReviewProfiles handles POST /api/system/review-profiles.
func (h *SystemHandler) ReviewProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	created, err := h.reviewer.ReviewAll(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, "profile review failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"suggestions_created": created})
}
