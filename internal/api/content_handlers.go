package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/auth"
	"github.com/augmenthq/compete/internal/content"
	"github.com/augmenthq/compete/internal/database"
	"github.com/augmenthq/compete/internal/models"
)

// ContentStore is the content persistence surface the handler needs.
type ContentStore interface {
	CreateTemplate(ctx context.Context, tmpl *models.ContentTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.ContentTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]models.ContentTemplate, error)
	GetOutput(ctx context.Context, id string) (*models.ContentOutput, error)
	ListOutputs(ctx context.Context, filter database.OutputFilter) ([]models.ContentOutput, error)
	UpdateOutputFields(ctx context.Context, id, title, content string) error
	UpdateOutputStatus(ctx context.Context, id string, status models.ContentStatus, userID string) error
}

// ContentGenerator starts document generation in the background.
type ContentGenerator interface {
	StartGeneration(ctx context.Context, competitorID, templateID, userID string) (*models.ContentOutput, error)
}

// ContentPublisher pushes an approved output to the external doc store.
type ContentPublisher interface {
	Publish(ctx context.Context, outputID string) (*models.ContentOutput, error)
}

// StaleChecker reports competitor/template pairs with missing or outdated
// documents.
type StaleChecker interface {
	Check(ctx context.Context) ([]content.StaleEntry, error)
}

// ContentHandler handles content template and output requests.
type ContentHandler struct {
	store     ContentStore
	generator ContentGenerator
	publisher ContentPublisher
	stale     StaleChecker
	logger    *slog.Logger
}

// NewContentHandler creates a new content handler.
func NewContentHandler(store ContentStore, generator ContentGenerator, publisher ContentPublisher, stale StaleChecker, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		store:     store,
		generator: generator,
		publisher: publisher,
		stale:     stale,
		logger:    logger,
	}
}

// Templates handles GET and POST /api/content/templates.
func (h *ContentHandler) Templates(w http.ResponseWriter, r *http.Request) {
	if id := pathSegment(r, 3); id != "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tmpl, err := h.store.GetTemplate(r.Context(), id)
		if err != nil {
			handleServiceError(w, h.logger, err, "failed to get template")
			return
		}
		respondJSON(w, http.StatusOK, tmpl)
		return
	}

	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active_only") == "true"
		templates, err := h.store.ListTemplates(r.Context(), activeOnly)
		if err != nil {
			handleServiceError(w, h.logger, err, "failed to list templates")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"templates": templates,
			"count":     len(templates),
		})
	case http.MethodPost:
		h.createTemplate(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ContentHandler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.ContentTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tmpl.ContentType = strings.TrimSpace(strings.ToLower(tmpl.ContentType))
	tmpl.Name = strings.TrimSpace(tmpl.Name)
	if tmpl.ContentType == "" || tmpl.Name == "" {
		http.Error(w, "content_type and name are required", http.StatusBadRequest)
		return
	}
	if len(tmpl.Sections) == 0 {
		http.Error(w, "at least one section is required", http.StatusBadRequest)
		return
	}
	for _, s := range tmpl.Sections {
		if strings.TrimSpace(s.Title) == "" {
			http.Error(w, "section titles must not be empty", http.StatusBadRequest)
			return
		}
	}

	tmpl.ID = uuid.New().String()
	tmpl.IsActive = true
	now := time.Now().UTC()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now

	if err := h.store.CreateTemplate(r.Context(), &tmpl); err != nil {
		handleServiceError(w, h.logger, err, "failed to create template")
		return
	}

	h.logger.Info("Content template created", "template_id", tmpl.ID, "content_type", tmpl.ContentType)
	respondJSON(w, http.StatusCreated, &tmpl)
}

// Outputs handles GET /api/content/outputs with optional filters.
func (h *ContentHandler) Outputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := database.OutputFilter{
		CompetitorID: r.URL.Query().Get("competitor_id"),
		ContentType:  r.URL.Query().Get("content_type"),
		Limit:        50,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.ContentStatus(v)
		if !models.ValidContentStatus(status) {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	outputs, err := h.store.ListOutputs(r.Context(), filter)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list outputs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outputs": outputs,
		"count":   len(outputs),
	})
}

// Generate handles POST /api/content/generate. The response carries the
// placeholder row; generation continues in the background.
func (h *ContentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CompetitorID string `json:"competitor_id"`
		TemplateID   string `json:"template_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CompetitorID == "" || req.TemplateID == "" {
		http.Error(w, "competitor_id and template_id are required", http.StatusBadRequest)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	output, err := h.generator.StartGeneration(r.Context(), req.CompetitorID, req.TemplateID, identity.UserID)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to start generation")
		return
	}

	respondJSON(w, http.StatusAccepted, output)
}

// Stale handles GET /api/content/stale.
func (h *ContentHandler) Stale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.stale.Check(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err, "stale check failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// OutputItem handles /api/content/outputs/{id} and its sub-resources.
func (h *ContentHandler) OutputItem(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r, 3)
	if id == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action := pathSegment(r, 4); action {
	case "":
		switch r.Method {
		case http.MethodGet:
			output, err := h.store.GetOutput(r.Context(), id)
			if err != nil {
				handleServiceError(w, h.logger, err, "failed to get output")
				return
			}
			respondJSON(w, http.StatusOK, output)
		case http.MethodPatch:
			h.patchOutput(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "status":
		h.updateOutputStatus(w, r, id)
	case "publish":
		h.publish(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// patchOutput handles PATCH /api/content/outputs/{id}. Only draft and
// in_review outputs can be edited.
func (h *ContentHandler) patchOutput(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	output, err := h.store.GetOutput(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get output")
		return
	}
	if !output.Status.Editable() {
		handleServiceError(w, h.logger, &models.StateViolationError{
			Reason: "outputs in " + string(output.Status) + " status cannot be edited",
		}, "")
		return
	}

	title := output.Title
	body := output.Content
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		body = *req.Content
	}
	if title == output.Title && body == output.Content {
		respondJSON(w, http.StatusOK, output)
		return
	}

	if err := h.store.UpdateOutputFields(r.Context(), id, title, body); err != nil {
		handleServiceError(w, h.logger, err, "failed to update output")
		return
	}

	output, err = h.store.GetOutput(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload output")
		return
	}
	respondJSON(w, http.StatusOK, output)
}

// updateOutputStatus handles POST /api/content/outputs/{id}/status.
// Publishing is not a plain status change; it goes through the publish
// endpoint so the external document gets written.
func (h *ContentHandler) updateOutputStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Status models.ContentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Status == models.ContentStatusPublished {
		handleServiceError(w, h.logger, &models.StateViolationError{
			Reason: "use the publish endpoint to publish content",
		}, "")
		return
	}

	output, err := h.store.GetOutput(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get output")
		return
	}

	if err := output.Status.CheckTransition(req.Status); err != nil {
		handleServiceError(w, h.logger, err, "")
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if req.Status.RequiresAdmin() && !identity.IsAdmin() {
		http.Error(w, "Admin privileges required", http.StatusForbidden)
		return
	}

	if err := h.store.UpdateOutputStatus(r.Context(), id, req.Status, identity.UserID); err != nil {
		handleServiceError(w, h.logger, err, "failed to update output status")
		return
	}

	output, err = h.store.GetOutput(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload output")
		return
	}
	respondJSON(w, http.StatusOK, output)
}

// publish handles POST /api/content/outputs/{id}/publish. Admin only.
func (h *ContentHandler) publish(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() {
		http.Error(w, "Admin privileges required", http.StatusForbidden)
		return
	}

	output, err := h.publisher.Publish(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to publish output")
		return
	}

	h.logger.Info("Content output published",
		"output_id", output.ID,
		"doc_id", output.GoogleDocID,
		"published_by", identity.UserID)
	respondJSON(w, http.StatusOK, output)
}
