package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/ingest"
	"github.com/augmenthq/compete/internal/models"
)

// SourceStore is the source persistence surface the handler needs.
type SourceStore interface {
	Create(ctx context.Context, source *models.Source) error
	GetByID(ctx context.Context, id string) (*models.Source, error)
	List(ctx context.Context, activeOnly bool) ([]models.Source, error)
	GetByTarget(ctx context.Context, sourceType models.SourceType, target string) (*models.Source, error)
	Update(ctx context.Context, source *models.Source) error
	Deactivate(ctx context.Context, id string) error
	ResetBackfill(ctx context.Context, id string, days int) error
}

// SourceTester dry-runs a source configuration.
type SourceTester interface {
	Test(ctx context.Context, source *models.Source) (*ingest.TestOutcome, error)
	TestURL(ctx context.Context, rawURL string, asScrape bool) (*ingest.TestOutcome, error)
}

// TwitterValidator resolves a Twitter/X username to a user id.
type TwitterValidator interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// SourceHandler handles source configuration requests.
type SourceHandler struct {
	sources SourceStore
	tester  SourceTester
	twitter TwitterValidator
	logger  *slog.Logger
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(sources SourceStore, tester SourceTester, twitter TwitterValidator, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{
		sources: sources,
		tester:  tester,
		twitter: twitter,
		logger:  logger,
	}
}

// Collection handles GET and POST /api/sources.
func (h *SourceHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	sources, err := h.sources.List(r.Context(), activeOnly)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to list sources")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (h *SourceHandler) create(w http.ResponseWriter, r *http.Request) {
	var source models.Source
	if err := json.NewDecoder(r.Body).Decode(&source); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(source.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.prepare(r.Context(), &source); err != nil {
		var sve *models.StateViolationError
		if errors.As(err, &sve) {
			respondJSON(w, http.StatusConflict, map[string]string{"error": sve.Reason})
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source.ID = uuid.NewString()
	source.IsActive = true
	source.CreatedAt = time.Now().UTC()
	source.UpdatedAt = source.CreatedAt

	if err := h.sources.Create(r.Context(), &source); err != nil {
		handleServiceError(w, h.logger, err, "failed to create source")
		return
	}

	h.logger.Info("source created", "source_id", source.ID, "type", source.Type, "name", source.Name)
	respondJSON(w, http.StatusCreated, source)
}

// prepare validates the type-specific config and rejects duplicates. For
// Twitter sources the username is resolved synchronously so a bad handle
// fails at creation time, not on the first check run.
func (h *SourceHandler) prepare(ctx context.Context, source *models.Source) error {
	switch source.Type {
	case models.SourceTypeRSS:
		if source.RSS == nil || source.RSS.FeedURL == "" {
			return fmt.Errorf("rss sources need a feed_url")
		}
		if !validHTTPURL(source.RSS.FeedURL) {
			return fmt.Errorf("feed_url must be a valid http(s) URL")
		}
		source.Scrape, source.Twitter = nil, nil
		return h.rejectDuplicate(ctx, source.Type, source.RSS.FeedURL)

	case models.SourceTypeWebScrape:
		if source.Scrape == nil || source.Scrape.PageURL == "" {
			return fmt.Errorf("web_scrape sources need a page_url")
		}
		if !validHTTPURL(source.Scrape.PageURL) {
			return fmt.Errorf("page_url must be a valid http(s) URL")
		}
		source.RSS, source.Twitter = nil, nil
		return h.rejectDuplicate(ctx, source.Type, source.Scrape.PageURL)

	case models.SourceTypeTwitter:
		if source.Twitter == nil || strings.TrimSpace(source.Twitter.Username) == "" {
			return fmt.Errorf("twitter sources need a username")
		}
		source.RSS, source.Scrape = nil, nil
		source.Twitter.Username = strings.TrimPrefix(strings.TrimSpace(source.Twitter.Username), "@")
		if err := h.rejectDuplicate(ctx, source.Type, source.Twitter.Username); err != nil {
			return err
		}
		userID, err := h.twitter.ResolveUsername(ctx, source.Twitter.Username)
		if err != nil {
			if errors.Is(err, ingest.ErrTwitterUserNotFound) {
				return fmt.Errorf("twitter user %q not found", source.Twitter.Username)
			}
			return fmt.Errorf("failed to validate twitter username: %w", err)
		}
		source.Twitter.UserID = userID
		if source.Twitter.InitialBackfillDays == 0 {
			source.Twitter.InitialBackfillDays = models.DefaultBackfillDays
		}
		if source.Twitter.InitialBackfillDays < 1 || source.Twitter.InitialBackfillDays > models.MaxBackfillDays {
			return fmt.Errorf("initial_backfill_days must be between 1 and %d", models.MaxBackfillDays)
		}
		return nil

	default:
		return fmt.Errorf("unknown source type %q", source.Type)
	}
}

func (h *SourceHandler) rejectDuplicate(ctx context.Context, sourceType models.SourceType, target string) error {
	existing, err := h.sources.GetByTarget(ctx, sourceType, target)
	if err != nil {
		return fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if existing != nil {
		return &models.StateViolationError{
			Reason: fmt.Sprintf("an active source for %q already exists", target),
		}
	}
	return nil
}

// Item handles /api/sources/{id} and its sub-resources.
func (h *SourceHandler) Item(w http.ResponseWriter, r *http.Request) {
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
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.deactivate(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "test":
		h.test(w, r, id)
	case "backfill":
		h.backfill(w, r, id)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *SourceHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get source")
		return
	}
	respondJSON(w, http.StatusOK, source)
}

func (h *SourceHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	existing, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get source")
		return
	}

	var updated models.Source
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Type is immutable; config edits keep the source's kind.
	updated.ID = existing.ID
	updated.Type = existing.Type
	if strings.TrimSpace(updated.Name) == "" {
		updated.Name = existing.Name
	}
	// Twitter cursor state is owned by the pipeline.
	if existing.Type == models.SourceTypeTwitter && updated.Twitter != nil && existing.Twitter != nil {
		updated.Twitter.UserID = existing.Twitter.UserID
		updated.Twitter.LastTweetID = existing.Twitter.LastTweetID
		updated.Twitter.BackfillCompleted = existing.Twitter.BackfillCompleted
	}

	if err := h.sources.Update(r.Context(), &updated); err != nil {
		handleServiceError(w, h.logger, err, "failed to update source")
		return
	}

	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to reload source")
		return
	}
	respondJSON(w, http.StatusOK, source)
}

func (h *SourceHandler) deactivate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sources.Deactivate(r.Context(), id); err != nil {
		handleServiceError(w, h.logger, err, "failed to deactivate source")
		return
	}
	h.logger.Info("source deactivated", "source_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// test handles POST /api/sources/{id}/test.
func (h *SourceHandler) test(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get source")
		return
	}

	outcome, err := h.tester.Test(r.Context(), source)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// backfill handles POST /api/sources/{id}/backfill.
func (h *SourceHandler) backfill(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Days < 1 || req.Days > models.MaxBackfillDays {
		http.Error(w, fmt.Sprintf("days must be between 1 and %d", models.MaxBackfillDays), http.StatusBadRequest)
		return
	}

	source, err := h.sources.GetByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, h.logger, err, "failed to get source")
		return
	}
	if source.Type != models.SourceTypeTwitter {
		respondJSON(w, http.StatusConflict, map[string]string{"error": "backfill applies only to twitter sources"})
		return
	}

	if err := h.sources.ResetBackfill(r.Context(), id, req.Days); err != nil {
		handleServiceError(w, h.logger, err, "failed to reset backfill")
		return
	}

	h.logger.Info("backfill scheduled", "source_id", id, "days", req.Days)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source_id": id,
		"days":      req.Days,
		"message":   "backfill will run on the next check",
	})
}

// TestURL handles POST /api/sources/test-url.
func (h *SourceHandler) TestURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		URL      string `json:"url"`
		AsScrape bool   `json:"as_scrape"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !validHTTPURL(req.URL) {
		http.Error(w, "url must be a valid http(s) URL", http.StatusBadRequest)
		return
	}

	outcome, err := h.tester.TestURL(r.Context(), req.URL, req.AsScrape)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// ValidateTwitter handles POST /api/sources/validate-twitter.
func (h *SourceHandler) ValidateTwitter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	username := strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	userID, err := h.twitter.ResolveUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, ingest.ErrTwitterUserNotFound) {
			http.Error(w, "Twitter user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to validate twitter username", "username", username, "error", err)
		http.Error(w, "Failed to validate username", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"username": username,
		"user_id":  userID,
	})
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
