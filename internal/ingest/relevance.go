package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/augmenthq/compete/internal/models"
)

// RelevanceRepository is the item storage the pre-filter needs.
type RelevanceRepository interface {
	ListUnprocessed(ctx context.Context, limit int) ([]models.Item, error)
	MarkProcessed(ctx context.Context, id string, relevant bool, reason string) error
}

// RelevanceFilter rejects items too thin to be worth an analysis call before
// they reach the model. Items that pass stay unprocessed for the analysis
// stage to claim.
type RelevanceFilter struct {
	items      RelevanceRepository
	minContent int
	logger     *slog.Logger
}

// NewRelevanceFilter creates a filter rejecting items whose combined title
// and content fall below minContent characters.
func NewRelevanceFilter(items RelevanceRepository, minContent int, logger *slog.Logger) *RelevanceFilter {
	if minContent <= 0 {
		minContent = 40
	}
	return &RelevanceFilter{
		items:      items,
		minContent: minContent,
		logger:     logger,
	}
}

// Sweep examines up to limit unprocessed items and rejects the ones with no
// usable text. Returns how many were rejected. Safe to run repeatedly; an
// item is only ever marked once.
func (f *RelevanceFilter) Sweep(ctx context.Context, limit int) (int, error) {
	items, err := f.items.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed items: %w", err)
	}

	rejected := 0
	for _, item := range items {
		reason, ok := f.check(&item)
		if ok {
			continue
		}
		if err := f.items.MarkProcessed(ctx, item.ID, false, reason); err != nil {
			return rejected, fmt.Errorf("failed to reject item %s: %w", item.ID, err)
		}
		rejected++
		f.logger.Debug("rejected item", "item_id", item.ID, "reason", reason)
	}
	return rejected, nil
}

func (f *RelevanceFilter) check(item *models.Item) (string, bool) {
	text := strings.TrimSpace(item.Title + " " + item.Content)
	if text == "" {
		return "empty content", false
	}
	// Link-only items from scraped listings still carry a URL worth analyzing
	// by title; require some title text at minimum.
	if len(text) < f.minContent && item.URL == "" {
		return fmt.Sprintf("content too short (%d chars)", len(text)), false
	}
	if strings.TrimSpace(item.Title) == "" && len(strings.TrimSpace(item.Content)) < f.minContent {
		return fmt.Sprintf("content too short (%d chars)", len(strings.TrimSpace(item.Content))), false
	}
	return "", true
}
