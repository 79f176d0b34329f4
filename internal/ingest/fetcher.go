package ingest

import (
	"context"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// Fetcher retrieves new items for one kind of source.
type Fetcher interface {
	// SourceType returns the source type this fetcher handles.
	SourceType() models.SourceType

	// Fetch retrieves items from the source that are new since its recorded
	// state. It must not persist anything; the coordinator owns storage and
	// source health updates.
	Fetch(ctx context.Context, source *models.Source) (*FetchResult, error)
}

// FetchResult is the outcome of a single fetch against one source.
type FetchResult struct {
	Items     []models.Item
	FetchedAt time.Time

	// NewLastTweetID carries updated cursor state for Twitter sources.
	// Empty means the cursor did not advance.
	NewLastTweetID string

	// BackfillDone marks that a Twitter source's initial history window has
	// been fully fetched.
	BackfillDone bool
}
