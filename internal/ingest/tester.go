package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// TestOutcome is the result of a dry-run fetch against a source.
type TestOutcome struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ItemCount int    `json:"item_count"`
}

// SourceTester performs dry-run fetches so a source can be validated before
// it is saved. Nothing is persisted and source health is not touched.
type SourceTester struct {
	fetchers map[models.SourceType]Fetcher
	timeout  time.Duration
}

// NewSourceTester creates a tester over the given fetchers.
func NewSourceTester(fetchers []Fetcher, timeout time.Duration) *SourceTester {
	byType := make(map[models.SourceType]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byType[f.SourceType()] = f
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SourceTester{fetchers: byType, timeout: timeout}
}

// Test fetches the source once and reports what came back. Fetch errors are
// reported in the outcome, not returned; the error return is reserved for
// unusable input.
func (t *SourceTester) Test(ctx context.Context, source *models.Source) (*TestOutcome, error) {
	fetcher, ok := t.fetchers[source.Type]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", source.Type)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := fetcher.Fetch(ctx, source)
	if err != nil {
		return &TestOutcome{
			Success: false,
			Message: err.Error(),
		}, nil
	}

	msg := fmt.Sprintf("fetched %d items", len(result.Items))
	if len(result.Items) == 0 {
		msg = "source reachable, no items found"
	}
	return &TestOutcome{
		Success:   true,
		Message:   msg,
		ItemCount: len(result.Items),
	}, nil
}

// TestURL dry-runs a feed or page URL that has not been saved as a source
// yet. asScrape forces the scrape path; otherwise the URL is treated as a
// feed.
func (t *SourceTester) TestURL(ctx context.Context, rawURL string, asScrape bool) (*TestOutcome, error) {
	source := &models.Source{ID: "test", Name: "test"}
	if asScrape {
		source.Type = models.SourceTypeWebScrape
		source.Scrape = &models.ScrapeConfig{PageURL: rawURL}
	} else {
		source.Type = models.SourceTypeRSS
		source.RSS = &models.RSSConfig{FeedURL: rawURL}
	}
	return t.Test(ctx, source)
}
