package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/augmenthq/compete/internal/models"
)

// RSSFetcher retrieves items from RSS and Atom feeds.
type RSSFetcher struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewRSSFetcher creates a new RSS fetcher.
func NewRSSFetcher(logger *slog.Logger, timeout time.Duration) *RSSFetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "Mozilla/5.0 (compatible; compete/1.0)"
	return &RSSFetcher{
		parser: parser,
		logger: logger,
	}
}

// SourceType returns the source type this fetcher handles.
func (f *RSSFetcher) SourceType() models.SourceType {
	return models.SourceTypeRSS
}

// Fetch retrieves and parses the source's feed. Every entry becomes an item;
// duplicate suppression happens at insert time on (source, guid).
func (f *RSSFetcher) Fetch(ctx context.Context, source *models.Source) (*FetchResult, error) {
	if source.RSS == nil {
		return nil, fmt.Errorf("source %s has no feed configuration", source.ID)
	}

	feed, err := f.parser.ParseURLWithContext(source.RSS.FeedURL, ctx)
	if err != nil {
		return nil, classifyFeedError(source.RSS.FeedURL, err)
	}

	f.logger.Debug("parsed feed", "url", source.RSS.FeedURL, "entries", len(feed.Items))

	result := &FetchResult{FetchedAt: time.Now().UTC()}
	for _, entry := range feed.Items {
		result.Items = append(result.Items, feedEntryToItem(source, entry))
	}
	return result, nil
}

func feedEntryToItem(source *models.Source, entry *gofeed.Item) models.Item {
	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	var author string
	if len(entry.Authors) > 0 {
		author = entry.Authors[0].Name
	}

	item := models.Item{
		ID:          uuid.NewString(),
		SourceID:    source.ID,
		GUID:        feedEntryGUID(entry),
		Title:       strings.TrimSpace(entry.Title),
		URL:         strings.TrimSpace(entry.Link),
		Author:      author,
		Content:     stripHTML(content),
		PublishedAt: entry.PublishedParsed,
		CreatedAt:   time.Now().UTC(),
	}
	if item.PublishedAt == nil {
		item.PublishedAt = entry.UpdatedParsed
	}
	if len(entry.Categories) > 0 {
		item.RawMetadata = map[string]interface{}{
			"categories": entry.Categories,
		}
	}
	return item
}

// feedEntryGUID picks a stable identifier for a feed entry: the feed's own
// GUID when present, then the link, then a hash of title and link.
func feedEntryGUID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	if entry.Link != "" {
		return entry.Link
	}
	sum := sha256.Sum256([]byte(entry.Title + "|" + entry.Link))
	return hex.EncodeToString(sum[:])[:32]
}

// stripHTML removes markup from feed content, keeping paragraph breaks.
func stripHTML(text string) string {
	for _, tag := range []string{"<p>", "</p>", "<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, tag, "\n")
	}
	for {
		start := strings.Index(text, "<")
		if start == -1 {
			break
		}
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

func classifyFeedError(feedURL string, err error) error {
	// gofeed surfaces HTTP failures as HTTPError with the status code.
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return NewRetryableError(fmt.Errorf("failed to fetch feed %s: %w", feedURL, err))
		}
	}
	return fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
}
