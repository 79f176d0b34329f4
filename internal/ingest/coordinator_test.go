package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSourceRepo struct {
	mu        sync.Mutex
	sources   []models.Source
	successes []string
	failures  map[string]string
	cursors   map[string]string
	backfill  map[string]bool
}

func newFakeSourceRepo(sources ...models.Source) *fakeSourceRepo {
	return &fakeSourceRepo{
		sources:  sources,
		failures: map[string]string{},
		cursors:  map[string]string{},
		backfill: map[string]bool{},
	}
}

func (r *fakeSourceRepo) ListActive(ctx context.Context) ([]models.Source, error) {
	return r.sources, nil
}

func (r *fakeSourceRepo) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, id)
	return nil
}

func (r *fakeSourceRepo) RecordFailure(ctx context.Context, id string, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id] = errMsg
	return nil
}

func (r *fakeSourceRepo) UpdateTwitterState(ctx context.Context, id string, lastTweetID string, backfillCompleted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lastTweetID != "" {
		r.cursors[id] = lastTweetID
	}
	// Same contract as the Postgres repository: the flag only flips to true.
	r.backfill[id] = r.backfill[id] || backfillCompleted
	return nil
}

type fakeItemRepo struct {
	mu       sync.Mutex
	inserted []models.Item
	dupes    map[string]bool
	err      error
}

func (r *fakeItemRepo) InsertBatch(ctx context.Context, items []models.Item) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range items {
		key := item.SourceID + "|" + item.GUID
		if r.dupes == nil {
			r.dupes = map[string]bool{}
		}
		if r.dupes[key] {
			continue
		}
		r.dupes[key] = true
		r.inserted = append(r.inserted, item)
		n++
	}
	return n, nil
}

type stubFetcher struct {
	sourceType models.SourceType
	fetch      func(ctx context.Context, source *models.Source) (*FetchResult, error)
}

func (f *stubFetcher) SourceType() models.SourceType { return f.sourceType }
func (f *stubFetcher) Fetch(ctx context.Context, source *models.Source) (*FetchResult, error) {
	return f.fetch(ctx, source)
}

func rssSource(id, name string) models.Source {
	return models.Source{
		ID:   id,
		Name: name,
		Type: models.SourceTypeRSS,
		RSS:  &models.RSSConfig{FeedURL: "https://example.com/" + id},
	}
}

func fastConfig() CoordinatorConfig {
	cfg := DefaultCoordinatorConfig()
	cfg.RetryPolicy = RetryPolicy{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}
	return cfg
}

func TestCheckAll_FailureIsolation(t *testing.T) {
	sources := newFakeSourceRepo(
		rssSource("good", "Good Feed"),
		rssSource("bad", "Bad Feed"),
	)
	items := &fakeItemRepo{}

	fetcher := &stubFetcher{
		sourceType: models.SourceTypeRSS,
		fetch: func(ctx context.Context, src *models.Source) (*FetchResult, error) {
			if src.ID == "bad" {
				return nil, errors.New("connection refused")
			}
			return &FetchResult{
				FetchedAt: time.Now(),
				Items: []models.Item{
					{ID: "i1", SourceID: src.ID, GUID: "g1"},
					{ID: "i2", SourceID: src.ID, GUID: "g2"},
				},
			}, nil
		},
	}

	c := NewCoordinator([]Fetcher{fetcher}, sources, items, testLogger(), fastConfig())
	stats, err := c.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("cycle must survive individual source failures, got: %v", err)
	}

	if stats.FeedsChecked != 2 {
		t.Errorf("FeedsChecked = %d, want 2 (failed sources still count)", stats.FeedsChecked)
	}
	if stats.NewItems != 2 {
		t.Errorf("NewItems = %d, want 2", stats.NewItems)
	}
	if stats.FailedSources != 1 {
		t.Errorf("FailedSources = %d, want 1", stats.FailedSources)
	}
	if len(stats.Errors) != 1 || !strings.Contains(stats.Errors[0], "Source 'Bad Feed' (bad)") {
		t.Errorf("error log missing source attribution: %v", stats.Errors)
	}

	if msg := sources.failures["bad"]; !strings.Contains(msg, "connection refused") {
		t.Errorf("failure not recorded on source: %q", msg)
	}
	if len(sources.successes) != 1 || sources.successes[0] != "good" {
		t.Errorf("success not recorded: %v", sources.successes)
	}
}

func TestCheckAll_DuplicatesNotCountedAsNew(t *testing.T) {
	sources := newFakeSourceRepo(rssSource("feed", "Feed"))
	items := &fakeItemRepo{dupes: map[string]bool{"feed|seen-before": true}}

	fetcher := &stubFetcher{
		sourceType: models.SourceTypeRSS,
		fetch: func(ctx context.Context, src *models.Source) (*FetchResult, error) {
			return &FetchResult{
				FetchedAt: time.Now(),
				Items: []models.Item{
					{ID: "a", SourceID: "feed", GUID: "seen-before"},
					{ID: "b", SourceID: "feed", GUID: "brand-new"},
				},
			}, nil
		},
	}

	c := NewCoordinator([]Fetcher{fetcher}, sources, items, testLogger(), fastConfig())
	stats, err := c.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.NewItems != 1 {
		t.Errorf("NewItems = %d, want 1", stats.NewItems)
	}
}

func TestCheckAll_TwitterCursorPersisted(t *testing.T) {
	src := models.Source{
		ID:      "tw",
		Name:    "Acme on X",
		Type:    models.SourceTypeTwitter,
		Twitter: &models.TwitterConfig{Username: "acmehq", UserID: "1"},
	}
	sources := newFakeSourceRepo(src)
	items := &fakeItemRepo{}

	// First check completes the backfill, second is a plain incremental fetch.
	results := []*FetchResult{
		{FetchedAt: time.Now(), NewLastTweetID: "555", BackfillDone: true},
		{FetchedAt: time.Now(), NewLastTweetID: "777"},
	}
	call := 0
	fetcher := &stubFetcher{
		sourceType: models.SourceTypeTwitter,
		fetch: func(ctx context.Context, source *models.Source) (*FetchResult, error) {
			r := results[call]
			call++
			return r, nil
		},
	}

	c := NewCoordinator([]Fetcher{fetcher}, sources, items, testLogger(), fastConfig())
	if _, err := c.CheckAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources.cursors["tw"] != "555" {
		t.Errorf("cursor not persisted: %v", sources.cursors)
	}
	if !sources.backfill["tw"] {
		t.Error("backfill completion not persisted")
	}

	if _, err := c.CheckAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources.cursors["tw"] != "777" {
		t.Errorf("cursor not advanced: %v", sources.cursors)
	}
	if !sources.backfill["tw"] {
		t.Error("incremental fetch must not clear a completed backfill")
	}
}

func TestCheckAll_MissingFetcher(t *testing.T) {
	sources := newFakeSourceRepo(rssSource("feed", "Feed"))
	items := &fakeItemRepo{}

	c := NewCoordinator(nil, sources, items, testLogger(), fastConfig())
	stats, err := c.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.FailedSources != 1 {
		t.Errorf("source without fetcher should fail, got %+v", stats)
	}
}
