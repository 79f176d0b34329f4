package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// SourceRepository is the slice of source storage the coordinator needs.
type SourceRepository interface {
	ListActive(ctx context.Context) ([]models.Source, error)
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, errMsg string, at time.Time) error
	UpdateTwitterState(ctx context.Context, id string, lastTweetID string, backfillCompleted bool) error
}

// ItemRepository is the slice of item storage the coordinator needs.
type ItemRepository interface {
	InsertBatch(ctx context.Context, items []models.Item) (int, error)
}

// CoordinatorConfig holds tuning for a check cycle.
type CoordinatorConfig struct {
	ConcurrentFetches int
	PerSourceTimeout  time.Duration
	RetryPolicy       RetryPolicy
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ConcurrentFetches: 4,
		PerSourceTimeout:  2 * time.Minute,
		RetryPolicy:       DefaultRetryPolicy(),
	}
}

// CycleStats summarizes one check cycle across all sources.
type CycleStats struct {
	FeedsChecked  int
	NewItems      int
	NewByType     map[models.SourceType]int
	FailedSources int
	Errors        []string
}

// ErrorLog joins per-source failures into one log document, one line each.
func (s *CycleStats) ErrorLog() string {
	return strings.Join(s.Errors, "\n")
}

// Coordinator fans a check cycle out across all active sources, routing each
// to the fetcher for its type and recording per-source health.
type Coordinator struct {
	fetchers map[models.SourceType]Fetcher
	sources  SourceRepository
	items    ItemRepository
	logger   *slog.Logger
	config   CoordinatorConfig
}

// NewCoordinator creates a coordinator over the given fetchers.
func NewCoordinator(
	fetchers []Fetcher,
	sources SourceRepository,
	items ItemRepository,
	logger *slog.Logger,
	config CoordinatorConfig,
) *Coordinator {
	byType := make(map[models.SourceType]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byType[f.SourceType()] = f
	}
	return &Coordinator{
		fetchers: byType,
		sources:  sources,
		items:    items,
		logger:   logger,
		config:   config,
	}
}

// CheckAll fetches every active source once. A source failing never aborts
// the cycle; its error is recorded on the source and in the cycle stats.
func (c *Coordinator) CheckAll(ctx context.Context) (*CycleStats, error) {
	sources, err := c.sources.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}

	c.logger.Info("starting check cycle",
		"sources", len(sources),
		"concurrency", c.config.ConcurrentFetches,
	)

	type outcome struct {
		source   models.Source
		newItems int
		err      error
	}

	outcomes := make([]outcome, len(sources))
	semaphore := make(chan struct{}, c.config.ConcurrentFetches)
	var wg sync.WaitGroup

	for i := range sources {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			src := sources[i]
			n, err := c.checkSource(ctx, &src)
			outcomes[i] = outcome{source: src, newItems: n, err: err}
		}(i)
	}
	wg.Wait()

	stats := &CycleStats{
		FeedsChecked: len(sources),
		NewByType:    make(map[models.SourceType]int),
	}
	for _, o := range outcomes {
		if o.err != nil {
			stats.FailedSources++
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("Source '%s' (%s): %v", o.source.Name, o.source.ID, o.err))
			continue
		}
		stats.NewItems += o.newItems
		stats.NewByType[o.source.Type] += o.newItems
	}
	sort.Strings(stats.Errors)

	c.logger.Info("check cycle finished",
		"sources", stats.FeedsChecked,
		"new_items", stats.NewItems,
		"failed", stats.FailedSources,
	)
	return stats, nil
}

// checkSource fetches one source, stores its items, and updates its health.
func (c *Coordinator) checkSource(ctx context.Context, source *models.Source) (int, error) {
	fetcher, ok := c.fetchers[source.Type]
	if !ok {
		err := fmt.Errorf("no fetcher for source type %s", source.Type)
		c.recordFailure(ctx, source, err)
		return 0, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.PerSourceTimeout)
	defer cancel()

	var result *FetchResult
	err := Retry(fetchCtx, c.config.RetryPolicy, func() error {
		var fetchErr error
		result, fetchErr = fetcher.Fetch(fetchCtx, source)
		return fetchErr
	})
	if err != nil {
		c.logger.Error("source fetch failed",
			"source", source.Name, "source_id", source.ID, "error", err)
		c.recordFailure(ctx, source, err)
		return 0, err
	}

	newItems, err := c.items.InsertBatch(ctx, result.Items)
	if err != nil {
		c.recordFailure(ctx, source, err)
		return 0, fmt.Errorf("failed to store items: %w", err)
	}

	if source.Type == models.SourceTypeTwitter && (result.NewLastTweetID != "" || result.BackfillDone) {
		if err := c.sources.UpdateTwitterState(ctx, source.ID, result.NewLastTweetID, result.BackfillDone); err != nil {
			c.logger.Error("failed to update twitter cursor",
				"source", source.Name, "error", err)
		}
	}

	if err := c.sources.RecordSuccess(ctx, source.ID, result.FetchedAt); err != nil {
		c.logger.Error("failed to record source success",
			"source", source.Name, "error", err)
	}

	c.logger.Debug("source checked",
		"source", source.Name,
		"fetched", len(result.Items),
		"new", newItems,
	)
	return newItems, nil
}

func (c *Coordinator) recordFailure(ctx context.Context, source *models.Source, cause error) {
	if err := c.sources.RecordFailure(ctx, source.ID, cause.Error(), time.Now().UTC()); err != nil {
		c.logger.Error("failed to record source failure",
			"source", source.Name, "error", err)
	}
}
