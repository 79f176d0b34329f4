package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/models"
)

// CheckRunRepository is the run bookkeeping the runner needs.
type CheckRunRepository interface {
	Create(ctx context.Context, run *models.CheckRun) error
	Complete(ctx context.Context, run *models.CheckRun) error
	SetBriefingResult(ctx context.Context, id, briefingID, briefingErr string) error
}

// Analyzer is the asynchronous analysis stage kicked off after a sweep.
type Analyzer interface {
	ProcessRun(ctx context.Context, runID string)
}

// BriefingGenerator produces the daily briefing when a run asks for one.
type BriefingGenerator interface {
	// Generate returns the briefing for the given date, creating it if
	// needed. A nil briefing with nil error means there was nothing to
	// brief on.
	Generate(ctx context.Context, date time.Time) (*models.Briefing, error)
}

// Metrics receives pipeline counters from completed runs.
type Metrics interface {
	RecordItemsIngested(sourceType string, count int)
	RecordCheckRunDuration(d time.Duration)
}

// Runner executes complete check runs: sweep all sources, filter, hand the
// survivors to analysis, and optionally produce a briefing.
type Runner struct {
	coordinator *Coordinator
	filter      *RelevanceFilter
	runs        CheckRunRepository
	analyzer    Analyzer
	briefings   BriefingGenerator
	logger      *slog.Logger

	// FilterBatchSize bounds one relevance sweep. Zero means the default.
	FilterBatchSize int

	// Metrics is optional.
	Metrics Metrics
}

// NewRunner creates a check-run runner. analyzer and briefings may be nil in
// tests; briefings is only consulted when a run requests a briefing.
func NewRunner(
	coordinator *Coordinator,
	filter *RelevanceFilter,
	runs CheckRunRepository,
	analyzer Analyzer,
	briefings BriefingGenerator,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		coordinator: coordinator,
		filter:      filter,
		runs:        runs,
		analyzer:    analyzer,
		briefings:   briefings,
		logger:      logger,
	}
}

// Run executes one full check run. Individual source failures land in the
// run's error log but leave it completed; only a persistence failure marks
// the run itself failed. The returned run reflects the state at completion;
// analysis continues in the background.
func (r *Runner) Run(ctx context.Context, scheduled time.Time, generateBriefing bool) (*models.CheckRun, error) {
	run := &models.CheckRun{
		ID:             uuid.NewString(),
		ScheduledTime:  scheduled,
		StartedAt:      time.Now().UTC(),
		Status:         models.CheckRunStatusRunning,
		AnalysisStatus: models.AnalysisStatusPending,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create check run: %w", err)
	}

	stats, err := r.coordinator.CheckAll(ctx)
	if err != nil {
		r.fail(ctx, run, err)
		return run, err
	}

	run.FeedsChecked = stats.FeedsChecked
	run.NewItemsFound = stats.NewItems
	run.ErrorLog = stats.ErrorLog()

	batch := r.FilterBatchSize
	if batch <= 0 {
		batch = 500
	}
	rejected, err := r.filter.Sweep(ctx, batch)
	if err != nil {
		r.fail(ctx, run, err)
		return run, err
	}
	if rejected > 0 {
		r.logger.Info("relevance filter rejected items", "run_id", run.ID, "rejected", rejected)
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = models.CheckRunStatusCompleted
	if err := r.runs.Complete(ctx, run); err != nil {
		return run, fmt.Errorf("failed to complete check run: %w", err)
	}

	if r.Metrics != nil {
		for sourceType, n := range stats.NewByType {
			r.Metrics.RecordItemsIngested(string(sourceType), n)
		}
		r.Metrics.RecordCheckRunDuration(now.Sub(run.StartedAt))
	}

	// Analysis runs detached from the request; its status is tracked on the
	// run record separately.
	if r.analyzer != nil {
		go r.analyzer.ProcessRun(context.WithoutCancel(ctx), run.ID)
	}

	if generateBriefing {
		r.generateBriefing(ctx, run)
	}
	return run, nil
}

// generateBriefing records the briefing outcome on the run without ever
// failing the run itself.
func (r *Runner) generateBriefing(ctx context.Context, run *models.CheckRun) {
	briefing, err := r.briefings.Generate(ctx, run.StartedAt)
	switch {
	case err != nil:
		r.logger.Error("briefing generation failed", "run_id", run.ID, "error", err)
		run.BriefingError = err.Error()
	case briefing == nil:
		r.logger.Info("no cards to brief on", "run_id", run.ID)
		return
	default:
		run.BriefingID = briefing.ID
	}
	if err := r.runs.SetBriefingResult(ctx, run.ID, run.BriefingID, run.BriefingError); err != nil {
		r.logger.Error("failed to record briefing result", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) fail(ctx context.Context, run *models.CheckRun, cause error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = models.CheckRunStatusFailed
	if run.ErrorLog == "" {
		run.ErrorLog = cause.Error()
	} else {
		run.ErrorLog += "\n" + cause.Error()
	}
	if err := r.runs.Complete(ctx, run); err != nil {
		r.logger.Error("failed to record failed run", "run_id", run.ID, "error", err)
	}
}
