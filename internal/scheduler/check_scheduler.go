package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// CheckRunner triggers one full source check cycle.
type CheckRunner interface {
	Run(ctx context.Context, scheduled time.Time, generateBriefing bool) (*models.CheckRun, error)
}

// CheckScheduler manages automatic execution of source check runs. Checks
// fire on a fixed interval; at most one briefing per day is generated, by
// the first check at or after the configured time of day.
type CheckScheduler struct {
	runner       CheckRunner
	logger       *slog.Logger
	stopChan     chan struct{}
	interval     time.Duration
	briefingTime string // "15:04", empty disables scheduled briefings

	mu          sync.Mutex
	running     bool
	briefedYear int
	briefedDay  int
}

// NewCheckScheduler creates a new check scheduler.
func NewCheckScheduler(runner CheckRunner, interval time.Duration, briefingTime string, logger *slog.Logger) *CheckScheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &CheckScheduler{
		runner:       runner,
		logger:       logger,
		stopChan:     make(chan struct{}),
		interval:     interval,
		briefingTime: briefingTime,
	}
}

// Start begins the scheduler loop.
func (s *CheckScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting check scheduler",
		"interval", s.interval,
		"briefing_time", s.briefingTime)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			s.runCheck(ctx)
		case <-s.stopChan:
			s.logger.Info("Check scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Check scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *CheckScheduler) Stop() {
	close(s.stopChan)
}

func (s *CheckScheduler) runCheck(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Previous check still running, skipping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	now := time.Now()
	generateBriefing := s.claimBriefing(now)

	run, err := s.runner.Run(ctx, now.UTC(), generateBriefing)
	if err != nil {
		s.logger.Error("Scheduled check run failed", "error", err)
		if generateBriefing {
			s.releaseBriefing()
		}
		return
	}

	s.logger.Info("Scheduled check run finished",
		"run_id", run.ID,
		"feeds_checked", run.FeedsChecked,
		"new_items", run.NewItemsFound,
		"briefing_generated", generateBriefing)
}

// claimBriefing reports whether this tick should generate the daily
// briefing, and records the claim so later ticks today skip it.
func (s *CheckScheduler) claimBriefing(now time.Time) bool {
	if !briefingDue(s.briefingTime, now) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.briefedYear == now.Year() && s.briefedDay == now.YearDay() {
		return false
	}
	s.briefedYear = now.Year()
	s.briefedDay = now.YearDay()
	return true
}

func (s *CheckScheduler) releaseBriefing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefedYear = 0
	s.briefedDay = 0
}

// briefingDue reports whether now has reached the configured "15:04" time
// of day.
func briefingDue(timeOfDay string, now time.Time) bool {
	if timeOfDay == "" {
		return false
	}
	target, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return false
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	targetMinutes := target.Hour()*60 + target.Minute()
	return nowMinutes >= targetMinutes
}
