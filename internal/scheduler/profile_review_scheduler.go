package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// ProfileReviewer runs one profile review pass.
type ProfileReviewer interface {
	ReviewAll(ctx context.Context) (int, error)
}

// ProfileReviewScheduler runs the profile review once a week, on the
// configured weekday at or after the configured time of day.
type ProfileReviewScheduler struct {
	reviewer      ProfileReviewer
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
	weekday       time.Weekday
	timeOfDay     string // "15:04"

	lastRun time.Time
}

// NewProfileReviewScheduler creates a new profile review scheduler.
func NewProfileReviewScheduler(reviewer ProfileReviewer, weekday time.Weekday, timeOfDay string, logger *slog.Logger) *ProfileReviewScheduler {
	return &ProfileReviewScheduler{
		reviewer:      reviewer,
		logger:        logger,
		stopChan:      make(chan struct{}),
		checkInterval: 1 * time.Minute,
		weekday:       weekday,
		timeOfDay:     timeOfDay,
	}
}

// Start begins the scheduler loop.
func (s *ProfileReviewScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting profile review scheduler",
		"weekday", s.weekday.String(),
		"time_of_day", s.timeOfDay)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.maybeRun(ctx, time.Now())
		case <-s.stopChan:
			s.logger.Info("Profile review scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Profile review scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *ProfileReviewScheduler) Stop() {
	close(s.stopChan)
}

func (s *ProfileReviewScheduler) maybeRun(ctx context.Context, now time.Time) {
	if !s.due(now) {
		return
	}
	s.lastRun = now

	s.logger.Info("Starting scheduled profile review")
	created, err := s.reviewer.ReviewAll(ctx)
	if err != nil {
		s.logger.Error("Scheduled profile review failed", "error", err)
		return
	}
	s.logger.Info("Scheduled profile review finished", "suggestions_created", created)
}

// due reports whether a review should fire now: right weekday, past the
// configured time, and not already run today.
func (s *ProfileReviewScheduler) due(now time.Time) bool {
	if now.Weekday() != s.weekday {
		return false
	}
	if !briefingDue(s.timeOfDay, now) {
		return false
	}
	if !s.lastRun.IsZero() &&
		s.lastRun.Year() == now.Year() && s.lastRun.YearDay() == now.YearDay() {
		return false
	}
	return true
}

// ParseWeekday maps a weekday name to time.Weekday, defaulting to Monday.
func ParseWeekday(name string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}
