package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	calls []bool // generateBriefing per call
}

func (f *fakeRunner) Run(_ context.Context, _ time.Time, generateBriefing bool) (*models.CheckRun, error) {
	f.calls = append(f.calls, generateBriefing)
	return &models.CheckRun{ID: "run-1"}, nil
}

type fakeReviewer struct {
	runs int
}

func (f *fakeReviewer) ReviewAll(_ context.Context) (int, error) {
	f.runs++
	return 0, nil
}

func TestBriefingDue(t *testing.T) {
	tests := []struct {
		timeOfDay string
		now       string
		want      bool
	}{
		{"08:00", "2026-03-02T07:59:00Z", false},
		{"08:00", "2026-03-02T08:00:00Z", true},
		{"08:00", "2026-03-02T17:30:00Z", true},
		{"", "2026-03-02T17:30:00Z", false},
		{"bogus", "2026-03-02T17:30:00Z", false},
	}

	for _, tt := range tests {
		now, err := time.Parse(time.RFC3339, tt.now)
		if err != nil {
			t.Fatal(err)
		}
		if got := briefingDue(tt.timeOfDay, now); got != tt.want {
			t.Errorf("briefingDue(%q, %s) = %v, want %v", tt.timeOfDay, tt.now, got, tt.want)
		}
	}
}

func TestClaimBriefing_OncePerDay(t *testing.T) {
	s := NewCheckScheduler(&fakeRunner{}, time.Minute, "08:00", testLogger())

	morning := time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC)
	if !s.claimBriefing(morning) {
		t.Fatal("first claim after the configured time should succeed")
	}
	if s.claimBriefing(morning.Add(time.Hour)) {
		t.Error("second claim the same day should be refused")
	}
	if !s.claimBriefing(morning.AddDate(0, 0, 1)) {
		t.Error("next day should claim again")
	}
}

func TestClaimBriefing_ReleasedOnFailure(t *testing.T) {
	s := NewCheckScheduler(&fakeRunner{}, time.Minute, "08:00", testLogger())

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !s.claimBriefing(now) {
		t.Fatal("claim should succeed")
	}
	s.releaseBriefing()
	if !s.claimBriefing(now) {
		t.Error("released claim should be available again")
	}
}

func TestRunCheck_PassesBriefingFlag(t *testing.T) {
	runner := &fakeRunner{}
	s := NewCheckScheduler(runner, time.Minute, "00:00", testLogger())

	s.runCheck(context.Background())
	s.runCheck(context.Background())

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runner.calls))
	}
	if !runner.calls[0] {
		t.Error("first run of the day should generate the briefing")
	}
	if runner.calls[1] {
		t.Error("second run the same day should not")
	}
}

func TestProfileReviewDue(t *testing.T) {
	s := NewProfileReviewScheduler(&fakeReviewer{}, time.Monday, "09:00", testLogger())

	monday := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) // a Monday
	tuesday := monday.AddDate(0, 0, 1)

	if s.due(monday.Add(-time.Hour)) {
		t.Error("before the configured time should not be due")
	}
	if !s.due(monday) {
		t.Error("Monday after the configured time should be due")
	}
	if s.due(tuesday) {
		t.Error("wrong weekday should not be due")
	}

	s.maybeRun(context.Background(), monday)
	if s.due(monday.Add(2 * time.Hour)) {
		t.Error("should not be due twice the same day")
	}
	if !s.due(monday.AddDate(0, 0, 7)) {
		t.Error("the following Monday should be due again")
	}
}

func TestMaybeRun_TriggersReviewer(t *testing.T) {
	reviewer := &fakeReviewer{}
	s := NewProfileReviewScheduler(reviewer, time.Monday, "09:00", testLogger())

	monday := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s.maybeRun(context.Background(), monday)
	s.maybeRun(context.Background(), monday.Add(time.Minute))

	if reviewer.runs != 1 {
		t.Errorf("expected exactly 1 review, got %d", reviewer.runs)
	}
}

func TestParseWeekday(t *testing.T) {
	if ParseWeekday("friday") != time.Friday {
		t.Error("friday not parsed")
	}
	if ParseWeekday("FRIDAY") != time.Friday {
		t.Error("case should not matter")
	}
	if ParseWeekday("someday") != time.Monday {
		t.Error("unknown weekday should default to Monday")
	}
}
