package briefing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

type fakeBriefingRepo struct {
	existing *models.Briefing
	upserted *models.Briefing
}

func (r *fakeBriefingRepo) GetByDate(ctx context.Context, date time.Time) (*models.Briefing, error) {
	return r.existing, nil
}

func (r *fakeBriefingRepo) UpsertForDate(ctx context.Context, b *models.Briefing) error {
	r.upserted = b
	return nil
}

type fakeCardSource struct {
	cards []models.AnalysisCard
	since time.Time
}

func (r *fakeCardSource) ListCreatedSince(ctx context.Context, since time.Time) ([]models.AnalysisCard, error) {
	r.since = since
	return r.cards, nil
}

type fakeChat struct {
	response string
	err      error
	prompt   string
}

func (c *fakeChat) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	c.prompt = user
	return c.response, c.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerate_SkipsWhenExisting(t *testing.T) {
	existing := &models.Briefing{ID: "brief-1", Status: models.ReviewStatusApproved}
	repo := &fakeBriefingRepo{existing: existing}
	chat := &fakeChat{response: "should not be called"}

	g := NewGenerator(chat, repo, &fakeCardSource{}, testLogger())
	got, err := g.Generate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != existing {
		t.Error("existing briefing must be returned untouched")
	}
	if repo.upserted != nil {
		t.Error("existing briefing must not be regenerated")
	}
	if chat.prompt != "" {
		t.Error("no model call expected when briefing exists")
	}
}

func TestGenerate_NoCardsIsNotAnError(t *testing.T) {
	g := NewGenerator(&fakeChat{}, &fakeBriefingRepo{}, &fakeCardSource{}, testLogger())

	got, err := g.Generate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("no cards must not be an error, got: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil briefing, got %+v", got)
	}
}

func TestGenerate_CreatesBriefing(t *testing.T) {
	cards := []models.AnalysisCard{
		{ID: "card-1", Title: "Acme raises Series C", Priority: models.PriorityRed, EventType: models.EventTypeFunding, Summary: "They raised."},
		{ID: "card-2", Title: "Minor blog redesign", Priority: models.PriorityGreen, EventType: models.EventTypeOther},
	}
	repo := &fakeBriefingRepo{}
	source := &fakeCardSource{cards: cards}
	chat := &fakeChat{response: "## Executive summary\nBusy day."}

	g := NewGenerator(chat, repo, source, testLogger())
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	got, err := g.Generate(context.Background(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.upserted == nil {
		t.Fatal("briefing not stored")
	}
	if got.Date != models.BriefingDate(at) {
		t.Errorf("date = %v, want UTC calendar date", got.Date)
	}
	if got.Status != models.ReviewStatusDraft {
		t.Errorf("new briefing must start in draft, got %s", got.Status)
	}
	if got.Content != chat.response {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.CardIDs) != 2 {
		t.Errorf("card links = %v", got.CardIDs)
	}

	// Prompt carries every card, red first in the source material.
	for _, want := range []string{"Acme raises Series C", "Minor blog redesign", "RED"} {
		if !strings.Contains(chat.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// Default collection window is the past 24 hours.
	if want := at.Add(-24 * time.Hour); !source.since.Equal(want) {
		t.Errorf("window start = %v, want %v", source.since, want)
	}
}

func TestGenerate_ModelFailureSurfaces(t *testing.T) {
	source := &fakeCardSource{cards: []models.AnalysisCard{{ID: "card-1", Title: "X"}}}
	chat := &fakeChat{err: errors.New("model unavailable")}
	repo := &fakeBriefingRepo{}

	g := NewGenerator(chat, repo, source, testLogger())
	_, err := g.Generate(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if repo.upserted != nil {
		t.Error("failed generation must not store a briefing")
	}
}
