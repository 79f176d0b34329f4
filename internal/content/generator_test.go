package content

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

type fakeChat struct {
	response string
	err      error

	mu      sync.Mutex
	prompts []string
}

func (f *fakeChat) Complete(_ context.Context, _, user string, _ bool) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeOutputRepo struct {
	template *models.ContentTemplate
	versions map[string]int

	mu       sync.Mutex
	created  []*models.ContentOutput
	finished map[string]*models.ContentOutput
	done     chan struct{}
}

func newFakeOutputRepo(tmpl *models.ContentTemplate) *fakeOutputRepo {
	return &fakeOutputRepo{
		template: tmpl,
		versions: make(map[string]int),
		finished: make(map[string]*models.ContentOutput),
		done:     make(chan struct{}, 4),
	}
}

func (f *fakeOutputRepo) GetTemplate(_ context.Context, id string) (*models.ContentTemplate, error) {
	if f.template == nil || f.template.ID != id {
		return nil, errors.New("template not found")
	}
	return f.template, nil
}

func (f *fakeOutputRepo) CreateOutput(_ context.Context, output *models.ContentOutput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := output.CompetitorID + "/" + output.TemplateID
	f.versions[key]++
	output.Version = f.versions[key]
	clone := *output
	f.created = append(f.created, &clone)
	return nil
}

func (f *fakeOutputRepo) FinishGeneration(_ context.Context, id string, output *models.ContentOutput) error {
	f.mu.Lock()
	clone := *output
	f.finished[id] = &clone
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeOutputRepo) GetOutput(_ context.Context, id string) (*models.ContentOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if out, ok := f.finished[id]; ok {
		return out, nil
	}
	return nil, errors.New("output not found")
}

func (f *fakeOutputRepo) waitFinished(t *testing.T, id string) *models.ContentOutput {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never finished")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.finished[id]
	if out == nil {
		t.Fatalf("no finish recorded for %s", id)
	}
	return out
}

type fakeCompetitors struct {
	competitor *models.Competitor
}

func (f *fakeCompetitors) GetByID(_ context.Context, id string) (*models.Competitor, error) {
	if f.competitor == nil || f.competitor.ID != id {
		return nil, errors.New("competitor not found")
	}
	return f.competitor, nil
}

type fakeCards struct {
	cards []models.AnalysisCard
	since time.Time
}

func (f *fakeCards) ListApprovedForCompetitor(_ context.Context, _ string, since time.Time, _ int) ([]models.AnalysisCard, error) {
	f.since = since
	return f.cards, nil
}

type fakeSelf struct {
	profile *models.SelfProfile
}

func (f *fakeSelf) Get(_ context.Context) (*models.SelfProfile, error) {
	return f.profile, nil
}

func battleCardTemplate() *models.ContentTemplate {
	return &models.ContentTemplate{
		ID:          "tmpl-1",
		ContentType: "battle_card",
		Name:        "Battle Card",
		Sections: []models.TemplateSection{
			{Title: "Overview", Description: "who they are"},
			{Title: "How We Win", PromptHint: "lead with differentiators"},
		},
		DocNamePattern: "Battle Card - {competitor}",
		IsActive:       true,
	}
}

func TestStartGeneration_ProducesDraft(t *testing.T) {
	repo := newFakeOutputRepo(battleCardTemplate())
	chat := &fakeChat{response: `{"Overview": "Acme sells widgets.", "How We Win": "We ship faster."}`}
	cards := &fakeCards{cards: []models.AnalysisCard{
		{ID: "card-1", Title: "Acme raises prices", EventType: models.EventTypePricingChange, Priority: models.PriorityYellow, Summary: "20% increase."},
	}}
	gen := NewGenerator(chat, repo,
		&fakeCompetitors{competitor: &models.Competitor{ID: "comp-1", Name: "Acme", Overview: "Widget maker."}},
		cards,
		&fakeSelf{profile: &models.SelfProfile{Overview: "We make gadgets."}},
		testLogger())

	output, err := gen.StartGeneration(context.Background(), "comp-1", "tmpl-1", "user-1")
	if err != nil {
		t.Fatalf("StartGeneration failed: %v", err)
	}
	if output.Status != models.ContentStatusGenerating {
		t.Errorf("expected generating, got %s", output.Status)
	}
	if output.Version != 1 {
		t.Errorf("expected version 1, got %d", output.Version)
	}

	final := repo.waitFinished(t, output.ID)
	if final.Status != models.ContentStatusDraft {
		t.Fatalf("expected draft, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.Title != "Battle Card - Acme" {
		t.Errorf("unexpected title %q", final.Title)
	}
	if !strings.Contains(final.Content, "## Overview") || !strings.Contains(final.Content, "We ship faster.") {
		t.Errorf("document missing sections:\n%s", final.Content)
	}
	// Template order, not JSON key order.
	if strings.Index(final.Content, "## Overview") > strings.Index(final.Content, "## How We Win") {
		t.Error("sections out of template order")
	}
	if len(final.SourceCardIDs) != 1 || final.SourceCardIDs[0] != "card-1" {
		t.Errorf("unexpected source cards %v", final.SourceCardIDs)
	}

	prompt := chat.prompts[0]
	for _, want := range []string{"Acme raises prices", "We make gadgets.", "How We Win", "lead with differentiators"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStartGeneration_ModelFailureMarksFailed(t *testing.T) {
	repo := newFakeOutputRepo(battleCardTemplate())
	chat := &fakeChat{err: errors.New("model unavailable")}
	gen := NewGenerator(chat, repo,
		&fakeCompetitors{competitor: &models.Competitor{ID: "comp-1", Name: "Acme"}},
		&fakeCards{}, &fakeSelf{}, testLogger())

	output, err := gen.StartGeneration(context.Background(), "comp-1", "tmpl-1", "user-1")
	if err != nil {
		t.Fatalf("StartGeneration failed: %v", err)
	}

	final := repo.waitFinished(t, output.ID)
	if final.Status != models.ContentStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "model unavailable") {
		t.Errorf("error message not preserved: %q", final.ErrorMessage)
	}
}

func TestStartGeneration_RetryAllocatesNewVersion(t *testing.T) {
	repo := newFakeOutputRepo(battleCardTemplate())
	chat := &fakeChat{response: `{"Overview": "text"}`}
	gen := NewGenerator(chat, repo,
		&fakeCompetitors{competitor: &models.Competitor{ID: "comp-1", Name: "Acme"}},
		&fakeCards{}, &fakeSelf{}, testLogger())

	first, err := gen.StartGeneration(context.Background(), "comp-1", "tmpl-1", "user-1")
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	repo.waitFinished(t, first.ID)

	second, err := gen.StartGeneration(context.Background(), "comp-1", "tmpl-1", "user-1")
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	repo.waitFinished(t, second.ID)

	if second.ID == first.ID {
		t.Error("retry reused the same row")
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}
}

func TestStartGeneration_InactiveTemplateRejected(t *testing.T) {
	tmpl := battleCardTemplate()
	tmpl.IsActive = false
	repo := newFakeOutputRepo(tmpl)
	gen := NewGenerator(&fakeChat{}, repo,
		&fakeCompetitors{competitor: &models.Competitor{ID: "comp-1", Name: "Acme"}},
		&fakeCards{}, &fakeSelf{}, testLogger())

	_, err := gen.StartGeneration(context.Background(), "comp-1", "tmpl-1", "user-1")
	var sve *models.StateViolationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected state violation, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Error("row created for inactive template")
	}
}

func TestParseSections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantKey string
	}{
		{"plain", `{"Overview": "text"}`, false, "Overview"},
		{"fenced", "```json\n{\"Overview\": \"text\"}\n```", false, "Overview"},
		{"prose prefix", `Here you go: {"Overview": "text"}`, false, "Overview"},
		{"garbage", "not json at all", true, ""},
		{"empty object", `{}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections, err := parseSections(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := sections[tt.wantKey]; !ok {
				t.Errorf("missing key %q in %v", tt.wantKey, sections)
			}
		})
	}
}

func TestAssembleDocument_ExtraSectionsKept(t *testing.T) {
	tmpl := battleCardTemplate()
	doc := assembleDocument(tmpl, map[string]string{
		"How We Win": "Faster shipping.",
		"Overview":   "Acme sells widgets.",
		"Pricing":    "Per seat.",
	})

	overview := strings.Index(doc, "## Overview")
	win := strings.Index(doc, "## How We Win")
	pricing := strings.Index(doc, "## Pricing")
	if overview < 0 || win < 0 || pricing < 0 {
		t.Fatalf("missing sections:\n%s", doc)
	}
	if !(overview < win && win < pricing) {
		t.Errorf("template sections must precede extras:\n%s", doc)
	}
}
