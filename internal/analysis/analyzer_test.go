package analysis

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChat struct {
	responses []string
	err       error
	prompts   []string
}

func (c *fakeChat) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	c.prompts = append(c.prompts, user)
	if c.err != nil {
		return "", c.err
	}
	i := len(c.prompts) - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

type fakeAnalysisItems struct {
	items     []models.Item
	processed map[string]struct {
		relevant bool
		reason   string
	}
}

func (r *fakeAnalysisItems) ListUnprocessed(ctx context.Context, limit int) ([]models.Item, error) {
	return r.items, nil
}

func (r *fakeAnalysisItems) MarkProcessed(ctx context.Context, id string, relevant bool, reason string) error {
	if r.processed == nil {
		r.processed = map[string]struct {
			relevant bool
			reason   string
		}{}
	}
	r.processed[id] = struct {
		relevant bool
		reason   string
	}{relevant, reason}
	return nil
}

type fakeAnalysisSources struct {
	sources map[string]*models.Source
}

func (r *fakeAnalysisSources) GetByID(ctx context.Context, id string) (*models.Source, error) {
	if s, ok := r.sources[id]; ok {
		return s, nil
	}
	return nil, errors.New("not found")
}

type fakeAnalysisCards struct {
	created []*models.AnalysisCard
}

func (r *fakeAnalysisCards) Create(ctx context.Context, card *models.AnalysisCard) error {
	r.created = append(r.created, card)
	return nil
}

type fakeAnalysisCompetitors struct {
	competitors []models.Competitor
	created     []*models.Competitor
}

func (r *fakeAnalysisCompetitors) List(ctx context.Context, activeOnly bool) ([]models.Competitor, error) {
	return r.competitors, nil
}

func (r *fakeAnalysisCompetitors) GetByName(ctx context.Context, name string) (*models.Competitor, error) {
	for i := range r.competitors {
		if strings.EqualFold(r.competitors[i].Name, name) {
			return &r.competitors[i], nil
		}
	}
	return nil, nil
}

func (r *fakeAnalysisCompetitors) Create(ctx context.Context, c *models.Competitor) error {
	r.created = append(r.created, c)
	r.competitors = append(r.competitors, *c)
	return nil
}

type fakeSelfProfile struct{ profile *models.SelfProfile }

func (r *fakeSelfProfile) Get(ctx context.Context) (*models.SelfProfile, error) {
	return r.profile, nil
}

type fakeAnalysisRuns struct {
	completed map[string]int
}

func (r *fakeAnalysisRuns) SetAnalysisComplete(ctx context.Context, id string, cards int) error {
	if r.completed == nil {
		r.completed = map[string]int{}
	}
	r.completed[id] = cards
	return nil
}

type analyzerFixture struct {
	analyzer    *Analyzer
	chat        *fakeChat
	items       *fakeAnalysisItems
	cards       *fakeAnalysisCards
	competitors *fakeAnalysisCompetitors
	runs        *fakeAnalysisRuns
}

func newFixture(chat *fakeChat, items []models.Item, sources map[string]*models.Source) *analyzerFixture {
	f := &analyzerFixture{
		chat:  chat,
		items: &fakeAnalysisItems{items: items},
		cards: &fakeAnalysisCards{},
		competitors: &fakeAnalysisCompetitors{competitors: []models.Competitor{
			{ID: "comp-acme", Name: "Acme", IsActive: true},
		}},
		runs: &fakeAnalysisRuns{},
	}
	f.analyzer = NewAnalyzer(
		chat,
		f.items,
		&fakeAnalysisSources{sources: sources},
		f.cards,
		f.competitors,
		&fakeSelfProfile{profile: &models.SelfProfile{Overview: "We sell widgets"}},
		f.runs,
		testLogger(),
		Config{},
	)
	return f
}

func relevantResponse() string {
	return `{"relevant": true, "event_type": "new_feature", "priority": "yellow",
		"title": "Acme ships dashboards", "summary": "New dashboards.",
		"impact_assessment": "Closes a gap.", "suggested_counter_moves": "Ship ours.",
		"competitors": ["acme"]}`
}

func TestProcessRun_CreatesCard(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Title: "Dashboards", Content: "Acme shipped dashboards"}}
	sources := map[string]*models.Source{"src-1": {ID: "src-1", Type: models.SourceTypeRSS, CompetitorID: "comp-acme"}}
	f := newFixture(&fakeChat{responses: []string{relevantResponse()}}, items, sources)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if len(f.cards.created) != 1 {
		t.Fatalf("expected 1 card, got %d", len(f.cards.created))
	}
	card := f.cards.created[0]
	if card.EventType != models.EventTypeNewFeature || card.Priority != models.PriorityYellow {
		t.Errorf("classification lost: %s/%s", card.EventType, card.Priority)
	}
	if card.Status != models.ReviewStatusDraft {
		t.Errorf("new card must start in draft, got %s", card.Status)
	}
	if card.CheckRunID != "run-1" || card.ItemID != "item-1" {
		t.Errorf("provenance missing: %+v", card)
	}
	if len(card.CompetitorIDs) != 1 || card.CompetitorIDs[0] != "comp-acme" {
		t.Errorf("case-insensitive competitor link failed: %v", card.CompetitorIDs)
	}
	if card.RawLLMOutput == "" {
		t.Error("raw model output not preserved")
	}

	got, ok := f.items.processed["item-1"]
	if !ok || !got.relevant {
		t.Errorf("item not marked relevant: %+v", got)
	}
	if f.runs.completed["run-1"] != 1 {
		t.Errorf("run completion = %v, want 1 card", f.runs.completed)
	}
}

func TestProcessRun_EnumFallbacks(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "something"}}
	chat := &fakeChat{responses: []string{
		`{"relevant": true, "title": "X", "event_type": "acquired", "priority": "urgent!!"}`,
	}}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if len(f.cards.created) != 1 {
		t.Fatalf("expected 1 card, got %d", len(f.cards.created))
	}
	card := f.cards.created[0]
	if card.EventType != models.EventTypeAcquisition {
		t.Errorf("event type = %s, want acquisition", card.EventType)
	}
	if card.Priority != models.PriorityGreen {
		t.Errorf("priority = %s, want green fallback", card.Priority)
	}
}

func TestProcessRun_IrrelevantItemClosedOut(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "hiring post"}}
	chat := &fakeChat{responses: []string{`{"relevant": false, "reason": "recruiting content"}`}}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if len(f.cards.created) != 0 {
		t.Errorf("no card expected, got %d", len(f.cards.created))
	}
	got := f.items.processed["item-1"]
	if got.relevant || got.reason != "recruiting content" {
		t.Errorf("rejection not recorded: %+v", got)
	}
	if f.runs.completed["run-1"] != 0 {
		t.Errorf("run should complete with 0 cards: %v", f.runs.completed)
	}
}

func TestProcessRun_ParseFailureClosedOut(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "text"}}
	chat := &fakeChat{responses: []string{"I am unable to produce JSON today."}}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	got, ok := f.items.processed["item-1"]
	if !ok {
		t.Fatal("item must be closed out after a parse failure")
	}
	if got.relevant || got.reason != "analysis response parse error" {
		t.Errorf("wrong rejection: %+v", got)
	}
}

func TestProcessRun_TransportFailureLeavesItem(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "text"}}
	chat := &fakeChat{err: errors.New("connection reset")}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if _, ok := f.items.processed["item-1"]; ok {
		t.Error("item must stay unprocessed after a transport failure")
	}
	// The run still finishes so its status is not stuck.
	if _, ok := f.runs.completed["run-1"]; !ok {
		t.Error("run analysis status never flipped")
	}
}

func TestProcessRun_SuggestsNewCompetitor(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "newcomer raises $50M"}}
	chat := &fakeChat{responses: []string{
		`{"relevant": true, "title": "WidgetCo raises $50M", "event_type": "funding",
		  "priority": "red", "suggested_new_competitor": "WidgetCo"}`,
	}}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if len(f.competitors.created) != 1 {
		t.Fatalf("expected 1 suggested competitor, got %d", len(f.competitors.created))
	}
	suggested := f.competitors.created[0]
	if !suggested.IsSuggested || suggested.Name != "WidgetCo" {
		t.Errorf("suggested competitor wrong: %+v", suggested)
	}
	if len(f.cards.created) != 1 || len(f.cards.created[0].CompetitorIDs) != 1 {
		t.Fatalf("card not linked to suggested competitor")
	}
	if f.cards.created[0].CompetitorIDs[0] != suggested.ID {
		t.Error("card linked to wrong competitor")
	}
}

func TestProcessRun_ExistingCompetitorNotResuggested(t *testing.T) {
	items := []models.Item{{ID: "item-1", SourceID: "src-1", Content: "text"}}
	chat := &fakeChat{responses: []string{
		`{"relevant": true, "title": "X", "suggested_new_competitor": "ACME"}`,
	}}
	f := newFixture(chat, items, nil)

	f.analyzer.ProcessRun(context.Background(), "run-1")

	if len(f.competitors.created) != 0 {
		t.Errorf("tracked competitor must not be re-created: %+v", f.competitors.created)
	}
	if len(f.cards.created) != 1 || f.cards.created[0].CompetitorIDs[0] != "comp-acme" {
		t.Error("suggestion should link to the existing competitor")
	}
}

func TestBuildItemPrompt_TruncatesContent(t *testing.T) {
	item := &models.Item{
		ID:      "item-1",
		Title:   "Huge post",
		Content: strings.Repeat("x", maxItemContentChars+5000),
	}
	prompt := BuildItemPrompt(item, nil, nil, nil)
	if len(prompt) > maxItemContentChars+2000 {
		t.Errorf("prompt not bounded: %d chars", len(prompt))
	}
}

func TestBuildItemPrompt_TweetSynthesis(t *testing.T) {
	published := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	item := &models.Item{
		ID:          "item-1",
		Author:      "@acmehq",
		Content:     "We just shipped dashboards",
		PublishedAt: &published,
		RawMetadata: map[string]interface{}{
			"public_metrics": map[string]interface{}{"like_count": 42},
		},
	}
	source := &models.Source{
		Type:    models.SourceTypeTwitter,
		Twitter: &models.TwitterConfig{Username: "acmehq"},
	}

	prompt := BuildItemPrompt(item, source, nil, nil)
	if !strings.Contains(prompt, "Tweet by @acmehq") {
		t.Errorf("synthesized tweet title missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "like_count=42") {
		t.Errorf("engagement metrics missing:\n%s", prompt)
	}
}

func TestBuildItemPrompt_IncludesProfiles(t *testing.T) {
	item := &models.Item{ID: "i", Title: "T", Content: "C"}
	self := &models.SelfProfile{Overview: "We sell widgets", Positioning: "Premium"}
	competitors := []models.Competitor{
		{Name: "Acme", Overview: "Acme makes gadgets. Founded 2015."},
	}

	prompt := BuildItemPrompt(item, nil, self, competitors)
	for _, want := range []string{"We sell widgets", "Premium", "Acme: Acme makes gadgets."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
