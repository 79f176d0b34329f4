package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

type fakeRunRepo struct {
	mu        sync.Mutex
	created   *models.CheckRun
	completed *models.CheckRun
	briefings map[string][2]string
}

func (r *fakeRunRepo) Create(ctx context.Context, run *models.CheckRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.created = &cp
	return nil
}

func (r *fakeRunRepo) Complete(ctx context.Context, run *models.CheckRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.completed = &cp
	return nil
}

func (r *fakeRunRepo) SetBriefingResult(ctx context.Context, id, briefingID, briefingErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.briefings == nil {
		r.briefings = map[string][2]string{}
	}
	r.briefings[id] = [2]string{briefingID, briefingErr}
	return nil
}

type fakeRelevanceRepo struct {
	items    []models.Item
	rejected map[string]string
}

func (r *fakeRelevanceRepo) ListUnprocessed(ctx context.Context, limit int) ([]models.Item, error) {
	return r.items, nil
}

func (r *fakeRelevanceRepo) MarkProcessed(ctx context.Context, id string, relevant bool, reason string) error {
	if r.rejected == nil {
		r.rejected = map[string]string{}
	}
	if !relevant {
		r.rejected[id] = reason
	}
	return nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	runIDs []string
	done   chan struct{}
}

func (a *fakeAnalyzer) ProcessRun(ctx context.Context, runID string) {
	a.mu.Lock()
	a.runIDs = append(a.runIDs, runID)
	a.mu.Unlock()
	if a.done != nil {
		close(a.done)
	}
}

type fakeBriefingGen struct {
	briefing *models.Briefing
	err      error
}

func (g *fakeBriefingGen) Generate(ctx context.Context, date time.Time) (*models.Briefing, error) {
	return g.briefing, g.err
}

func newTestRunner(t *testing.T, fetchErr error) (*Runner, *fakeRunRepo, *fakeAnalyzer) {
	t.Helper()
	fetcher := &stubFetcher{
		sourceType: models.SourceTypeRSS,
		fetch: func(ctx context.Context, src *models.Source) (*FetchResult, error) {
			if fetchErr != nil {
				return nil, fetchErr
			}
			return &FetchResult{
				FetchedAt: time.Now(),
				Items:     []models.Item{{ID: "i1", SourceID: src.ID, GUID: "g1"}},
			}, nil
		},
	}
	sources := newFakeSourceRepo(rssSource("feed", "Feed"))
	coordinator := NewCoordinator([]Fetcher{fetcher}, sources, &fakeItemRepo{}, testLogger(), fastConfig())
	filter := NewRelevanceFilter(&fakeRelevanceRepo{}, 40, testLogger())

	runs := &fakeRunRepo{}
	analyzer := &fakeAnalyzer{done: make(chan struct{})}
	runner := NewRunner(coordinator, filter, runs, analyzer, &fakeBriefingGen{}, testLogger())
	return runner, runs, analyzer
}

func TestRun_CompletesDespiteSourceErrors(t *testing.T) {
	runner, runs, analyzer := newTestRunner(t, errors.New("feed unreachable"))

	run, err := runner.Run(context.Background(), time.Now(), false)
	if err != nil {
		t.Fatalf("source failures must not fail the run: %v", err)
	}
	if run.Status != models.CheckRunStatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if !strings.Contains(run.ErrorLog, "feed unreachable") {
		t.Errorf("error log missing fetch failure: %q", run.ErrorLog)
	}
	if run.FeedsChecked != 1 {
		t.Errorf("FeedsChecked = %d, want 1", run.FeedsChecked)
	}
	if runs.completed == nil || runs.completed.Status != models.CheckRunStatusCompleted {
		t.Error("completed run not persisted")
	}

	select {
	case <-analyzer.done:
	case <-time.After(time.Second):
		t.Fatal("analysis stage never started")
	}
	if analyzer.runIDs[0] != run.ID {
		t.Errorf("analyzer got run %s, want %s", analyzer.runIDs[0], run.ID)
	}
}

func TestRun_RecordsNewItems(t *testing.T) {
	runner, runs, _ := newTestRunner(t, nil)

	run, err := runner.Run(context.Background(), time.Now(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.NewItemsFound != 1 {
		t.Errorf("NewItemsFound = %d, want 1", run.NewItemsFound)
	}
	if run.ErrorLog != "" {
		t.Errorf("unexpected error log: %q", run.ErrorLog)
	}
	if runs.created == nil || runs.created.Status != models.CheckRunStatusRunning {
		t.Error("run not created in running state")
	}
	if run.AnalysisStatus != models.AnalysisStatusPending {
		t.Errorf("analysis status = %s, want pending at completion", run.AnalysisStatus)
	}
}

func TestRun_BriefingOutcomeRecorded(t *testing.T) {
	tests := []struct {
		name     string
		gen      *fakeBriefingGen
		wantID   string
		wantErr  string
		recorded bool
	}{
		{
			name:     "briefing created",
			gen:      &fakeBriefingGen{briefing: &models.Briefing{ID: "brief-1"}},
			wantID:   "brief-1",
			recorded: true,
		},
		{
			name:     "briefing failed",
			gen:      &fakeBriefingGen{err: errors.New("model unavailable")},
			wantErr:  "model unavailable",
			recorded: true,
		},
		{
			name:     "nothing to brief",
			gen:      &fakeBriefingGen{},
			recorded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, runs, _ := newTestRunner(t, nil)
			runner.briefings = tt.gen

			run, err := runner.Run(context.Background(), time.Now(), true)
			if err != nil {
				t.Fatalf("briefing outcome must not fail the run: %v", err)
			}
			if run.Status != models.CheckRunStatusCompleted {
				t.Errorf("status = %s, want completed", run.Status)
			}
			if run.BriefingID != tt.wantID {
				t.Errorf("BriefingID = %q, want %q", run.BriefingID, tt.wantID)
			}
			if tt.wantErr != "" && !strings.Contains(run.BriefingError, tt.wantErr) {
				t.Errorf("BriefingError = %q, want %q", run.BriefingError, tt.wantErr)
			}

			_, ok := runs.briefings[run.ID]
			if ok != tt.recorded {
				t.Errorf("briefing result recorded = %v, want %v", ok, tt.recorded)
			}
		})
	}
}

func TestRelevanceFilter_RejectsThinItems(t *testing.T) {
	repo := &fakeRelevanceRepo{items: []models.Item{
		{ID: "empty"},
		{ID: "short", Content: "hi"},
		{ID: "linked", Title: "Launching Widgets 2.0", URL: "https://acme.example.com/blog/widgets-2"},
		{ID: "full", Title: "Launch", Content: strings.Repeat("announcement text ", 10)},
	}}

	filter := NewRelevanceFilter(repo, 40, testLogger())
	rejected, err := filter.Sweep(context.Background(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected != 2 {
		t.Errorf("rejected = %d, want 2", rejected)
	}
	if _, ok := repo.rejected["empty"]; !ok {
		t.Error("empty item not rejected")
	}
	if _, ok := repo.rejected["short"]; !ok {
		t.Error("short item not rejected")
	}
	if _, ok := repo.rejected["linked"]; ok {
		t.Error("link-only item with a title must survive for analysis")
	}
	if _, ok := repo.rejected["full"]; ok {
		t.Error("substantial item must survive")
	}
}
