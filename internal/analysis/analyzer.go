package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/llm"
	"github.com/augmenthq/compete/internal/models"
)

// ItemRepository is the item storage the analyzer needs.
type ItemRepository interface {
	ListUnprocessed(ctx context.Context, limit int) ([]models.Item, error)
	MarkProcessed(ctx context.Context, id string, relevant bool, reason string) error
}

// SourceRepository resolves an item's source for prompt context.
type SourceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Source, error)
}

// CardRepository persists generated cards.
type CardRepository interface {
	Create(ctx context.Context, card *models.AnalysisCard) error
}

// CompetitorRepository is the competitor storage the analyzer needs.
type CompetitorRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Competitor, error)
	GetByName(ctx context.Context, name string) (*models.Competitor, error)
	Create(ctx context.Context, c *models.Competitor) error
}

// SelfProfileRepository reads the operator's own profile.
type SelfProfileRepository interface {
	Get(ctx context.Context) (*models.SelfProfile, error)
}

// RunRepository records analysis completion on the owning check run.
type RunRepository interface {
	SetAnalysisComplete(ctx context.Context, id string, cardsGenerated int) error
}

// Config tunes the analyzer.
type Config struct {
	// BatchSize bounds how many items one run processes.
	BatchSize int

	// Metrics is optional; when set, each created card is counted.
	Metrics CardMetrics
}

// CardMetrics counts cards produced by analysis.
type CardMetrics interface {
	RecordCardCreated()
}

// Analyzer turns unprocessed items into analysis cards with one chat call
// per item.
type Analyzer struct {
	chat        llm.Client
	items       ItemRepository
	sources     SourceRepository
	cards       CardRepository
	competitors CompetitorRepository
	self        SelfProfileRepository
	runs        RunRepository
	logger      *slog.Logger
	config      Config
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(
	chat llm.Client,
	items ItemRepository,
	sources SourceRepository,
	cards CardRepository,
	competitors CompetitorRepository,
	self SelfProfileRepository,
	runs RunRepository,
	logger *slog.Logger,
	config Config,
) *Analyzer {
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	return &Analyzer{
		chat:        chat,
		items:       items,
		sources:     sources,
		cards:       cards,
		competitors: competitors,
		self:        self,
		runs:        runs,
		logger:      logger,
		config:      config,
	}
}

// ProcessRun analyzes everything left unprocessed after a check run and
// flips the run's analysis status when done. Model and transport failures
// leave the affected items unprocessed so a later run retries them.
func (a *Analyzer) ProcessRun(ctx context.Context, runID string) {
	cards, err := a.processBatch(ctx, runID)
	if err != nil {
		a.logger.Error("analysis batch failed", "run_id", runID, "error", err)
		return
	}
	if err := a.runs.SetAnalysisComplete(ctx, runID, cards); err != nil {
		a.logger.Error("failed to record analysis completion", "run_id", runID, "error", err)
	}
}

func (a *Analyzer) processBatch(ctx context.Context, runID string) (int, error) {
	items, err := a.items.ListUnprocessed(ctx, a.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	self, err := a.self.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load self profile: %w", err)
	}
	competitors, err := a.competitors.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list competitors: %w", err)
	}

	a.logger.Info("analyzing items", "run_id", runID, "count", len(items))

	cardsCreated := 0
	for i := range items {
		created, err := a.processItem(ctx, runID, &items[i], self, competitors)
		if err != nil {
			// Item stays unprocessed; log and move on.
			a.logger.Error("item analysis failed",
				"item_id", items[i].ID, "error", err)
			continue
		}
		if created {
			cardsCreated++
		}
	}

	a.logger.Info("analysis finished",
		"run_id", runID, "items", len(items), "cards", cardsCreated)
	return cardsCreated, nil
}

// processItem analyzes one item. Returns whether a card was created. An error
// return means the item was deliberately left unprocessed.
func (a *Analyzer) processItem(ctx context.Context, runID string, item *models.Item, self *models.SelfProfile, competitors []models.Competitor) (bool, error) {
	var source *models.Source
	if s, err := a.sources.GetByID(ctx, item.SourceID); err == nil {
		source = s
	}

	prompt := BuildItemPrompt(item, source, self, competitors)
	response, err := a.chat.Complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		return false, fmt.Errorf("chat completion failed: %w", err)
	}

	verdict, err := ParseItemAnalysis(response)
	if err != nil {
		// The model answered but not in a usable shape; retrying the same
		// content rarely helps, so the item is closed out.
		a.logger.Warn("unparseable analysis response",
			"item_id", item.ID, "error", err)
		if markErr := a.items.MarkProcessed(ctx, item.ID, false, "analysis response parse error"); markErr != nil {
			return false, fmt.Errorf("failed to mark item: %w", markErr)
		}
		return false, nil
	}

	if !verdict.Relevant {
		reason := verdict.Reason
		if reason == "" {
			reason = "not competitively relevant"
		}
		if err := a.items.MarkProcessed(ctx, item.ID, false, reason); err != nil {
			return false, fmt.Errorf("failed to mark item: %w", err)
		}
		return false, nil
	}

	card := a.buildCard(ctx, runID, item, source, verdict, response, competitors)
	if err := a.cards.Create(ctx, card); err != nil {
		return false, fmt.Errorf("failed to create card: %w", err)
	}
	if a.config.Metrics != nil {
		a.config.Metrics.RecordCardCreated()
	}
	if err := a.items.MarkProcessed(ctx, item.ID, true, ""); err != nil {
		return false, fmt.Errorf("failed to mark item: %w", err)
	}
	return true, nil
}

func (a *Analyzer) buildCard(ctx context.Context, runID string, item *models.Item, source *models.Source, verdict *ItemAnalysis, raw string, competitors []models.Competitor) *models.AnalysisCard {
	now := time.Now().UTC()
	card := &models.AnalysisCard{
		ID:                    uuid.NewString(),
		ItemID:                item.ID,
		CheckRunID:            runID,
		EventType:             models.NormalizeEventType(verdict.EventType),
		Priority:              models.NormalizePriority(verdict.Priority),
		Title:                 verdict.Title,
		Summary:               verdict.Summary,
		ImpactAssessment:      verdict.ImpactAssessment,
		SuggestedCounterMoves: verdict.SuggestedCounterMoves,
		RawLLMOutput:          raw,
		Status:                models.ReviewStatusDraft,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	card.CompetitorIDs = a.linkCompetitors(ctx, verdict, competitors)

	// The source's own competitor is always implicated.
	if source != nil && source.CompetitorID != "" && !contains(card.CompetitorIDs, source.CompetitorID) {
		card.CompetitorIDs = append(card.CompetitorIDs, source.CompetitorID)
	}
	return card
}

// linkCompetitors maps model-named competitors onto tracked ones by
// case-insensitive name and creates a suggested competitor when the model
// flags an untracked company.
func (a *Analyzer) linkCompetitors(ctx context.Context, verdict *ItemAnalysis, competitors []models.Competitor) []string {
	var ids []string
	for _, name := range verdict.Competitors {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if c := findByName(competitors, name); c != nil {
			if !contains(ids, c.ID) {
				ids = append(ids, c.ID)
			}
			continue
		}
		if c, err := a.competitors.GetByName(ctx, name); err == nil && c != nil {
			if !contains(ids, c.ID) {
				ids = append(ids, c.ID)
			}
		}
	}

	if suggested := strings.TrimSpace(verdict.SuggestedNewCompetitor); suggested != "" {
		if id := a.suggestCompetitor(ctx, suggested, verdict, competitors); id != "" && !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (a *Analyzer) suggestCompetitor(ctx context.Context, name string, verdict *ItemAnalysis, competitors []models.Competitor) string {
	if c := findByName(competitors, name); c != nil {
		return c.ID
	}
	if c, err := a.competitors.GetByName(ctx, name); err == nil && c != nil {
		return c.ID
	}

	now := time.Now().UTC()
	competitor := &models.Competitor{
		ID:              uuid.NewString(),
		Name:            name,
		IsSuggested:     true,
		SuggestedReason: fmt.Sprintf("Surfaced while analyzing: %s", verdict.Title),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.competitors.Create(ctx, competitor); err != nil {
		a.logger.Error("failed to create suggested competitor",
			"name", name, "error", err)
		return ""
	}
	a.logger.Info("suggested new competitor", "name", name)
	return competitor.ID
}

func findByName(competitors []models.Competitor, name string) *models.Competitor {
	for i := range competitors {
		if strings.EqualFold(competitors[i].Name, name) {
			return &competitors[i]
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
