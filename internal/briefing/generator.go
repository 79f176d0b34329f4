package briefing

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

// Repository is the briefing storage the generator needs.
type Repository interface {
	GetByDate(ctx context.Context, date time.Time) (*models.Briefing, error)
	UpsertForDate(ctx context.Context, briefing *models.Briefing) error
}

// CardRepository supplies the cards a briefing summarizes.
type CardRepository interface {
	ListCreatedSince(ctx context.Context, since time.Time) ([]models.AnalysisCard, error)
}

const systemPrompt = `You are writing the daily competitive intelligence
briefing for a product team. You receive today's analysis cards. Produce a
concise briefing in markdown: a one-paragraph executive summary, then
findings grouped by priority (red first). Mention every red card. Be factual;
do not invent details that are not in the cards.`

// Generator produces the daily briefing document.
type Generator struct {
	chat      llm.Client
	briefings Repository
	cards     CardRepository
	logger    *slog.Logger

	// Window is how far back to collect cards. Zero means 24 hours.
	Window time.Duration
}

// NewGenerator creates a briefing generator.
func NewGenerator(chat llm.Client, briefings Repository, cards CardRepository, logger *slog.Logger) *Generator {
	return &Generator{
		chat:      chat,
		briefings: briefings,
		cards:     cards,
		logger:    logger,
	}
}

// Generate returns the briefing for the given date, creating it when absent.
// An already-existing briefing is returned untouched. Nil with nil error
// means there were no cards to brief on.
func (g *Generator) Generate(ctx context.Context, at time.Time) (*models.Briefing, error) {
	date := models.BriefingDate(at)

	existing, err := g.briefings.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing briefing: %w", err)
	}
	if existing != nil {
		g.logger.Info("briefing already exists", "date", date.Format("2006-01-02"))
		return existing, nil
	}

	window := g.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	cards, err := g.cards.ListCreatedSince(ctx, at.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to collect cards: %w", err)
	}
	if len(cards) == 0 {
		g.logger.Info("no cards in window, skipping briefing", "date", date.Format("2006-01-02"))
		return nil, nil
	}

	content, err := g.chat.Complete(ctx, systemPrompt, buildPrompt(date, cards), false)
	if err != nil {
		return nil, fmt.Errorf("briefing generation failed: %w", err)
	}

	now := time.Now().UTC()
	briefing := &models.Briefing{
		ID:        uuid.NewString(),
		Date:      date,
		Content:   content,
		Status:    models.ReviewStatusDraft,
		CardIDs:   cardIDs(cards),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.briefings.UpsertForDate(ctx, briefing); err != nil {
		return nil, fmt.Errorf("failed to store briefing: %w", err)
	}

	g.logger.Info("briefing generated",
		"date", date.Format("2006-01-02"), "cards", len(cards))
	return briefing, nil
}

func buildPrompt(date time.Time, cards []models.AnalysisCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Briefing date: %s\n\n## Cards\n", date.Format("2006-01-02"))
	for _, card := range cards {
		fmt.Fprintf(&b, "\n### [%s] %s (%s)\n", strings.ToUpper(string(card.Priority)), card.Title, card.EventType)
		if card.Summary != "" {
			b.WriteString(card.Summary + "\n")
		}
		if card.ImpactAssessment != "" {
			b.WriteString("Impact: " + card.ImpactAssessment + "\n")
		}
	}
	return b.String()
}

func cardIDs(cards []models.AnalysisCard) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}
