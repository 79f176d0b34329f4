package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/llm"
	"github.com/augmenthq/compete/internal/models"
)

const systemPrompt = `You are a competitive intelligence writer producing sales enablement content.
You will be given a document template (ordered sections), our company profile,
a competitor profile, and recent approved intelligence about that competitor.
Respond with a JSON object whose keys are the exact section titles and whose
values are the markdown body for each section. Write every section. Be
specific and factual; draw only on the material provided.`

// maxSourceCards bounds how much card history feeds one document.
const maxSourceCards = 50

// Repository is the persistence surface the generator needs.
type Repository interface {
	GetTemplate(ctx context.Context, id string) (*models.ContentTemplate, error)
	CreateOutput(ctx context.Context, output *models.ContentOutput) error
	FinishGeneration(ctx context.Context, id string, output *models.ContentOutput) error
	GetOutput(ctx context.Context, id string) (*models.ContentOutput, error)
}

// CompetitorRepository provides competitor lookups.
type CompetitorRepository interface {
	GetByID(ctx context.Context, id string) (*models.Competitor, error)
}

// CardRepository provides the approved cards backing a document.
type CardRepository interface {
	ListApprovedForCompetitor(ctx context.Context, competitorID string, since time.Time, limit int) ([]models.AnalysisCard, error)
}

// SelfProfileRepository provides the company's own profile.
type SelfProfileRepository interface {
	Get(ctx context.Context) (*models.SelfProfile, error)
}

// Generator creates versioned content outputs. StartGeneration inserts the
// row synchronously and the document itself is produced in the background.
type Generator struct {
	chat        llm.Client
	outputs     Repository
	competitors CompetitorRepository
	cards       CardRepository
	self        SelfProfileRepository
	logger      *slog.Logger
}

func NewGenerator(chat llm.Client, outputs Repository, competitors CompetitorRepository, cards CardRepository, self SelfProfileRepository, logger *slog.Logger) *Generator {
	return &Generator{
		chat:        chat,
		outputs:     outputs,
		competitors: competitors,
		cards:       cards,
		self:        self,
		logger:      logger,
	}
}

// StartGeneration allocates a new generating output (next version for the
// competitor/template pair) and returns it. Generation itself runs in a
// goroutine; callers poll the output's status. A failed attempt is never
// reused, retrying allocates a fresh row.
func (g *Generator) StartGeneration(ctx context.Context, competitorID, templateID, userID string) (*models.ContentOutput, error) {
	competitor, err := g.competitors.GetByID(ctx, competitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load competitor: %w", err)
	}

	tmpl, err := g.outputs.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if !tmpl.IsActive {
		return nil, &models.StateViolationError{Reason: "template is not active"}
	}

	output := &models.ContentOutput{
		ID:           uuid.NewString(),
		CompetitorID: competitor.ID,
		TemplateID:   tmpl.ID,
		ContentType:  tmpl.ContentType,
		Status:       models.ContentStatusGenerating,
		CreatedBy:    userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := g.outputs.CreateOutput(ctx, output); err != nil {
		return nil, fmt.Errorf("failed to create content output: %w", err)
	}

	go g.generate(context.WithoutCancel(ctx), output.ID, competitor, tmpl)

	return output, nil
}

// generate runs the single LLM call and records the outcome on the row.
func (g *Generator) generate(ctx context.Context, outputID string, competitor *models.Competitor, tmpl *models.ContentTemplate) {
	result := &models.ContentOutput{
		Title:  tmpl.DocumentName(competitor.Name),
		Status: models.ContentStatusDraft,
	}

	body, cardIDs, err := g.compose(ctx, competitor, tmpl)
	if err != nil {
		g.logger.Error("content generation failed",
			"output_id", outputID,
			"competitor_id", competitor.ID,
			"error", err)
		result.Status = models.ContentStatusFailed
		result.ErrorMessage = err.Error()
	} else {
		result.Content = body
		result.SourceCardIDs = cardIDs
	}

	if err := g.outputs.FinishGeneration(ctx, outputID, result); err != nil {
		g.logger.Error("failed to record generation outcome", "output_id", outputID, "error", err)
		return
	}

	g.logger.Info("content generation finished",
		"output_id", outputID,
		"competitor_id", competitor.ID,
		"content_type", tmpl.ContentType,
		"status", result.Status)
}

func (g *Generator) compose(ctx context.Context, competitor *models.Competitor, tmpl *models.ContentTemplate) (string, []string, error) {
	self, err := g.self.Get(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load self profile: %w", err)
	}

	cards, err := g.cards.ListApprovedForCompetitor(ctx, competitor.ID, time.Time{}, maxSourceCards)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load approved cards: %w", err)
	}

	prompt := buildPrompt(competitor, tmpl, self, cards)

	raw, err := g.chat.Complete(ctx, systemPrompt, prompt, true)
	if err != nil {
		return "", nil, fmt.Errorf("model call failed: %w", err)
	}

	sections, err := parseSections(raw)
	if err != nil {
		return "", nil, err
	}

	body := assembleDocument(tmpl, sections)

	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return body, ids, nil
}

func buildPrompt(competitor *models.Competitor, tmpl *models.ContentTemplate, self *models.SelfProfile, cards []models.AnalysisCard) string {
	var b strings.Builder

	b.WriteString("## Document sections\n")
	for i, s := range tmpl.Sections {
		fmt.Fprintf(&b, "%d. %s", i+1, s.Title)
		if s.Description != "" {
			b.WriteString(" - " + s.Description)
		}
		b.WriteString("\n")
		if s.PromptHint != "" {
			b.WriteString("   Guidance: " + s.PromptHint + "\n")
		}
	}

	b.WriteString("\n## Our company\n")
	if self != nil {
		writeLine(&b, "Overview", self.Overview)
		writeLine(&b, "Products", self.Products)
		writeLine(&b, "Positioning", self.Positioning)
		writeLine(&b, "Differentiators", self.Differentiators)
		writeLine(&b, "Target market", self.TargetMarket)
	} else {
		b.WriteString("(no profile on file)\n")
	}

	b.WriteString("\n## Competitor: " + competitor.Name + "\n")
	writeLine(&b, "Website", competitor.Website)
	writeLine(&b, "Overview", competitor.Overview)
	writeLine(&b, "Products", competitor.Products)
	writeLine(&b, "Target market", competitor.TargetMarket)
	writeLine(&b, "Strengths", competitor.Strengths)
	writeLine(&b, "Weaknesses", competitor.Weaknesses)
	writeLine(&b, "Pricing", competitor.Pricing)
	writeLine(&b, "Recent moves", competitor.RecentMoves)

	b.WriteString("\n## Recent intelligence (newest first)\n")
	if len(cards) == 0 {
		b.WriteString("(no approved intelligence yet)\n")
	}
	for _, c := range cards {
		fmt.Fprintf(&b, "### %s [%s, %s]\n", c.Title, c.EventType, c.Priority)
		b.WriteString(c.Summary + "\n")
		if c.ImpactAssessment != "" {
			b.WriteString("Impact: " + c.ImpactAssessment + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// parseSections decodes the model's JSON object of section title -> body.
func parseSections(raw string) (map[string]string, error) {
	trimmed := strings.TrimSpace(raw)
	if i := strings.Index(trimmed, "{"); i > 0 {
		trimmed = trimmed[i:]
	}
	if i := strings.LastIndex(trimmed, "}"); i >= 0 {
		trimmed = trimmed[:i+1]
	}

	var sections map[string]string
	if err := json.Unmarshal([]byte(trimmed), &sections); err != nil {
		return nil, fmt.Errorf("model returned unparseable document: %w", err)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("model returned an empty document")
	}
	return sections, nil
}

// assembleDocument renders sections in template order, then appends any
// extra sections the model volunteered, alphabetically, so nothing written
// is silently dropped.
func assembleDocument(tmpl *models.ContentTemplate, sections map[string]string) string {
	var b strings.Builder
	used := make(map[string]bool, len(sections))

	for _, s := range tmpl.Sections {
		body, ok := sections[s.Title]
		if !ok || strings.TrimSpace(body) == "" {
			continue
		}
		used[s.Title] = true
		b.WriteString("## " + s.Title + "\n\n")
		b.WriteString(strings.TrimSpace(body) + "\n\n")
	}

	var extras []string
	for title := range sections {
		if !used[title] && strings.TrimSpace(sections[title]) != "" {
			extras = append(extras, title)
		}
	}
	sort.Strings(extras)
	for _, title := range extras {
		b.WriteString("## " + title + "\n\n")
		b.WriteString(strings.TrimSpace(sections[title]) + "\n\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func writeLine(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(label + ": " + value + "\n")
}
