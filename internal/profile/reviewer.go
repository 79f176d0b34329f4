package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/augmenthq/compete/internal/llm"
	"github.com/augmenthq/compete/internal/models"
)

const competitorSystemPrompt = `You maintain competitor profiles for a competitive intelligence team.
Given a competitor's current profile and recently approved intelligence about
them, propose updates to profile fields that the new intelligence supports.
Only propose a change when the evidence clearly warrants it; an empty list is
a fine answer. Respond with JSON:
{"suggestions": [{"field": "<field name>", "suggested_value": "<full replacement text>", "rationale": "<one sentence>", "source_card_ids": ["<id>", ...]}]}
Valid fields: overview, products, target_market, strengths, weaknesses, pricing, recent_moves, notes.`

const selfSystemPrompt = `You maintain a company's own positioning profile.
Given the current profile and recently approved competitive intelligence,
propose updates to fields where the competitive landscape has shifted enough
to matter. Only propose a change when the evidence clearly warrants it; an
empty list is a fine answer. Respond with JSON:
{"suggestions": [{"field": "<field name>", "suggested_value": "<full replacement text>", "rationale": "<one sentence>", "source_card_ids": ["<id>", ...]}]}
Valid fields: overview, products, positioning, differentiators, target_market, roadmap.`

// CompetitorRepository is the competitor surface the reviewer needs.
type CompetitorRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Competitor, error)
	GetByID(ctx context.Context, id string) (*models.Competitor, error)
	UpdateProfileField(ctx context.Context, id, field, value string) error
}

// CardRepository supplies the approved cards driving a review.
type CardRepository interface {
	ListApprovedForCompetitor(ctx context.Context, competitorID string, since time.Time, limit int) ([]models.AnalysisCard, error)
	FilterExisting(ctx context.Context, ids []string) ([]string, error)
}

// SelfProfileRepository is the self-profile surface the reviewer needs.
type SelfProfileRepository interface {
	Get(ctx context.Context) (*models.SelfProfile, error)
	UpdateField(ctx context.Context, field, value string) error
}

// SuggestionRepository stores and resolves suggestions.
type SuggestionRepository interface {
	Create(ctx context.Context, s *models.ProfileUpdateSuggestion) error
	GetByID(ctx context.Context, id string) (*models.ProfileUpdateSuggestion, error)
	MarkReviewed(ctx context.Context, id string, status models.SuggestionStatus, userID string, at time.Time) error
}

// Config tunes the review windows.
type Config struct {
	CompetitorWindow    time.Duration // how far back competitor cards reach
	CompetitorCardLimit int
	SelfCardLimit       int
}

func DefaultConfig() Config {
	return Config{
		CompetitorWindow:    7 * 24 * time.Hour,
		CompetitorCardLimit: 20,
		SelfCardLimit:       30,
	}
}

// Reviewer proposes profile edits from approved intelligence. Edits are
// never applied directly; they become pending suggestions that a human
// approves or rejects.
type Reviewer struct {
	chat        llm.Client
	competitors CompetitorRepository
	cards       CardRepository
	self        SelfProfileRepository
	suggestions SuggestionRepository
	logger      *slog.Logger
	config      Config
}

func NewReviewer(chat llm.Client, competitors CompetitorRepository, cards CardRepository, self SelfProfileRepository, suggestions SuggestionRepository, logger *slog.Logger, config Config) *Reviewer {
	if config.CompetitorWindow <= 0 {
		config.CompetitorWindow = DefaultConfig().CompetitorWindow
	}
	if config.CompetitorCardLimit <= 0 {
		config.CompetitorCardLimit = DefaultConfig().CompetitorCardLimit
	}
	if config.SelfCardLimit <= 0 {
		config.SelfCardLimit = DefaultConfig().SelfCardLimit
	}
	return &Reviewer{
		chat:        chat,
		competitors: competitors,
		cards:       cards,
		self:        self,
		suggestions: suggestions,
		logger:      logger,
		config:      config,
	}
}

// ReviewAll runs a review pass over every active competitor with recent
// approved intelligence, then over the self profile. A failure on one target
// is logged and the pass continues; the returned count is suggestions
// created.
func (r *Reviewer) ReviewAll(ctx context.Context) (int, error) {
	competitors, err := r.competitors.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list competitors: %w", err)
	}

	created := 0
	for i := range competitors {
		comp := &competitors[i]
		if comp.IsSuggested {
			continue
		}
		n, err := r.reviewCompetitor(ctx, comp)
		if err != nil {
			r.logger.Error("competitor profile review failed",
				"competitor_id", comp.ID,
				"competitor", comp.Name,
				"error", err)
			continue
		}
		created += n
	}

	n, err := r.reviewSelf(ctx)
	if err != nil {
		r.logger.Error("self profile review failed", "error", err)
	}
	created += n

	r.logger.Info("profile review pass finished", "suggestions_created", created)
	return created, nil
}

func (r *Reviewer) reviewCompetitor(ctx context.Context, comp *models.Competitor) (int, error) {
	since := time.Now().UTC().Add(-r.config.CompetitorWindow)
	cards, err := r.cards.ListApprovedForCompetitor(ctx, comp.ID, since, r.config.CompetitorCardLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load approved cards: %w", err)
	}
	if len(cards) == 0 {
		return 0, nil
	}

	prompt := buildCompetitorPrompt(comp, cards)
	raw, err := r.chat.Complete(ctx, competitorSystemPrompt, prompt, true)
	if err != nil {
		return 0, fmt.Errorf("model call failed: %w", err)
	}

	proposals, err := parseSuggestions(raw)
	if err != nil {
		return 0, err
	}

	return r.store(ctx, proposals, models.SuggestionTargetCompetitor, comp.ID,
		func(field string) string { return competitorFieldValue(comp, field) }, cards)
}

func (r *Reviewer) reviewSelf(ctx context.Context) (int, error) {
	self, err := r.self.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load self profile: %w", err)
	}
	if self == nil {
		self = &models.SelfProfile{}
	}

	cards, err := r.cards.ListApprovedForCompetitor(ctx, "", time.Time{}, r.config.SelfCardLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load approved cards: %w", err)
	}
	if len(cards) == 0 {
		return 0, nil
	}

	prompt := buildSelfPrompt(self, cards)
	raw, err := r.chat.Complete(ctx, selfSystemPrompt, prompt, true)
	if err != nil {
		return 0, fmt.Errorf("model call failed: %w", err)
	}

	proposals, err := parseSuggestions(raw)
	if err != nil {
		return 0, err
	}

	return r.store(ctx, proposals, models.SuggestionTargetSelf, "",
		func(field string) string { return selfFieldValue(self, field) }, cards)
}

func (r *Reviewer) store(ctx context.Context, proposals []proposedEdit, target models.SuggestionTarget, competitorID string, currentValue func(string) string, cards []models.AnalysisCard) (int, error) {
	created := 0
	for _, p := range proposals {
		field := strings.ToLower(strings.TrimSpace(p.Field))
		value := strings.TrimSpace(p.SuggestedValue)
		if value == "" || !models.ValidProfileField(target, field) {
			r.logger.Warn("dropping invalid profile suggestion", "target", target, "field", p.Field)
			continue
		}
		current := currentValue(field)
		if value == current {
			continue
		}

		sourceIDs, err := r.cards.FilterExisting(ctx, p.SourceCardIDs)
		if err != nil {
			return created, fmt.Errorf("failed to verify source cards: %w", err)
		}
		if len(sourceIDs) == 0 {
			for _, c := range cards {
				sourceIDs = append(sourceIDs, c.ID)
			}
		}

		suggestion := &models.ProfileUpdateSuggestion{
			ID:             uuid.NewString(),
			Target:         target,
			CompetitorID:   competitorID,
			FieldName:      field,
			CurrentValue:   current,
			SuggestedValue: value,
			Rationale:      strings.TrimSpace(p.Rationale),
			SourceCardIDs:  sourceIDs,
			Status:         models.SuggestionStatusPending,
			CreatedAt:      time.Now().UTC(),
		}
		if err := r.suggestions.Create(ctx, suggestion); err != nil {
			return created, fmt.Errorf("failed to store suggestion: %w", err)
		}
		created++
	}
	return created, nil
}

// Approve applies a pending suggestion's value to its target profile field
// and marks it approved.
func (r *Reviewer) Approve(ctx context.Context, id, userID string) (*models.ProfileUpdateSuggestion, error) {
	s, err := r.suggestions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SuggestionStatusPending {
		return nil, &models.StateViolationError{
			Reason: fmt.Sprintf("suggestion already %s", s.Status),
		}
	}

	if s.Target == models.SuggestionTargetSelf {
		err = r.self.UpdateField(ctx, s.FieldName, s.SuggestedValue)
	} else {
		err = r.competitors.UpdateProfileField(ctx, s.CompetitorID, s.FieldName, s.SuggestedValue)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply suggestion: %w", err)
	}

	now := time.Now().UTC()
	if err := r.suggestions.MarkReviewed(ctx, id, models.SuggestionStatusApproved, userID, now); err != nil {
		return nil, err
	}

	s.Status = models.SuggestionStatusApproved
	s.ReviewedBy = userID
	s.ReviewedAt = &now
	return s, nil
}

// Reject discards a pending suggestion without touching the profile.
func (r *Reviewer) Reject(ctx context.Context, id, userID string) (*models.ProfileUpdateSuggestion, error) {
	s, err := r.suggestions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SuggestionStatusPending {
		return nil, &models.StateViolationError{
			Reason: fmt.Sprintf("suggestion already %s", s.Status),
		}
	}

	now := time.Now().UTC()
	if err := r.suggestions.MarkReviewed(ctx, id, models.SuggestionStatusRejected, userID, now); err != nil {
		return nil, err
	}

	s.Status = models.SuggestionStatusRejected
	s.ReviewedBy = userID
	s.ReviewedAt = &now
	return s, nil
}

type proposedEdit struct {
	Field          string   `json:"field"`
	SuggestedValue string   `json:"suggested_value"`
	Rationale      string   `json:"rationale"`
	SourceCardIDs  []string `json:"source_card_ids"`
}

func parseSuggestions(raw string) ([]proposedEdit, error) {
	trimmed := strings.TrimSpace(raw)
	if i := strings.Index(trimmed, "{"); i > 0 {
		trimmed = trimmed[i:]
	}
	if i := strings.LastIndex(trimmed, "}"); i >= 0 {
		trimmed = trimmed[:i+1]
	}

	var payload struct {
		Suggestions []proposedEdit `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("model returned unparseable suggestions: %w", err)
	}
	return payload.Suggestions, nil
}

func buildCompetitorPrompt(comp *models.Competitor, cards []models.AnalysisCard) string {
	var b strings.Builder

	b.WriteString("## Current profile: " + comp.Name + "\n")
	for _, field := range models.CompetitorProfileFields {
		writeField(&b, field, competitorFieldValue(comp, field))
	}

	writeCards(&b, cards)
	return b.String()
}

func buildSelfPrompt(self *models.SelfProfile, cards []models.AnalysisCard) string {
	var b strings.Builder

	b.WriteString("## Current profile (our company)\n")
	for _, field := range models.SelfProfileFields {
		writeField(&b, field, selfFieldValue(self, field))
	}

	writeCards(&b, cards)
	return b.String()
}

func writeField(b *strings.Builder, field, value string) {
	if value == "" {
		value = "(empty)"
	}
	b.WriteString(field + ": " + value + "\n")
}

func writeCards(b *strings.Builder, cards []models.AnalysisCard) {
	b.WriteString("\n## Approved intelligence (newest first)\n")
	for _, c := range cards {
		fmt.Fprintf(b, "### %s [id=%s, %s, %s]\n", c.Title, c.ID, c.EventType, c.Priority)
		b.WriteString(c.Summary + "\n")
		if c.ImpactAssessment != "" {
			b.WriteString("Impact: " + c.ImpactAssessment + "\n")
		}
		b.WriteString("\n")
	}
}

func competitorFieldValue(c *models.Competitor, field string) string {
	switch field {
	case "overview":
		return c.Overview
	case "products":
		return c.Products
	case "target_market":
		return c.TargetMarket
	case "strengths":
		return c.Strengths
	case "weaknesses":
		return c.Weaknesses
	case "pricing":
		return c.Pricing
	case "recent_moves":
		return c.RecentMoves
	case "notes":
		return c.Notes
	}
	return ""
}

func selfFieldValue(p *models.SelfProfile, field string) string {
	switch field {
	case "overview":
		return p.Overview
	case "products":
		return p.Products
	case "positioning":
		return p.Positioning
	case "differentiators":
		return p.Differentiators
	case "target_market":
		return p.TargetMarket
	case "roadmap":
		return p.Roadmap
	}
	return ""
}
