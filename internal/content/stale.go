package content

import (
	"context"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// StaleStatus classifies one competitor/content-type pair.
type StaleStatus string

const (
	StaleStatusMissing StaleStatus = "missing" // no approved or published output yet
	StaleStatusStale   StaleStatus = "stale"   // newer approved intelligence exists
)

// StaleEntry is one piece of content that needs attention.
type StaleEntry struct {
	CompetitorID   string      `json:"competitor_id"`
	CompetitorName string      `json:"competitor_name"`
	ContentType    string      `json:"content_type"`
	TemplateID     string      `json:"template_id"`
	Status         StaleStatus `json:"status"`
	OutputID       string      `json:"output_id,omitempty"`
	OutputVersion  int         `json:"output_version,omitempty"`
	NewCards       int         `json:"new_cards,omitempty"`
}

// StaleRepository is the output lookup side of stale detection.
type StaleRepository interface {
	ListTemplates(ctx context.Context, activeOnly bool) ([]models.ContentTemplate, error)
	LatestReadyOutput(ctx context.Context, competitorID, contentType string) (*models.ContentOutput, error)
}

// StaleCompetitorRepository lists the competitors to inspect.
type StaleCompetitorRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Competitor, error)
}

// StaleChecker finds content that is missing or superseded by newer
// approved intelligence.
type StaleChecker struct {
	outputs     StaleRepository
	competitors StaleCompetitorRepository
	cards       CardRepository
}

func NewStaleChecker(outputs StaleRepository, competitors StaleCompetitorRepository, cards CardRepository) *StaleChecker {
	return &StaleChecker{
		outputs:     outputs,
		competitors: competitors,
		cards:       cards,
	}
}

// Check walks every active competitor against every active template. A pair
// with no approved or published output is missing; a pair whose latest ready
// output predates newer approved cards is stale. Fresh pairs are omitted.
func (c *StaleChecker) Check(ctx context.Context) ([]StaleEntry, error) {
	templates, err := c.outputs.ListTemplates(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	competitors, err := c.competitors.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}

	var entries []StaleEntry
	for _, comp := range competitors {
		if comp.IsSuggested {
			continue
		}
		for _, tmpl := range templates {
			entry, err := c.checkPair(ctx, comp, tmpl)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				entries = append(entries, *entry)
			}
		}
	}
	return entries, nil
}

func (c *StaleChecker) checkPair(ctx context.Context, comp models.Competitor, tmpl models.ContentTemplate) (*StaleEntry, error) {
	latest, err := c.outputs.LatestReadyOutput(ctx, comp.ID, tmpl.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest output: %w", err)
	}

	if latest == nil {
		return &StaleEntry{
			CompetitorID:   comp.ID,
			CompetitorName: comp.Name,
			ContentType:    tmpl.ContentType,
			TemplateID:     tmpl.ID,
			Status:         StaleStatusMissing,
		}, nil
	}

	cutoff := latest.CreatedAt
	if latest.PublishedAt != nil && latest.PublishedAt.After(cutoff) {
		cutoff = *latest.PublishedAt
	}

	newer, err := c.cards.ListApprovedForCompetitor(ctx, comp.ID, cutoff, maxSourceCards)
	if err != nil {
		return nil, fmt.Errorf("failed to count newer cards: %w", err)
	}
	newer = cardsAfter(newer, cutoff)
	if len(newer) == 0 {
		return nil, nil
	}

	return &StaleEntry{
		CompetitorID:   comp.ID,
		CompetitorName: comp.Name,
		ContentType:    tmpl.ContentType,
		TemplateID:     tmpl.ID,
		Status:         StaleStatusStale,
		OutputID:       latest.ID,
		OutputVersion:  latest.Version,
		NewCards:       len(newer),
	}, nil
}

// cardsAfter drops cards at or before the cutoff; the repository filter is
// inclusive on its since bound.
func cardsAfter(cards []models.AnalysisCard, cutoff time.Time) []models.AnalysisCard {
	out := cards[:0]
	for _, card := range cards {
		if card.CreatedAt.After(cutoff) {
			out = append(out, card)
		}
	}
	return out
}
