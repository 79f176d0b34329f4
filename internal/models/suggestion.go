package models

import (
	"time"
)

// ProfileUpdateSuggestion proposes a change to one field of a competitor
// profile or the self profile. Suggestions never mutate a profile directly;
// approving one applies the value, rejecting discards it, and either way the
// row is terminal afterwards.
type ProfileUpdateSuggestion struct {
	ID           string           `json:"id"`
	Target       SuggestionTarget `json:"target"`
	CompetitorID string           `json:"competitor_id,omitempty"` // set when Target == competitor

	FieldName      string `json:"field_name"`
	CurrentValue   string `json:"current_value,omitempty"`
	SuggestedValue string `json:"suggested_value"`
	Rationale      string `json:"rationale,omitempty"`

	SourceCardIDs []string `json:"source_card_ids,omitempty"`

	Status     SuggestionStatus `json:"status"`
	ReviewedBy string           `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time       `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SuggestionTarget identifies which kind of profile a suggestion edits.
type SuggestionTarget string

const (
	SuggestionTargetCompetitor SuggestionTarget = "competitor"
	SuggestionTargetSelf       SuggestionTarget = "self"
)

// SuggestionStatus is the lifecycle of a suggestion.
type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusApproved SuggestionStatus = "approved"
	SuggestionStatusRejected SuggestionStatus = "rejected"
)
