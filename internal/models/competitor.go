package models

import (
	"time"
)

// Competitor is one tracked rival company with its editable profile fields.
// Competitors discovered by the analysis stage arrive with IsSuggested set
// and stay that way until a reviewer approves or rejects them.
type Competitor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`

	Overview     string `json:"overview,omitempty"`
	Products     string `json:"products,omitempty"`
	TargetMarket string `json:"target_market,omitempty"`
	Strengths    string `json:"strengths,omitempty"`
	Weaknesses   string `json:"weaknesses,omitempty"`
	Pricing      string `json:"pricing,omitempty"`
	RecentMoves  string `json:"recent_moves,omitempty"`
	Notes        string `json:"notes,omitempty"`

	IsSuggested     bool   `json:"is_suggested"`
	SuggestedReason string `json:"suggested_reason,omitempty"`
	IsActive        bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompetitorProfileFields lists the competitor fields that profile-update
// suggestions may target.
var CompetitorProfileFields = []string{
	"overview", "products", "target_market", "strengths",
	"weaknesses", "pricing", "recent_moves", "notes",
}

// SelfProfile is the operator's own company profile, a singleton used as
// context for analysis and content generation.
type SelfProfile struct {
	ID              string    `json:"id"`
	Overview        string    `json:"overview,omitempty"`
	Products        string    `json:"products,omitempty"`
	Positioning     string    `json:"positioning,omitempty"`
	Differentiators string    `json:"differentiators,omitempty"`
	TargetMarket    string    `json:"target_market,omitempty"`
	Roadmap         string    `json:"roadmap,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SelfProfileFields lists the self-profile fields that profile-update
// suggestions may target.
var SelfProfileFields = []string{
	"overview", "products", "positioning", "differentiators",
	"target_market", "roadmap",
}

// ValidProfileField reports whether field is a known profile field for the
// given suggestion target.
func ValidProfileField(target SuggestionTarget, field string) bool {
	fields := CompetitorProfileFields
	if target == SuggestionTargetSelf {
		fields = SelfProfileFields
	}
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
