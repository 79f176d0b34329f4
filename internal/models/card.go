package models

import (
	"fmt"
	"time"
)

// AnalysisCard is a single classified competitive-intelligence finding,
// normally derived from one ingested item.
type AnalysisCard struct {
	ID         string `json:"id"`
	ItemID     string `json:"item_id,omitempty"`
	CheckRunID string `json:"check_run_id,omitempty"`

	EventType EventType `json:"event_type"`
	Priority  Priority  `json:"priority"`

	Title                 string `json:"title"`
	Summary               string `json:"summary"`
	ImpactAssessment      string `json:"impact_assessment,omitempty"`
	SuggestedCounterMoves string `json:"suggested_counter_moves,omitempty"`

	// RawLLMOutput preserves the unmodified model response for audit.
	RawLLMOutput string `json:"raw_llm_output,omitempty"`

	Status     ReviewStatus `json:"status"`
	ApprovedBy string       `json:"approved_by,omitempty"`
	ApprovedAt *time.Time   `json:"approved_at,omitempty"`

	CompetitorIDs []string `json:"competitor_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardEdit is one entry in a card's append-only edit log.
type CardEdit struct {
	ID            string    `json:"id"`
	CardID        string    `json:"card_id"`
	FieldChanged  string    `json:"field_changed"`
	PreviousValue string    `json:"previous_value"`
	NewValue      string    `json:"new_value"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventType is the closed classification of what a card describes.
type EventType string

const (
	EventTypeNewFeature          EventType = "new_feature"
	EventTypeProductAnnouncement EventType = "product_announcement"
	EventTypePartnership         EventType = "partnership"
	EventTypeAcquisition         EventType = "acquisition"
	EventTypeFunding             EventType = "funding"
	EventTypePricingChange       EventType = "pricing_change"
	EventTypeLeadershipChange    EventType = "leadership_change"
	EventTypeExpansion           EventType = "expansion"
	EventTypeOther               EventType = "other"
)

// NormalizeEventType maps a raw model-supplied value onto the closed enum,
// falling back to "other" for anything unrecognized.
func NormalizeEventType(raw string) EventType {
	switch EventType(raw) {
	case EventTypeNewFeature, EventTypeProductAnnouncement, EventTypePartnership,
		EventTypeAcquisition, EventTypeFunding, EventTypePricingChange,
		EventTypeLeadershipChange, EventTypeExpansion, EventTypeOther:
		return EventType(raw)
	case "acquired":
		return EventTypeAcquisition
	}
	return EventTypeOther
}

// Priority ranks how urgently a finding needs attention.
type Priority string

const (
	PriorityRed    Priority = "red"
	PriorityYellow Priority = "yellow"
	PriorityGreen  Priority = "green"
)

// NormalizePriority maps a raw model-supplied value onto the priority enum,
// falling back to "green".
func NormalizePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityRed, PriorityYellow, PriorityGreen:
		return Priority(raw)
	}
	return PriorityGreen
}

// ReviewStatus is the shared approval lifecycle of cards and briefings:
// draft -> in_review -> approved, with archived reachable from any
// non-archived state. Skipping review is not allowed.
type ReviewStatus string

const (
	ReviewStatusDraft    ReviewStatus = "draft"
	ReviewStatusInReview ReviewStatus = "in_review"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusArchived ReviewStatus = "archived"
)

// ValidReviewStatus reports whether s is a known review status.
func ValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewStatusDraft, ReviewStatusInReview, ReviewStatusApproved, ReviewStatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a review-status change is allowed.
func (s ReviewStatus) CanTransition(next ReviewStatus) bool {
	if s == next {
		return false
	}
	if next == ReviewStatusArchived {
		return s != ReviewStatusArchived
	}
	switch s {
	case ReviewStatusDraft:
		return next == ReviewStatusInReview
	case ReviewStatusInReview:
		return next == ReviewStatusApproved
	}
	return false
}

// CheckTransition returns a state-violation error describing why a
// review-status change is not allowed, or nil if it is.
func (s ReviewStatus) CheckTransition(next ReviewStatus) error {
	if !ValidReviewStatus(next) {
		return &StateViolationError{Reason: fmt.Sprintf("unknown status %q", next)}
	}
	if !s.CanTransition(next) {
		return &StateViolationError{Reason: fmt.Sprintf("cannot move from %s to %s", s, next)}
	}
	return nil
}

// Editable reports whether card content may still be edited in this status.
// Cards stay editable until archived.
func (s ReviewStatus) Editable() bool {
	return s != ReviewStatusArchived
}

// RequiresAdmin reports whether entering this status needs admin privilege.
func (s ReviewStatus) RequiresAdmin() bool {
	return s == ReviewStatusApproved
}

// StateViolationError reports an attempted transition outside the allowed
// set, or an edit attempted on a non-editable entity. The reason is specific
// enough for an API caller to surface directly.
type StateViolationError struct {
	Reason string
}

func (e *StateViolationError) Error() string {
	return e.Reason
}
