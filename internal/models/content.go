package models

import (
	"fmt"
	"strings"
	"time"
)

// ContentTemplate defines the shape of one generated document type, e.g. a
// battle card: ordered sections plus a document-name pattern where
// "{competitor}" is replaced with the competitor's name.
type ContentTemplate struct {
	ID             string            `json:"id"`
	ContentType    string            `json:"content_type"` // unique
	Name           string            `json:"name"`
	Sections       []TemplateSection `json:"sections"`
	DocNamePattern string            `json:"doc_name_pattern,omitempty"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TemplateSection is one ordered section of a content template.
type TemplateSection struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PromptHint  string `json:"prompt_hint,omitempty"`
}

// DocumentName renders the template's document-name pattern for a competitor.
func (t *ContentTemplate) DocumentName(competitorName string) string {
	if t.DocNamePattern == "" {
		return fmt.Sprintf("%s - %s", t.Name, competitorName)
	}
	return strings.ReplaceAll(t.DocNamePattern, "{competitor}", competitorName)
}

// ContentOutput is one generated document instance for a competitor and
// template. Later versions supersede earlier ones; rows are never rewritten
// on retry, a retry is a new row with the next version.
type ContentOutput struct {
	ID           string `json:"id"`
	CompetitorID string `json:"competitor_id"`
	TemplateID   string `json:"template_id"`
	ContentType  string `json:"content_type"`
	Version      int    `json:"version"`

	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`

	Status       ContentStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`

	SourceCardIDs []string `json:"source_card_ids,omitempty"`

	GoogleDocID  string     `json:"google_doc_id,omitempty"`
	GoogleDocURL string     `json:"google_doc_url,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`

	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContentStatus is the lifecycle of a generated document:
// generating -> draft | failed, then draft -> in_review -> approved ->
// published. failed is terminal; recovery is a new generation attempt.
type ContentStatus string

const (
	ContentStatusGenerating ContentStatus = "generating"
	ContentStatusDraft      ContentStatus = "draft"
	ContentStatusInReview   ContentStatus = "in_review"
	ContentStatusApproved   ContentStatus = "approved"
	ContentStatusPublished  ContentStatus = "published"
	ContentStatusFailed     ContentStatus = "failed"
)

// ValidContentStatus reports whether s is a known content status.
func ValidContentStatus(s ContentStatus) bool {
	switch s {
	case ContentStatusGenerating, ContentStatusDraft, ContentStatusInReview,
		ContentStatusApproved, ContentStatusPublished, ContentStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a content-status change is allowed.
func (s ContentStatus) CanTransition(next ContentStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case ContentStatusGenerating:
		return next == ContentStatusDraft || next == ContentStatusFailed
	case ContentStatusDraft:
		return next == ContentStatusInReview
	case ContentStatusInReview:
		return next == ContentStatusApproved
	case ContentStatusApproved:
		return next == ContentStatusPublished
	}
	return false
}

// CheckTransition returns a state-violation error describing why a
// content-status change is not allowed, or nil if it is.
func (s ContentStatus) CheckTransition(next ContentStatus) error {
	if !ValidContentStatus(next) {
		return &StateViolationError{Reason: fmt.Sprintf("unknown status %q", next)}
	}
	if !s.CanTransition(next) {
		return &StateViolationError{Reason: fmt.Sprintf("cannot move from %s to %s", s, next)}
	}
	return nil
}

// Editable reports whether the output's content fields may still be edited.
func (s ContentStatus) Editable() bool {
	return s == ContentStatusDraft || s == ContentStatusInReview
}

// RequiresAdmin reports whether entering this status needs admin privilege.
func (s ContentStatus) RequiresAdmin() bool {
	return s == ContentStatusApproved || s == ContentStatusPublished
}
