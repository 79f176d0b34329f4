package models

import (
	"errors"
	"testing"
)

func TestReviewStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ReviewStatus
		to      ReviewStatus
		allowed bool
	}{
		{"draft to in_review", ReviewStatusDraft, ReviewStatusInReview, true},
		{"in_review to approved", ReviewStatusInReview, ReviewStatusApproved, true},
		{"draft to approved skips review", ReviewStatusDraft, ReviewStatusApproved, false},
		{"draft to archived", ReviewStatusDraft, ReviewStatusArchived, true},
		{"in_review to archived", ReviewStatusInReview, ReviewStatusArchived, true},
		{"approved to archived", ReviewStatusApproved, ReviewStatusArchived, true},
		{"archived is terminal", ReviewStatusArchived, ReviewStatusDraft, false},
		{"archived to archived", ReviewStatusArchived, ReviewStatusArchived, false},
		{"approved back to draft", ReviewStatusApproved, ReviewStatusDraft, false},
		{"in_review back to draft", ReviewStatusInReview, ReviewStatusDraft, false},
		{"no self transition", ReviewStatusDraft, ReviewStatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestReviewStatusCheckTransitionReason(t *testing.T) {
	err := ReviewStatusDraft.CheckTransition(ReviewStatusApproved)
	if err == nil {
		t.Fatal("expected error for draft -> approved")
	}

	var violation *StateViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected StateViolationError, got %T", err)
	}
	if violation.Reason == "" {
		t.Error("expected a specific reason in the violation")
	}

	if err := ReviewStatusDraft.CheckTransition(ReviewStatusInReview); err != nil {
		t.Errorf("draft -> in_review should be allowed, got %v", err)
	}

	if err := ReviewStatusDraft.CheckTransition(ReviewStatus("bogus")); err == nil {
		t.Error("expected error for unknown target status")
	}
}

func TestReviewStatusEditable(t *testing.T) {
	for _, s := range []ReviewStatus{ReviewStatusDraft, ReviewStatusInReview, ReviewStatusApproved} {
		if !s.Editable() {
			t.Errorf("%s should be editable", s)
		}
	}
	if ReviewStatusArchived.Editable() {
		t.Error("archived should not be editable")
	}
}

func TestNormalizeEventType(t *testing.T) {
	tests := []struct {
		raw  string
		want EventType
	}{
		{"new_feature", EventTypeNewFeature},
		{"pricing_change", EventTypePricingChange},
		{"acquired", EventTypeAcquisition},
		{"merger", EventTypeOther},
		{"", EventTypeOther},
		{"NEW_FEATURE", EventTypeOther},
	}

	for _, tt := range tests {
		if got := NormalizeEventType(tt.raw); got != tt.want {
			t.Errorf("NormalizeEventType(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		raw  string
		want Priority
	}{
		{"red", PriorityRed},
		{"yellow", PriorityYellow},
		{"green", PriorityGreen},
		{"critical", PriorityGreen},
		{"", PriorityGreen},
	}

	for _, tt := range tests {
		if got := NormalizePriority(tt.raw); got != tt.want {
			t.Errorf("NormalizePriority(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}
