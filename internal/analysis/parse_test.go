package analysis

import (
	"strings"
	"testing"
)

func TestParseItemAnalysis_Plain(t *testing.T) {
	raw := `{"relevant": true, "event_type": "funding", "priority": "red",
		"title": "Acme raises Series C", "summary": "They raised money.",
		"competitors": ["Acme"]}`

	got, err := ParseItemAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Relevant || got.EventType != "funding" || got.Title != "Acme raises Series C" {
		t.Errorf("fields not decoded: %+v", got)
	}
	if len(got.Competitors) != 1 || got.Competitors[0] != "Acme" {
		t.Errorf("competitors not decoded: %v", got.Competitors)
	}
}

func TestParseItemAnalysis_MarkdownFences(t *testing.T) {
	raw := "```json\n{\"relevant\": false, \"reason\": \"job posting\"}\n```"
	got, err := ParseItemAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Relevant {
		t.Error("expected irrelevant verdict")
	}
	if got.Reason != "job posting" {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestParseItemAnalysis_LeadingProse(t *testing.T) {
	raw := "Here is my analysis:\n{\"relevant\": true, \"title\": \"Launch\"}\nHope that helps!"
	got, err := ParseItemAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Launch" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestParseItemAnalysis_Garbage(t *testing.T) {
	for _, raw := range []string{"", "I cannot analyze this.", "{broken", "```\n```"} {
		if _, err := ParseItemAnalysis(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestParseItemAnalysis_RelevantNeedsTitle(t *testing.T) {
	if _, err := ParseItemAnalysis(`{"relevant": true, "title": "  "}`); err == nil {
		t.Error("relevant verdict without a title must be rejected")
	}
}

func TestParseItemAnalysis_LargeFencedBlock(t *testing.T) {
	body := `{"relevant": true, "title": "X", "summary": "` + strings.Repeat("a", 500) + `"}`
	got, err := ParseItemAnalysis("```" + body + "```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Summary) != 500 {
		t.Errorf("summary length = %d", len(got.Summary))
	}
}
