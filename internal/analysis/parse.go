package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemAnalysis is the model's verdict on one item.
type ItemAnalysis struct {
	Relevant               bool     `json:"relevant"`
	Reason                 string   `json:"reason"`
	EventType              string   `json:"event_type"`
	Priority               string   `json:"priority"`
	Title                  string   `json:"title"`
	Summary                string   `json:"summary"`
	ImpactAssessment       string   `json:"impact_assessment"`
	SuggestedCounterMoves  string   `json:"suggested_counter_moves"`
	Competitors            []string `json:"competitors"`
	SuggestedNewCompetitor string   `json:"suggested_new_competitor"`
}

// ParseItemAnalysis decodes a model response, tolerating markdown code fences
// and leading prose around the JSON object.
func ParseItemAnalysis(raw string) (*ItemAnalysis, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis ItemAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if analysis.Relevant && strings.TrimSpace(analysis.Title) == "" {
		return nil, fmt.Errorf("relevant verdict missing a title")
	}
	return &analysis, nil
}

// extractJSON strips markdown fences and trims to the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}
