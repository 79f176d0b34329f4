package models

import (
	"time"
)

// Briefing is the daily rollup document for one calendar date. At most one
// briefing exists per date; regenerating updates the existing row.
type Briefing struct {
	ID      string       `json:"id"`
	Date    time.Time    `json:"date"` // calendar date, UTC midnight
	Content string       `json:"content"`
	Status  ReviewStatus `json:"status"`

	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CardIDs []string `json:"card_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BriefingDate truncates t to its UTC calendar date.
func BriefingDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
