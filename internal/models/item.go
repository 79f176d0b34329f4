package models

import (
	"time"
)

// Item is one raw unit of content ingested from a source. Items are immutable
// after creation except for the processing flags, which the relevance filter
// and the analysis stage each set exactly once.
type Item struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	GUID        string     `json:"guid"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Content     string     `json:"content,omitempty"`

	// RawMetadata carries source-specific extras (engagement metrics for
	// tweets, feed categories) as a JSON document.
	RawMetadata map[string]interface{} `json:"raw_metadata,omitempty"`

	IsProcessed     bool   `json:"is_processed"`
	IsRelevant      bool   `json:"is_relevant"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
