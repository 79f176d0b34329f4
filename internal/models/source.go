package models

import (
	"time"
)

// Source represents a configured external origin of competitor content:
// an RSS feed, a scraped web page, or a Twitter/X account.
type Source struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         SourceType `json:"source_type"`
	CompetitorID string     `json:"competitor_id,omitempty"`
	IsActive     bool       `json:"is_active"`

	// Exactly one of these is set, matching Type.
	RSS     *RSSConfig     `json:"rss,omitempty"`
	Scrape  *ScrapeConfig  `json:"scrape,omitempty"`
	Twitter *TwitterConfig `json:"twitter,omitempty"`

	// Health fields, written only by the ingestion coordinator.
	ErrorCount       int        `json:"error_count"`
	LastError        string     `json:"last_error,omitempty"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
	LastSuccessfulAt *time.Time `json:"last_successful_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceType categorizes how a source is fetched.
type SourceType string

const (
	SourceTypeRSS       SourceType = "rss"
	SourceTypeWebScrape SourceType = "web_scrape"
	SourceTypeTwitter   SourceType = "twitter"
)

// RSSConfig holds settings for an RSS/Atom feed source.
type RSSConfig struct {
	FeedURL string `json:"feed_url"`
}

// ScrapeConfig holds settings for a scraped web page source.
type ScrapeConfig struct {
	PageURL     string `json:"page_url"`
	CSSSelector string `json:"css_selector,omitempty"`
}

// Bounds on the one-time history window fetched for new Twitter sources.
const (
	DefaultBackfillDays = 30
	MaxBackfillDays     = 90
)

// TwitterConfig holds settings and backfill state for a Twitter/X account source.
type TwitterConfig struct {
	Username            string `json:"username"`
	UserID              string `json:"user_id,omitempty"`
	LastTweetID         string `json:"last_tweet_id,omitempty"`
	InitialBackfillDays int    `json:"initial_backfill_days"`
	BackfillCompleted   bool   `json:"backfill_completed"`
	IncludeRetweets     bool   `json:"include_retweets"`
	IncludeReplies      bool   `json:"include_replies"`
}

// Target returns the external endpoint this source polls, for display and
// duplicate detection. For Twitter sources that is the username, not a URL.
func (s *Source) Target() string {
	switch s.Type {
	case SourceTypeRSS:
		if s.RSS != nil {
			return s.RSS.FeedURL
		}
	case SourceTypeWebScrape:
		if s.Scrape != nil {
			return s.Scrape.PageURL
		}
	case SourceTypeTwitter:
		if s.Twitter != nil {
			return s.Twitter.Username
		}
	}
	return ""
}

// ValidSourceType reports whether t is a known source type.
func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypeRSS, SourceTypeWebScrape, SourceTypeTwitter:
		return true
	}
	return false
}
