package models

import (
	"time"
)

// CheckRun records one sweep over all active sources plus the analysis and
// briefing work it triggered. A run is terminal once Status leaves running.
type CheckRun struct {
	ID            string         `json:"id"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Status        CheckRunStatus `json:"status"`

	FeedsChecked   int    `json:"feeds_checked"`
	NewItemsFound  int    `json:"new_items_found"`
	CardsGenerated int    `json:"cards_generated"`
	ErrorLog       string `json:"error_log,omitempty"`

	BriefingID    string `json:"briefing_id,omitempty"`
	BriefingError string `json:"briefing_error,omitempty"`

	// AnalysisStatus tracks the asynchronous card-generation stage, which
	// keeps running after the run itself completes.
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
}

// CheckRunStatus is the lifecycle state of a check run.
type CheckRunStatus string

const (
	CheckRunStatusRunning   CheckRunStatus = "running"
	CheckRunStatusCompleted CheckRunStatus = "completed"
	CheckRunStatusFailed    CheckRunStatus = "failed"
)

// AnalysisStatus tracks the post-ingestion analysis stage of a run.
type AnalysisStatus string

const (
	AnalysisStatusPending  AnalysisStatus = "pending"
	AnalysisStatusComplete AnalysisStatus = "complete"
)
