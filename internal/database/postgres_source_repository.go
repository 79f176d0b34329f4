package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresSourceRepository implements source storage using PostgreSQL.
type PostgresSourceRepository struct {
	db *sql.DB
}

// NewPostgresSourceRepository creates a new PostgreSQL source repository.
func NewPostgresSourceRepository(db *sql.DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

const sourceColumns = `
	id, name, source_type, competitor_id, is_active,
	feed_url, page_url, css_selector,
	twitter_username, twitter_user_id, last_tweet_id,
	initial_backfill_days, backfill_completed, include_retweets, include_replies,
	error_count, last_error, last_checked_at, last_successful_at,
	created_at, updated_at`

// Create inserts a new source.
func (r *PostgresSourceRepository) Create(ctx context.Context, source *models.Source) error {
	query := `
		INSERT INTO sources (
			id, name, source_type, competitor_id, is_active,
			feed_url, page_url, css_selector,
			twitter_username, twitter_user_id, last_tweet_id,
			initial_backfill_days, backfill_completed, include_retweets, include_replies,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	var feedURL, pageURL, cssSelector, username, userID, lastTweetID sql.NullString
	backfillDays := 30
	var backfillCompleted, includeRetweets, includeReplies bool

	switch source.Type {
	case models.SourceTypeRSS:
		feedURL = sql.NullString{String: source.RSS.FeedURL, Valid: true}
	case models.SourceTypeWebScrape:
		pageURL = sql.NullString{String: source.Scrape.PageURL, Valid: true}
		if source.Scrape.CSSSelector != "" {
			cssSelector = sql.NullString{String: source.Scrape.CSSSelector, Valid: true}
		}
	case models.SourceTypeTwitter:
		username = sql.NullString{String: source.Twitter.Username, Valid: true}
		if source.Twitter.UserID != "" {
			userID = sql.NullString{String: source.Twitter.UserID, Valid: true}
		}
		if source.Twitter.InitialBackfillDays > 0 {
			backfillDays = source.Twitter.InitialBackfillDays
		}
		backfillCompleted = source.Twitter.BackfillCompleted
		includeRetweets = source.Twitter.IncludeRetweets
		includeReplies = source.Twitter.IncludeReplies
	}

	_, err := r.db.ExecContext(ctx, query,
		source.ID,
		source.Name,
		source.Type,
		nullString(source.CompetitorID),
		source.IsActive,
		feedURL,
		pageURL,
		cssSelector,
		username,
		userID,
		lastTweetID,
		backfillDays,
		backfillCompleted,
		includeRetweets,
		includeReplies,
		source.CreatedAt,
		source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// GetByID retrieves a source by its ID. Returns ErrNotFound when absent.
func (r *PostgresSourceRepository) GetByID(ctx context.Context, id string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`
	source, err := r.scanSource(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	return source, nil
}

// List retrieves sources, optionally restricted to active ones.
func (r *PostgresSourceRepository) List(ctx context.Context, activeOnly bool) ([]models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	sources := []models.Source{}
	for rows.Next() {
		source, err := r.scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sources, nil
}

// ListActive retrieves all active sources.
func (r *PostgresSourceRepository) ListActive(ctx context.Context) ([]models.Source, error) {
	return r.List(ctx, true)
}

// GetByTarget finds an active source polling the given URL or, for Twitter,
// username. Used for duplicate detection at creation time. Returns nil when
// no source matches.
func (r *PostgresSourceRepository) GetByTarget(ctx context.Context, sourceType models.SourceType, target string) (*models.Source, error) {
	var query string
	switch sourceType {
	case models.SourceTypeRSS:
		query = `SELECT ` + sourceColumns + ` FROM sources WHERE is_active AND feed_url = $1 LIMIT 1`
	case models.SourceTypeWebScrape:
		query = `SELECT ` + sourceColumns + ` FROM sources WHERE is_active AND page_url = $1 LIMIT 1`
	case models.SourceTypeTwitter:
		query = `SELECT ` + sourceColumns + ` FROM sources WHERE is_active AND LOWER(twitter_username) = LOWER($1) LIMIT 1`
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}

	source, err := r.scanSource(r.db.QueryRowContext(ctx, query, target))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source by target: %w", err)
	}
	return source, nil
}

// Update modifies a source's configurable fields. Health fields are owned by
// the ingestion coordinator and are not written here.
func (r *PostgresSourceRepository) Update(ctx context.Context, source *models.Source) error {
	query := `
		UPDATE sources
		SET name = $2,
		    competitor_id = $3,
		    is_active = $4,
		    feed_url = $5,
		    page_url = $6,
		    css_selector = $7,
		    twitter_username = $8,
		    initial_backfill_days = $9,
		    include_retweets = $10,
		    include_replies = $11,
		    updated_at = NOW()
		WHERE id = $1
	`

	var feedURL, pageURL, cssSelector, username sql.NullString
	backfillDays := 30
	var includeRetweets, includeReplies bool

	switch source.Type {
	case models.SourceTypeRSS:
		feedURL = sql.NullString{String: source.RSS.FeedURL, Valid: true}
	case models.SourceTypeWebScrape:
		pageURL = sql.NullString{String: source.Scrape.PageURL, Valid: true}
		if source.Scrape.CSSSelector != "" {
			cssSelector = sql.NullString{String: source.Scrape.CSSSelector, Valid: true}
		}
	case models.SourceTypeTwitter:
		username = sql.NullString{String: source.Twitter.Username, Valid: true}
		if source.Twitter.InitialBackfillDays > 0 {
			backfillDays = source.Twitter.InitialBackfillDays
		}
		includeRetweets = source.Twitter.IncludeRetweets
		includeReplies = source.Twitter.IncludeReplies
	}

	result, err := r.db.ExecContext(ctx, query,
		source.ID,
		source.Name,
		nullString(source.CompetitorID),
		source.IsActive,
		feedURL,
		pageURL,
		cssSelector,
		username,
		backfillDays,
		includeRetweets,
		includeReplies,
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a source. History and items remain intact.
func (r *PostgresSourceRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sources SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate source: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSuccess resets the error counter and stamps a successful check.
func (r *PostgresSourceRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET error_count = 0,
		    last_error = NULL,
		    last_checked_at = $2,
		    last_successful_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to record source success: %w", err)
	}
	return nil
}

// RecordFailure increments the error counter and records the failure message.
func (r *PostgresSourceRepository) RecordFailure(ctx context.Context, id string, message string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET error_count = error_count + 1,
		    last_error = $2,
		    last_checked_at = $3
		WHERE id = $1
	`, id, message, at)
	if err != nil {
		return fmt.Errorf("failed to record source failure: %w", err)
	}
	return nil
}

// UpdateTwitterState persists polling progress for a Twitter source.
// backfill_completed only ever flips to true here; clearing it goes through
// ResetBackfill.
func (r *PostgresSourceRepository) UpdateTwitterState(ctx context.Context, id string, lastTweetID string, backfillCompleted bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET last_tweet_id = COALESCE(NULLIF($2, ''), last_tweet_id),
		    backfill_completed = backfill_completed OR $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, lastTweetID, backfillCompleted)
	if err != nil {
		return fmt.Errorf("failed to update twitter state: %w", err)
	}
	return nil
}

// SetTwitterUserID records the resolved platform user id for a Twitter source.
func (r *PostgresSourceRepository) SetTwitterUserID(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET twitter_user_id = $2, updated_at = NOW() WHERE id = $1`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to set twitter user id: %w", err)
	}
	return nil
}

// ResetBackfill clears backfill state so the next check re-runs the one-time
// backfill with the given day count.
func (r *PostgresSourceRepository) ResetBackfill(ctx context.Context, id string, days int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET backfill_completed = FALSE,
		    initial_backfill_days = $2,
		    updated_at = NOW()
		WHERE id = $1 AND source_type = 'twitter'
	`, id, days)
	if err != nil {
		return fmt.Errorf("failed to reset backfill: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// scanSource reads one source row, reconstructing the type-specific config
// struct matching source_type.
func (r *PostgresSourceRepository) scanSource(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Source, error) {
	var source models.Source
	var competitorID, feedURL, pageURL, cssSelector sql.NullString
	var username, userID, lastTweetID, lastError sql.NullString
	var backfillDays int
	var backfillCompleted, includeRetweets, includeReplies bool
	var lastCheckedAt, lastSuccessfulAt sql.NullTime

	err := scanner.Scan(
		&source.ID,
		&source.Name,
		&source.Type,
		&competitorID,
		&source.IsActive,
		&feedURL,
		&pageURL,
		&cssSelector,
		&username,
		&userID,
		&lastTweetID,
		&backfillDays,
		&backfillCompleted,
		&includeRetweets,
		&includeReplies,
		&source.ErrorCount,
		&lastError,
		&lastCheckedAt,
		&lastSuccessfulAt,
		&source.CreatedAt,
		&source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.CompetitorID = competitorID.String
	source.LastError = lastError.String
	if lastCheckedAt.Valid {
		source.LastCheckedAt = &lastCheckedAt.Time
	}
	if lastSuccessfulAt.Valid {
		source.LastSuccessfulAt = &lastSuccessfulAt.Time
	}

	switch source.Type {
	case models.SourceTypeRSS:
		source.RSS = &models.RSSConfig{FeedURL: feedURL.String}
	case models.SourceTypeWebScrape:
		source.Scrape = &models.ScrapeConfig{
			PageURL:     pageURL.String,
			CSSSelector: cssSelector.String,
		}
	case models.SourceTypeTwitter:
		source.Twitter = &models.TwitterConfig{
			Username:            username.String,
			UserID:              userID.String,
			LastTweetID:         lastTweetID.String,
			InitialBackfillDays: backfillDays,
			BackfillCompleted:   backfillCompleted,
			IncludeRetweets:     includeRetweets,
			IncludeReplies:      includeReplies,
		}
	}

	return &source, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
