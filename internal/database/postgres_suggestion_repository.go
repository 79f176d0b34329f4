package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresSuggestionRepository implements profile-update-suggestion storage
// using PostgreSQL.
type PostgresSuggestionRepository struct {
	db *sql.DB
}

// NewPostgresSuggestionRepository creates a new PostgreSQL suggestion repository.
func NewPostgresSuggestionRepository(db *sql.DB) *PostgresSuggestionRepository {
	return &PostgresSuggestionRepository{db: db}
}

const suggestionColumns = `
	id, target, competitor_id, field_name, current_value, suggested_value,
	rationale, source_card_ids, status, reviewed_by, reviewed_at, created_at`

// Create inserts a pending suggestion.
func (r *PostgresSuggestionRepository) Create(ctx context.Context, s *models.ProfileUpdateSuggestion) error {
	cardIDsJSON, err := json.Marshal(s.SourceCardIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal card ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO profile_update_suggestions (
			id, target, competitor_id, field_name, current_value,
			suggested_value, rationale, source_card_ids, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		s.ID, s.Target, nullString(s.CompetitorID), s.FieldName,
		s.CurrentValue, s.SuggestedValue, s.Rationale, cardIDsJSON,
		s.Status, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert suggestion: %w", err)
	}
	return nil
}

// GetByID retrieves a suggestion. Returns ErrNotFound when absent.
func (r *PostgresSuggestionRepository) GetByID(ctx context.Context, id string) (*models.ProfileUpdateSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM profile_update_suggestions WHERE id = $1`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion: %w", err)
	}
	return s, nil
}

// List retrieves suggestions, optionally restricted by status, newest first.
func (r *PostgresSuggestionRepository) List(ctx context.Context, status models.SuggestionStatus, limit int) ([]models.ProfileUpdateSuggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM profile_update_suggestions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []models.ProfileUpdateSuggestion{}
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return suggestions, nil
}

// MarkReviewed records a terminal approve/reject verdict. Only pending rows
// can be reviewed; returns ErrNotFound when the row is absent or already
// reviewed.
func (r *PostgresSuggestionRepository) MarkReviewed(ctx context.Context, id string, status models.SuggestionStatus, userID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profile_update_suggestions
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, status, userID, at)
	if err != nil {
		return fmt.Errorf("failed to mark suggestion reviewed: %w", err)
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

func scanSuggestion(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.ProfileUpdateSuggestion, error) {
	var s models.ProfileUpdateSuggestion
	var competitorID, reviewedBy sql.NullString
	var reviewedAt sql.NullTime
	var cardIDsJSON []byte

	err := scanner.Scan(
		&s.ID, &s.Target, &competitorID, &s.FieldName, &s.CurrentValue,
		&s.SuggestedValue, &s.Rationale, &cardIDsJSON, &s.Status,
		&reviewedBy, &reviewedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.CompetitorID = competitorID.String
	s.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		s.ReviewedAt = &t
	}
	if len(cardIDsJSON) > 0 {
		if err := json.Unmarshal(cardIDsJSON, &s.SourceCardIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card ids: %w", err)
		}
	}
	return &s, nil
}
