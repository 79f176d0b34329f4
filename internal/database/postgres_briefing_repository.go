package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresBriefingRepository implements briefing storage using PostgreSQL.
type PostgresBriefingRepository struct {
	db *sql.DB
}

// NewPostgresBriefingRepository creates a new PostgreSQL briefing repository.
func NewPostgresBriefingRepository(db *sql.DB) *PostgresBriefingRepository {
	return &PostgresBriefingRepository{db: db}
}

const briefingColumns = `
	id, briefing_date, content, status, approved_by, approved_at,
	created_at, updated_at`

// UpsertForDate creates or updates the briefing row for a calendar date and
// replaces its card links, all in one transaction. The unique constraint on
// briefing_date guarantees at most one row per day.
func (r *PostgresBriefingRepository) UpsertForDate(ctx context.Context, briefing *models.Briefing) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO briefings (id, briefing_date, content, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (briefing_date) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`,
		briefing.ID,
		briefing.Date,
		briefing.Content,
		briefing.Status,
		briefing.CreatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert briefing: %w", err)
	}

	// The row may predate this regeneration; keep the surviving id.
	briefing.ID = id

	if _, err := tx.ExecContext(ctx, "DELETE FROM briefing_cards WHERE briefing_id = $1", id); err != nil {
		return fmt.Errorf("failed to clear briefing cards: %w", err)
	}

	for _, cardID := range briefing.CardIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO briefing_cards (briefing_id, card_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, id, cardID)
		if err != nil {
			return fmt.Errorf("failed to link briefing card: %w", err)
		}
	}

	return tx.Commit()
}

// GetByDate retrieves the briefing for a calendar date, or nil when none
// exists yet.
func (r *PostgresBriefingRepository) GetByDate(ctx context.Context, date time.Time) (*models.Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings WHERE briefing_date = $1`
	briefing, err := scanBriefing(r.db.QueryRowContext(ctx, query, models.BriefingDate(date)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query briefing by date: %w", err)
	}

	briefing.CardIDs, err = r.cardIDs(ctx, briefing.ID)
	if err != nil {
		return nil, err
	}
	return briefing, nil
}

// GetByID retrieves a briefing. Returns ErrNotFound when absent.
func (r *PostgresBriefingRepository) GetByID(ctx context.Context, id string) (*models.Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings WHERE id = $1`
	briefing, err := scanBriefing(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query briefing: %w", err)
	}

	briefing.CardIDs, err = r.cardIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return briefing, nil
}

// List retrieves briefings, newest date first.
func (r *PostgresBriefingRepository) List(ctx context.Context, limit int) ([]models.Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings ORDER BY briefing_date DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query briefings: %w", err)
	}
	defer rows.Close()

	briefings := []models.Briefing{}
	for rows.Next() {
		briefing, err := scanBriefing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan briefing: %w", err)
		}
		briefings = append(briefings, *briefing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return briefings, nil
}

// UpdateStatus transitions a briefing, stamping the approver when the new
// status is approved.
func (r *PostgresBriefingRepository) UpdateStatus(ctx context.Context, id string, status models.ReviewStatus, userID string) error {
	var approvedBy sql.NullString
	var approvedAt sql.NullTime
	if status == models.ReviewStatusApproved {
		approvedBy = sql.NullString{String: userID, Valid: true}
		approvedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE briefings
		SET status = $2,
		    approved_by = COALESCE($3, approved_by),
		    approved_at = COALESCE($4, approved_at),
		    updated_at = NOW()
		WHERE id = $1
	`, id, status, approvedBy, approvedAt)
	if err != nil {
		return fmt.Errorf("failed to update briefing status: %w", err)
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

func (r *PostgresBriefingRepository) cardIDs(ctx context.Context, briefingID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT card_id FROM briefing_cards WHERE briefing_id = $1", briefingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query briefing cards: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func scanBriefing(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Briefing, error) {
	var briefing models.Briefing
	var approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := scanner.Scan(
		&briefing.ID,
		&briefing.Date,
		&briefing.Content,
		&briefing.Status,
		&approvedBy,
		&approvedAt,
		&briefing.CreatedAt,
		&briefing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	briefing.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		briefing.ApprovedAt = &t
	}
	return &briefing, nil
}
