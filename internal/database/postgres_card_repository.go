package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresCardRepository implements analysis-card storage using PostgreSQL.
// The edit log is insert-only at this layer: there is no method that updates
// or deletes an edit row.
type PostgresCardRepository struct {
	db *sql.DB
}

// NewPostgresCardRepository creates a new PostgreSQL card repository.
func NewPostgresCardRepository(db *sql.DB) *PostgresCardRepository {
	return &PostgresCardRepository{db: db}
}

// CardFilter narrows List results. Zero values mean "no constraint".
type CardFilter struct {
	Status       models.ReviewStatus
	Priority     models.Priority
	CompetitorID string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
}

const cardColumns = `
	c.id, c.item_id, c.check_run_id, c.event_type, c.priority,
	c.title, c.summary, c.impact_assessment, c.suggested_counter_moves,
	c.raw_llm_output, c.status, c.approved_by, c.approved_at,
	c.created_at, c.updated_at`

// Create inserts a card and its competitor links in one transaction.
func (r *PostgresCardRepository) Create(ctx context.Context, card *models.AnalysisCard) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_cards (
			id, item_id, check_run_id, event_type, priority,
			title, summary, impact_assessment, suggested_counter_moves,
			raw_llm_output, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		card.ID,
		nullString(card.ItemID),
		nullString(card.CheckRunID),
		card.EventType,
		card.Priority,
		card.Title,
		card.Summary,
		card.ImpactAssessment,
		card.SuggestedCounterMoves,
		card.RawLLMOutput,
		card.Status,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}

	for _, competitorID := range card.CompetitorIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO analysis_card_competitors (card_id, competitor_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, card.ID, competitorID)
		if err != nil {
			return fmt.Errorf("failed to link competitor: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a card with its competitor links. Returns ErrNotFound
// when absent.
func (r *PostgresCardRepository) GetByID(ctx context.Context, id string) (*models.AnalysisCard, error) {
	query := `SELECT ` + cardColumns + ` FROM analysis_cards c WHERE c.id = $1`
	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query card: %w", err)
	}

	card.CompetitorIDs, err = r.competitorIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// List retrieves cards matching the filter, newest first.
func (r *PostgresCardRepository) List(ctx context.Context, filter CardFilter) ([]models.AnalysisCard, error) {
	builder := sq.Select(
		"c.id", "c.item_id", "c.check_run_id", "c.event_type", "c.priority",
		"c.title", "c.summary", "c.impact_assessment", "c.suggested_counter_moves",
		"c.raw_llm_output", "c.status", "c.approved_by", "c.approved_at",
		"c.created_at", "c.updated_at",
	).
		From("analysis_cards c").
		OrderBy("c.created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"c.status": filter.Status})
	}
	if filter.Priority != "" {
		builder = builder.Where(sq.Eq{"c.priority": filter.Priority})
	}
	if filter.CompetitorID != "" {
		builder = builder.
			Join("analysis_card_competitors acc ON acc.card_id = c.id").
			Where(sq.Eq{"acc.competitor_id": filter.CompetitorID})
	}
	if filter.DateFrom != nil {
		builder = builder.Where(sq.GtOrEq{"c.created_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		builder = builder.Where(sq.LtOrEq{"c.created_at": *filter.DateTo})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []models.AnalysisCard{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cards, nil
}

// ListApprovedForCompetitor retrieves a competitor's approved cards created
// after the cutoff, newest first.
func (r *PostgresCardRepository) ListApprovedForCompetitor(ctx context.Context, competitorID string, since time.Time, limit int) ([]models.AnalysisCard, error) {
	return r.List(ctx, CardFilter{
		Status:       models.ReviewStatusApproved,
		CompetitorID: competitorID,
		DateFrom:     &since,
		Limit:        limit,
	})
}

// ListCreatedSince retrieves all cards created after the cutoff.
func (r *PostgresCardRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]models.AnalysisCard, error) {
	return r.List(ctx, CardFilter{DateFrom: &since})
}

// UpdateFields applies edits to a card's content fields and appends one edit
// row per changed field, all in one transaction.
func (r *PostgresCardRepository) UpdateFields(ctx context.Context, id string, changes map[string]string, userID string) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Column names come from a fixed editable-field set validated by the
	// caller; they are never raw user input.
	for field, newValue := range changes {
		var previous string
		query := fmt.Sprintf("SELECT %s FROM analysis_cards WHERE id = $1 FOR UPDATE", field)
		if err := tx.QueryRowContext(ctx, query, id).Scan(&previous); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to read card field %s: %w", field, err)
		}

		if previous == newValue {
			continue
		}

		update := fmt.Sprintf("UPDATE analysis_cards SET %s = $2, updated_at = NOW() WHERE id = $1", field)
		if _, err := tx.ExecContext(ctx, update, id, newValue); err != nil {
			return fmt.Errorf("failed to update card field %s: %w", field, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO analysis_card_edits (id, card_id, field_changed, previous_value, new_value, user_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), id, field, previous, newValue, userID)
		if err != nil {
			return fmt.Errorf("failed to append edit log: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateStatus transitions a card, stamping the approver when the new status
// is approved.
func (r *PostgresCardRepository) UpdateStatus(ctx context.Context, id string, status models.ReviewStatus, userID string) error {
	var approvedBy sql.NullString
	var approvedAt sql.NullTime
	if status == models.ReviewStatusApproved {
		approvedBy = sql.NullString{String: userID, Valid: true}
		approvedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE analysis_cards
		SET status = $2,
		    approved_by = COALESCE($3, approved_by),
		    approved_at = COALESCE($4, approved_at),
		    updated_at = NOW()
		WHERE id = $1
	`, id, status, approvedBy, approvedAt)
	if err != nil {
		return fmt.Errorf("failed to update card status: %w", err)
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

// ListEdits retrieves a card's edit log, oldest first.
func (r *PostgresCardRepository) ListEdits(ctx context.Context, cardID string) ([]models.CardEdit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, card_id, field_changed, previous_value, new_value, user_id, created_at
		FROM analysis_card_edits
		WHERE card_id = $1
		ORDER BY created_at ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query card edits: %w", err)
	}
	defer rows.Close()

	edits := []models.CardEdit{}
	for rows.Next() {
		var edit models.CardEdit
		err := rows.Scan(
			&edit.ID,
			&edit.CardID,
			&edit.FieldChanged,
			&edit.PreviousValue,
			&edit.NewValue,
			&edit.UserID,
			&edit.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card edit: %w", err)
		}
		edits = append(edits, edit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return edits, nil
}

// FilterExisting returns the subset of ids that refer to real cards.
func (r *PostgresCardRepository) FilterExisting(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM analysis_cards WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to filter card ids: %w", err)
	}
	defer rows.Close()

	existing := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return existing, nil
}

func (r *PostgresCardRepository) competitorIDs(ctx context.Context, cardID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT competitor_id FROM analysis_card_competitors WHERE card_id = $1", cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query card competitors: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan competitor id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func scanCard(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.AnalysisCard, error) {
	var card models.AnalysisCard
	var itemID, checkRunID, approvedBy sql.NullString
	var approvedAt sql.NullTime

	err := scanner.Scan(
		&card.ID,
		&itemID,
		&checkRunID,
		&card.EventType,
		&card.Priority,
		&card.Title,
		&card.Summary,
		&card.ImpactAssessment,
		&card.SuggestedCounterMoves,
		&card.RawLLMOutput,
		&card.Status,
		&approvedBy,
		&approvedAt,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.ItemID = itemID.String
	card.CheckRunID = checkRunID.String
	card.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		card.ApprovedAt = &t
	}
	return &card, nil
}
