package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresCheckRunRepository implements check-run bookkeeping using PostgreSQL.
type PostgresCheckRunRepository struct {
	db *sql.DB
}

// NewPostgresCheckRunRepository creates a new PostgreSQL check-run repository.
func NewPostgresCheckRunRepository(db *sql.DB) *PostgresCheckRunRepository {
	return &PostgresCheckRunRepository{db: db}
}

const checkRunColumns = `
	id, scheduled_time, started_at, completed_at, status,
	feeds_checked, new_items_found, cards_generated, error_log,
	briefing_id, briefing_error, analysis_status`

// Create records the start of a run.
func (r *PostgresCheckRunRepository) Create(ctx context.Context, run *models.CheckRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO check_runs (id, scheduled_time, started_at, status, analysis_status)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.ScheduledTime, run.StartedAt, run.Status, run.AnalysisStatus)
	if err != nil {
		return fmt.Errorf("failed to insert check run: %w", err)
	}
	return nil
}

// Complete marks a run terminal with its final counters.
func (r *PostgresCheckRunRepository) Complete(ctx context.Context, run *models.CheckRun) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE check_runs
		SET completed_at = $2,
		    status = $3,
		    feeds_checked = $4,
		    new_items_found = $5,
		    error_log = NULLIF($6, ''),
		    analysis_status = $7
		WHERE id = $1
	`,
		run.ID,
		run.CompletedAt,
		run.Status,
		run.FeedsChecked,
		run.NewItemsFound,
		run.ErrorLog,
		run.AnalysisStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to complete check run: %w", err)
	}
	return nil
}

// SetAnalysisComplete flips the asynchronous analysis stage to complete and
// records how many cards it produced.
func (r *PostgresCheckRunRepository) SetAnalysisComplete(ctx context.Context, id string, cardsGenerated int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE check_runs
		SET analysis_status = 'complete',
		    cards_generated = $2
		WHERE id = $1
	`, id, cardsGenerated)
	if err != nil {
		return fmt.Errorf("failed to set analysis status: %w", err)
	}
	return nil
}

// SetBriefingResult records the outcome of the run's optional briefing step.
// Exactly one of briefingID and briefingErr is expected to be set.
func (r *PostgresCheckRunRepository) SetBriefingResult(ctx context.Context, id, briefingID, briefingErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE check_runs
		SET briefing_id = NULLIF($2, '')::uuid,
		    briefing_error = NULLIF($3, '')
		WHERE id = $1
	`, id, briefingID, briefingErr)
	if err != nil {
		return fmt.Errorf("failed to set briefing result: %w", err)
	}
	return nil
}

// GetByID retrieves a check run. Returns ErrNotFound when absent.
func (r *PostgresCheckRunRepository) GetByID(ctx context.Context, id string) (*models.CheckRun, error) {
	query := `SELECT ` + checkRunColumns + ` FROM check_runs WHERE id = $1`
	run, err := scanCheckRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query check run: %w", err)
	}
	return run, nil
}

// ListRecent retrieves the most recent runs, newest first.
func (r *PostgresCheckRunRepository) ListRecent(ctx context.Context, limit int) ([]models.CheckRun, error) {
	query := `SELECT ` + checkRunColumns + ` FROM check_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query check runs: %w", err)
	}
	defer rows.Close()

	runs := []models.CheckRun{}
	for rows.Next() {
		run, err := scanCheckRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func scanCheckRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.CheckRun, error) {
	var run models.CheckRun
	var completedAt sql.NullTime
	var errorLog, briefingID, briefingError sql.NullString

	err := scanner.Scan(
		&run.ID,
		&run.ScheduledTime,
		&run.StartedAt,
		&completedAt,
		&run.Status,
		&run.FeedsChecked,
		&run.NewItemsFound,
		&run.CardsGenerated,
		&errorLog,
		&briefingID,
		&briefingError,
		&run.AnalysisStatus,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.ErrorLog = errorLog.String
	run.BriefingID = briefingID.String
	run.BriefingError = briefingError.String
	return &run, nil
}
