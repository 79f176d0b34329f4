package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresContentRepository implements content template and output storage
// using PostgreSQL. Output versions are allocated inside the creating
// transaction so concurrent generations never collide.
type PostgresContentRepository struct {
	db *sql.DB
}

// NewPostgresContentRepository creates a new PostgreSQL content repository.
func NewPostgresContentRepository(db *sql.DB) *PostgresContentRepository {
	return &PostgresContentRepository{db: db}
}

// OutputFilter narrows ListOutputs results. Zero values mean "no constraint".
type OutputFilter struct {
	Status       models.ContentStatus
	CompetitorID string
	ContentType  string
	Limit        int
}

const templateColumns = `
	id, content_type, name, sections, doc_name_pattern, is_active,
	created_at, updated_at`

const outputColumns = `
	id, competitor_id, template_id, content_type, version, title, content,
	status, error_message, source_card_ids, google_doc_id, google_doc_url,
	published_at, approved_by, approved_at, created_by, created_at, updated_at`

// CreateTemplate inserts a content template.
func (r *PostgresContentRepository) CreateTemplate(ctx context.Context, tmpl *models.ContentTemplate) error {
	sectionsJSON, err := json.Marshal(tmpl.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO content_templates (id, content_type, name, sections, doc_name_pattern, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, tmpl.ID, tmpl.ContentType, tmpl.Name, sectionsJSON, tmpl.DocNamePattern, tmpl.IsActive, tmpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// GetTemplate retrieves a template by id. Returns ErrNotFound when absent.
func (r *PostgresContentRepository) GetTemplate(ctx context.Context, id string) (*models.ContentTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM content_templates WHERE id = $1`
	tmpl, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	return tmpl, nil
}

// ListTemplates retrieves templates, optionally only active ones.
func (r *PostgresContentRepository) ListTemplates(ctx context.Context, activeOnly bool) ([]models.ContentTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM content_templates`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	templates := []models.ContentTemplate{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return templates, nil
}

// CreateOutput inserts a new generation attempt, allocating the next version
// in the (competitor, template, content_type) lineage inside the transaction.
func (r *PostgresContentRepository) CreateOutput(ctx context.Context, output *models.ContentOutput) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM content_outputs
		WHERE competitor_id = $1 AND template_id = $2 AND content_type = $3
	`, output.CompetitorID, output.TemplateID, output.ContentType).Scan(&output.Version)
	if err != nil {
		return fmt.Errorf("failed to allocate version: %w", err)
	}

	cardIDsJSON, err := json.Marshal(output.SourceCardIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal card ids: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO content_outputs (
			id, competitor_id, template_id, content_type, version,
			title, content, status, source_card_ids, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`,
		output.ID,
		output.CompetitorID,
		output.TemplateID,
		output.ContentType,
		output.Version,
		output.Title,
		output.Content,
		output.Status,
		cardIDsJSON,
		nullString(output.CreatedBy),
		output.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert content output: %w", err)
	}

	return tx.Commit()
}

// FinishGeneration records the outcome of the background generation task:
// draft with content on success, failed with an error message otherwise.
func (r *PostgresContentRepository) FinishGeneration(ctx context.Context, id string, output *models.ContentOutput) error {
	cardIDsJSON, err := json.Marshal(output.SourceCardIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal card ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE content_outputs
		SET title = $2,
		    content = $3,
		    status = $4,
		    error_message = NULLIF($5, ''),
		    source_card_ids = $6,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'generating'
	`, id, output.Title, output.Content, output.Status, output.ErrorMessage, cardIDsJSON)
	if err != nil {
		return fmt.Errorf("failed to finish generation: %w", err)
	}
	return nil
}

// UpdateOutputFields applies edits to an output's editable fields.
func (r *PostgresContentRepository) UpdateOutputFields(ctx context.Context, id, title, content string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE content_outputs
		SET title = $2, content = $3, updated_at = NOW()
		WHERE id = $1
	`, id, title, content)
	if err != nil {
		return fmt.Errorf("failed to update content output: %w", err)
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

// UpdateOutputStatus transitions an output, stamping the approver when the
// new status is approved.
func (r *PostgresContentRepository) UpdateOutputStatus(ctx context.Context, id string, status models.ContentStatus, userID string) error {
	var approvedBy sql.NullString
	var approvedAt sql.NullTime
	if status == models.ContentStatusApproved {
		approvedBy = sql.NullString{String: userID, Valid: true}
		approvedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE content_outputs
		SET status = $2,
		    approved_by = COALESCE($3, approved_by),
		    approved_at = COALESCE($4, approved_at),
		    updated_at = NOW()
		WHERE id = $1
	`, id, status, approvedBy, approvedAt)
	if err != nil {
		return fmt.Errorf("failed to update output status: %w", err)
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

// SetPublished records the external document handle and flips the output to
// published. Called only after the external publish succeeded.
func (r *PostgresContentRepository) SetPublished(ctx context.Context, id, docID, docURL string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE content_outputs
		SET status = 'published',
		    google_doc_id = $2,
		    google_doc_url = $3,
		    published_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`, id, docID, docURL, at)
	if err != nil {
		return fmt.Errorf("failed to set published: %w", err)
	}
	return nil
}

// GetOutput retrieves an output by id. Returns ErrNotFound when absent.
func (r *PostgresContentRepository) GetOutput(ctx context.Context, id string) (*models.ContentOutput, error) {
	query := `SELECT ` + outputColumns + ` FROM content_outputs WHERE id = $1`
	output, err := scanOutput(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query content output: %w", err)
	}
	return output, nil
}

// ListOutputs retrieves outputs matching the filter, newest first.
func (r *PostgresContentRepository) ListOutputs(ctx context.Context, filter OutputFilter) ([]models.ContentOutput, error) {
	builder := sq.Select(
		"id", "competitor_id", "template_id", "content_type", "version",
		"title", "content", "status", "error_message", "source_card_ids",
		"google_doc_id", "google_doc_url", "published_at",
		"approved_by", "approved_at", "created_by", "created_at", "updated_at",
	).
		From("content_outputs").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if filter.CompetitorID != "" {
		builder = builder.Where(sq.Eq{"competitor_id": filter.CompetitorID})
	}
	if filter.ContentType != "" {
		builder = builder.Where(sq.Eq{"content_type": filter.ContentType})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build output query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query content outputs: %w", err)
	}
	defer rows.Close()

	outputs := []models.ContentOutput{}
	for rows.Next() {
		output, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content output: %w", err)
		}
		outputs = append(outputs, *output)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return outputs, nil
}

// LatestReadyOutput retrieves the newest approved or published output for a
// competitor and content type, or nil when none exists. Used for stale
// detection.
func (r *PostgresContentRepository) LatestReadyOutput(ctx context.Context, competitorID, contentType string) (*models.ContentOutput, error) {
	query := `SELECT ` + outputColumns + `
		FROM content_outputs
		WHERE competitor_id = $1 AND content_type = $2
		  AND status IN ('approved', 'published')
		ORDER BY version DESC
		LIMIT 1`

	output, err := scanOutput(r.db.QueryRowContext(ctx, query, competitorID, contentType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest output: %w", err)
	}
	return output, nil
}

func scanTemplate(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.ContentTemplate, error) {
	var tmpl models.ContentTemplate
	var sectionsJSON []byte

	err := scanner.Scan(
		&tmpl.ID,
		&tmpl.ContentType,
		&tmpl.Name,
		&sectionsJSON,
		&tmpl.DocNamePattern,
		&tmpl.IsActive,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &tmpl.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
		}
	}
	return &tmpl, nil
}

func scanOutput(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.ContentOutput, error) {
	var output models.ContentOutput
	var errorMessage, docID, docURL, approvedBy, createdBy sql.NullString
	var publishedAt, approvedAt sql.NullTime
	var cardIDsJSON []byte

	err := scanner.Scan(
		&output.ID,
		&output.CompetitorID,
		&output.TemplateID,
		&output.ContentType,
		&output.Version,
		&output.Title,
		&output.Content,
		&output.Status,
		&errorMessage,
		&cardIDsJSON,
		&docID,
		&docURL,
		&publishedAt,
		&approvedBy,
		&approvedAt,
		&createdBy,
		&output.CreatedAt,
		&output.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	output.ErrorMessage = errorMessage.String
	output.GoogleDocID = docID.String
	output.GoogleDocURL = docURL.String
	output.ApprovedBy = approvedBy.String
	output.CreatedBy = createdBy.String
	if publishedAt.Valid {
		t := publishedAt.Time
		output.PublishedAt = &t
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		output.ApprovedAt = &t
	}
	if len(cardIDsJSON) > 0 {
		if err := json.Unmarshal(cardIDsJSON, &output.SourceCardIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card ids: %w", err)
		}
	}
	return &output, nil
}
