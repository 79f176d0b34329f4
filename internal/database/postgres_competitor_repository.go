package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresCompetitorRepository implements competitor and self-profile storage
// using PostgreSQL.
type PostgresCompetitorRepository struct {
	db *sql.DB
}

// NewPostgresCompetitorRepository creates a new PostgreSQL competitor repository.
func NewPostgresCompetitorRepository(db *sql.DB) *PostgresCompetitorRepository {
	return &PostgresCompetitorRepository{db: db}
}

const competitorColumns = `
	id, name, website, overview, products, target_market, strengths,
	weaknesses, pricing, recent_moves, notes, is_suggested, suggested_reason,
	is_active, created_at, updated_at`

// Create inserts a competitor.
func (r *PostgresCompetitorRepository) Create(ctx context.Context, c *models.Competitor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO competitors (
			id, name, website, overview, products, target_market, strengths,
			weaknesses, pricing, recent_moves, notes, is_suggested,
			suggested_reason, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`,
		c.ID, c.Name, c.Website, c.Overview, c.Products, c.TargetMarket,
		c.Strengths, c.Weaknesses, c.Pricing, c.RecentMoves, c.Notes,
		c.IsSuggested, c.SuggestedReason, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert competitor: %w", err)
	}
	return nil
}

// GetByID retrieves a competitor. Returns ErrNotFound when absent.
func (r *PostgresCompetitorRepository) GetByID(ctx context.Context, id string) (*models.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` FROM competitors WHERE id = $1`
	c, err := scanCompetitor(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query competitor: %w", err)
	}
	return c, nil
}

// GetByName retrieves a competitor by case-insensitive name, or nil when no
// competitor matches. Used by the analysis stage to link model-named
// competitors to rows.
func (r *PostgresCompetitorRepository) GetByName(ctx context.Context, name string) (*models.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` FROM competitors WHERE LOWER(name) = LOWER($1)`
	c, err := scanCompetitor(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query competitor by name: %w", err)
	}
	return c, nil
}

// List retrieves competitors, optionally restricted to active ones.
func (r *PostgresCompetitorRepository) List(ctx context.Context, activeOnly bool) ([]models.Competitor, error) {
	query := `SELECT ` + competitorColumns + ` FROM competitors`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitors: %w", err)
	}
	defer rows.Close()

	competitors := []models.Competitor{}
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan competitor: %w", err)
		}
		competitors = append(competitors, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return competitors, nil
}

// Update modifies a competitor's fields.
func (r *PostgresCompetitorRepository) Update(ctx context.Context, c *models.Competitor) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE competitors
		SET name = $2, website = $3, overview = $4, products = $5,
		    target_market = $6, strengths = $7, weaknesses = $8, pricing = $9,
		    recent_moves = $10, notes = $11, is_suggested = $12,
		    suggested_reason = $13, is_active = $14, updated_at = NOW()
		WHERE id = $1
	`,
		c.ID, c.Name, c.Website, c.Overview, c.Products, c.TargetMarket,
		c.Strengths, c.Weaknesses, c.Pricing, c.RecentMoves, c.Notes,
		c.IsSuggested, c.SuggestedReason, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update competitor: %w", err)
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

// UpdateProfileField writes one profile field. The field name comes from the
// validated profile-field set, never raw user input.
func (r *PostgresCompetitorRepository) UpdateProfileField(ctx context.Context, id, field, value string) error {
	query := fmt.Sprintf("UPDATE competitors SET %s = $2, updated_at = NOW() WHERE id = $1", field)
	result, err := r.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to update competitor field %s: %w", field, err)
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

// GetProfileField reads one profile field.
func (r *PostgresCompetitorRepository) GetProfileField(ctx context.Context, id, field string) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM competitors WHERE id = $1", field)
	var value string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read competitor field %s: %w", field, err)
	}
	return value, nil
}

func scanCompetitor(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Competitor, error) {
	var c models.Competitor
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Website, &c.Overview, &c.Products, &c.TargetMarket,
		&c.Strengths, &c.Weaknesses, &c.Pricing, &c.RecentMoves, &c.Notes,
		&c.IsSuggested, &c.SuggestedReason, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PostgresSelfProfileRepository stores the operator's own profile. The table
// holds a single row created on first write.
type PostgresSelfProfileRepository struct {
	db *sql.DB
}

// NewPostgresSelfProfileRepository creates a new self-profile repository.
func NewPostgresSelfProfileRepository(db *sql.DB) *PostgresSelfProfileRepository {
	return &PostgresSelfProfileRepository{db: db}
}

// Get retrieves the profile, or nil when it has never been written.
func (r *PostgresSelfProfileRepository) Get(ctx context.Context) (*models.SelfProfile, error) {
	var p models.SelfProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, overview, products, positioning, differentiators, target_market, roadmap, updated_at
		FROM self_profile
		LIMIT 1
	`).Scan(
		&p.ID, &p.Overview, &p.Products, &p.Positioning,
		&p.Differentiators, &p.TargetMarket, &p.Roadmap, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query self profile: %w", err)
	}
	return &p, nil
}

// Upsert writes the profile, creating the singleton row if needed.
func (r *PostgresSelfProfileRepository) Upsert(ctx context.Context, p *models.SelfProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO self_profile (id, overview, products, positioning, differentiators, target_market, roadmap, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			overview = EXCLUDED.overview,
			products = EXCLUDED.products,
			positioning = EXCLUDED.positioning,
			differentiators = EXCLUDED.differentiators,
			target_market = EXCLUDED.target_market,
			roadmap = EXCLUDED.roadmap,
			updated_at = NOW()
	`, p.ID, p.Overview, p.Products, p.Positioning, p.Differentiators, p.TargetMarket, p.Roadmap)
	if err != nil {
		return fmt.Errorf("failed to upsert self profile: %w", err)
	}
	return nil
}

// UpdateField writes one profile field on the singleton row.
func (r *PostgresSelfProfileRepository) UpdateField(ctx context.Context, field, value string) error {
	query := fmt.Sprintf("UPDATE self_profile SET %s = $1, updated_at = NOW()", field)
	result, err := r.db.ExecContext(ctx, query, value)
	if err != nil {
		return fmt.Errorf("failed to update self profile field %s: %w", field, err)
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

// GetField reads one profile field from the singleton row.
func (r *PostgresSelfProfileRepository) GetField(ctx context.Context, field string) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM self_profile LIMIT 1", field)
	var value string
	err := r.db.QueryRowContext(ctx, query).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read self profile field %s: %w", field, err)
	}
	return value, nil
}
