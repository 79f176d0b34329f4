package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/augmenthq/compete/internal/models"
)

// PostgresItemRepository implements item storage using PostgreSQL.
type PostgresItemRepository struct {
	db *sql.DB
}

// NewPostgresItemRepository creates a new PostgreSQL item repository.
func NewPostgresItemRepository(db *sql.DB) *PostgresItemRepository {
	return &PostgresItemRepository{db: db}
}

const itemColumns = `
	id, source_id, guid, title, url, author, published_at, content,
	raw_metadata, is_processed, is_relevant, rejection_reason, created_at`

// InsertBatch inserts items inside one transaction, silently skipping rows
// whose (source_id, guid) already exists. Returns the number of genuinely
// new rows, which is how a sweep counts "new items".
func (r *PostgresItemRepository) InsertBatch(ctx context.Context, items []models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (
			id, source_id, guid, title, url, author, published_at, content,
			raw_metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_id, guid) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, item := range items {
		var metadataJSON []byte
		if item.RawMetadata != nil {
			metadataJSON, err = json.Marshal(item.RawMetadata)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}

		result, err := stmt.ExecContext(ctx,
			item.ID,
			item.SourceID,
			item.GUID,
			nullString(item.Title),
			nullString(item.URL),
			nullString(item.Author),
			item.PublishedAt,
			item.Content,
			metadataJSON,
			item.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.GUID, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// GetByID retrieves an item by its ID. Returns ErrNotFound when absent.
func (r *PostgresItemRepository) GetByID(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	return item, nil
}

// ListUnprocessed retrieves items that have not been through the relevance
// filter or the analysis stage yet, oldest first.
func (r *PostgresItemRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE NOT is_processed ORDER BY created_at ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

// MarkProcessed records an item's classification verdict. Set exactly once;
// already-processed items are left untouched so re-running is idempotent.
func (r *PostgresItemRepository) MarkProcessed(ctx context.Context, id string, relevant bool, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET is_processed = TRUE,
		    is_relevant = $2,
		    rejection_reason = NULLIF($3, '')
		WHERE id = $1 AND NOT is_processed
	`, id, relevant, reason)
	if err != nil {
		return fmt.Errorf("failed to mark item processed: %w", err)
	}
	return nil
}

// CountBySource returns how many items a source has produced.
func (r *PostgresItemRepository) CountBySource(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM items WHERE source_id = $1", sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

func scanItem(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.Item, error) {
	var item models.Item
	var title, url, author, rejectionReason sql.NullString
	var publishedAt sql.NullTime
	var metadataJSON []byte

	err := scanner.Scan(
		&item.ID,
		&item.SourceID,
		&item.GUID,
		&title,
		&url,
		&author,
		&publishedAt,
		&item.Content,
		&metadataJSON,
		&item.IsProcessed,
		&item.IsRelevant,
		&rejectionReason,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Title = title.String
	item.URL = url.String
	item.Author = author.String
	item.RejectionReason = rejectionReason.String
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &item.RawMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &item, nil
}

// nullTime converts a *time.Time into sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
