// Package search maintains the keyword search index for published datasets.
// Indexing is eventually consistent: the publication pipeline upserts
// entries best-effort, and a stale or missing entry only degrades discovery,
// never the dataset itself.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is what gets indexed for one published collection.
type Entry struct {
	CollectionID string
	Title        string
	Description  string
	Tags         []string
	Category     string
}

// Index is a SQLite-backed keyword index. The search_index table is created
// by the shared storage migrations.
type Index struct {
	db *sql.DB
}

// NewIndex wraps an existing *sql.DB for search operations.
func NewIndex(db *sql.DB) *Index {
	return &Index{db: db}
}

// Upsert writes or replaces the index entry for a collection.
func (x *Index) Upsert(ctx context.Context, e Entry) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO search_index (collection_id, title, description, tags, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET
			title = excluded.title, description = excluded.description,
			tags = excluded.tags, category = excluded.category,
			updated_at = excluded.updated_at`,
		e.CollectionID, e.Title, e.Description, strings.Join(e.Tags, " "),
		e.Category, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Delete removes a collection's index entry. Idempotent.
func (x *Index) Delete(ctx context.Context, collectionID string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM search_index WHERE collection_id = ?`, collectionID)
	return err
}

// Query returns collection ids whose indexed text matches every term of q,
// capped at limit.
func (x *Index) Query(ctx context.Context, q string, limit int) ([]string, error) {
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT collection_id FROM search_index WHERE 1=1`
	args := make([]any, 0, len(terms)+1)
	for _, term := range terms {
		query += ` AND lower(title || ' ' || description || ' ' || tags || ' ' || category) LIKE ?`
		args = append(args, "%"+term+"%")
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
