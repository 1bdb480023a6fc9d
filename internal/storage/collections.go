package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mensah/datashelf/internal/fault"
)

const collectionColumns = `id, database_id, owner_id, name, slug, title, description,
	full_description, tags, category, access_type, status, asset_url, created_at, updated_at`

func (s *Store) CreateCollection(c Collection) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Metadata.AccessType == "" {
		c.Metadata.AccessType = AccessFree
	}
	if c.Metadata.Status == "" {
		c.Metadata.Status = StatusUnpublished
	}
	tagsJSON, err := marshalTags(c.Metadata.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DatabaseID, c.OwnerID, c.Name, c.Slug,
		c.Metadata.Title, c.Metadata.Description, c.Metadata.FullDescription,
		tagsJSON, c.Metadata.Category, c.Metadata.AccessType, c.Metadata.Status,
		c.AssetURL, c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCollection(id string) (Collection, error) {
	row := s.db.QueryRow(`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fault.NotFound("collection %s", id)
	}
	return c, err
}

// GetCollectionBySlug resolves a collection by its public slug. Used by the
// public dataset view, so only published collections match.
func (s *Store) GetCollectionBySlug(slug string) (Collection, error) {
	row := s.db.QueryRow(`
		SELECT `+collectionColumns+` FROM collections
		WHERE slug = ? AND status = ?`, slug, StatusPublished)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fault.NotFound("dataset %s", slug)
	}
	return c, err
}

// ListCollections returns the collections of a database in creation order.
func (s *Store) ListCollections(databaseID string) ([]Collection, error) {
	rows, err := s.db.Query(`
		SELECT `+collectionColumns+` FROM collections
		WHERE database_id = ? ORDER BY rowid ASC`, databaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCollections(rows)
}

// ListPublished returns published collections, optionally narrowed to a
// category. An empty category means all published collections.
func (s *Store) ListPublished(category string) ([]Collection, error) {
	var rows *sql.Rows
	var err error
	if category == "" {
		rows, err = s.db.Query(`
			SELECT `+collectionColumns+` FROM collections
			WHERE status = ? ORDER BY rowid ASC`, StatusPublished)
	} else {
		rows, err = s.db.Query(`
			SELECT `+collectionColumns+` FROM collections
			WHERE status = ? AND category = ? ORDER BY rowid ASC`, StatusPublished, category)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCollections(rows)
}

// Categories returns the distinct categories across published collections.
func (s *Store) Categories() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT category FROM collections
		WHERE status = ? AND category != '' ORDER BY category ASC`, StatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// UpdateCollection writes the full collection record (metadata included) in
// one statement, so a metadata flip is atomic at the row level.
func (s *Store) UpdateCollection(c Collection) error {
	tagsJSON, err := marshalTags(c.Metadata.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE collections SET name = ?, slug = ?, title = ?, description = ?,
			full_description = ?, tags = ?, category = ?, access_type = ?,
			status = ?, asset_url = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Slug, c.Metadata.Title, c.Metadata.Description,
		c.Metadata.FullDescription, tagsJSON, c.Metadata.Category,
		c.Metadata.AccessType, c.Metadata.Status, c.AssetURL,
		time.Now().UTC().Format(time.RFC3339), c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.NotFound("collection %s", c.ID)
	}
	return nil
}

// DeleteCollection removes a collection record. Idempotent.
func (s *Store) DeleteCollection(id string) error {
	_, err := s.db.Exec(`DELETE FROM collections WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (Collection, error) {
	var c Collection
	var tagsJSON, createdAt, updatedAt string
	err := row.Scan(
		&c.ID, &c.DatabaseID, &c.OwnerID, &c.Name, &c.Slug,
		&c.Metadata.Title, &c.Metadata.Description, &c.Metadata.FullDescription,
		&tagsJSON, &c.Metadata.Category, &c.Metadata.AccessType, &c.Metadata.Status,
		&c.AssetURL, &createdAt, &updatedAt,
	)
	if err != nil {
		return Collection{}, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.Metadata.Tags); err != nil {
		return Collection{}, fmt.Errorf("parsing tags: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Collection{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Collection{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

func scanCollections(rows *sql.Rows) ([]Collection, error) {
	var results []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshaling tags: %w", err)
	}
	return string(b), nil
}
