package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/schema"
)

func (s *Store) InsertDocument(d Document) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	payload, err := encodePayload(d.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (id, database_id, collection_id, owner_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DatabaseID, d.CollectionID, d.OwnerID, payload,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// UpsertDocument writes a document by id, inserting if absent. The whole
// payload is replaced in one statement, so concurrent saves degrade to
// last-write-wins at document granularity with no partial field
// interleaving inside a single write.
func (s *Store) UpsertDocument(d Document) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	payload, err := encodePayload(d.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (id, database_id, collection_id, owner_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload, updated_at = excluded.updated_at`,
		d.ID, d.DatabaseID, d.CollectionID, d.OwnerID, payload,
		d.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	return err
}

// FindDocuments returns documents of a collection in insertion order with
// limit/skip pagination. A limit <= 0 returns all documents from skip on.
func (s *Store) FindDocuments(databaseID, collectionID string, limit, skip int) ([]Document, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`
		SELECT id, database_id, collection_id, owner_id, payload, created_at, updated_at
		FROM documents WHERE database_id = ? AND collection_id = ?
		ORDER BY rowid ASC LIMIT ? OFFSET ?`,
		databaseID, collectionID, limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var payload, createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.DatabaseID, &d.CollectionID, &d.OwnerID, &payload, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if d.Payload, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) CountDocuments(databaseID, collectionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM documents WHERE database_id = ? AND collection_id = ?`,
		databaseID, collectionID,
	).Scan(&count)
	return count, err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var payload, createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, database_id, collection_id, owner_id, payload, created_at, updated_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.DatabaseID, &d.CollectionID, &d.OwnerID, &payload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fault.NotFound("document %s", id)
	}
	if err != nil {
		return Document{}, err
	}
	if d.Payload, err = decodePayload(payload); err != nil {
		return Document{}, fmt.Errorf("document %s: %w", d.ID, err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Document{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

// DeleteDocument removes one document by id. Idempotent.
func (s *Store) DeleteDocument(id string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	return err
}

// DeleteDocumentsByCollection removes all documents of a collection.
// Idempotent.
func (s *Store) DeleteDocumentsByCollection(collectionID string) error {
	_, err := s.db.Exec(`DELETE FROM documents WHERE collection_id = ?`, collectionID)
	return err
}

// MigrateDocumentKeys rewrites payload keys across all documents of a
// collection according to the old→new rename map, in a single transaction.
// A renamed schema field migrates existing data instead of orphaning it.
func (s *Store) MigrateDocumentKeys(databaseID, collectionID string, renames map[string]string) error {
	if len(renames) == 0 {
		return nil
	}

	docs, err := s.FindDocuments(databaseID, collectionID, 0, 0)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning key migration: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range docs {
		changed := false
		for oldName, newName := range renames {
			if _, ok := d.Payload[oldName]; ok && oldName != newName {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		schema.MigrateKeys(d.Payload, renames)
		payload, err := encodePayload(d.Payload)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`UPDATE documents SET payload = ?, updated_at = ? WHERE id = ?`,
			payload, now, d.ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrating document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}
