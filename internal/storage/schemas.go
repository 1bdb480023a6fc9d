package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/schema"
)

// Schema returns the declared field list for a collection, order-preserving.
func (s *Store) Schema(databaseID, collectionID string) ([]schema.Field, error) {
	var fieldsJSON string
	err := s.db.QueryRow(`
		SELECT fields FROM schemas WHERE database_id = ? AND collection_id = ?`,
		databaseID, collectionID,
	).Scan(&fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("schema for collection %s", collectionID)
	}
	if err != nil {
		return nil, err
	}
	var fields []schema.Field
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("parsing schema fields: %w", err)
	}
	return fields, nil
}

// SetSchema upserts the field list for a collection: create if absent,
// replace otherwise. Field validation happens at the manager layer; the
// collection must already exist, which the manager also guarantees.
func (s *Store) SetSchema(databaseID, collectionID string, fields []schema.Field) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshaling schema fields: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO schemas (collection_id, database_id, fields, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection_id) DO UPDATE SET
			fields = excluded.fields, updated_at = excluded.updated_at`,
		collectionID, databaseID, string(b), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteSchema removes the schema record of a collection. Idempotent.
func (s *Store) DeleteSchema(collectionID string) error {
	_, err := s.db.Exec(`DELETE FROM schemas WHERE collection_id = ?`, collectionID)
	return err
}
