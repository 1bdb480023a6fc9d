package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mensah/datashelf/internal/fault"
)

func (s *Store) CreateDatabase(d Database) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO databases (id, owner_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Name, d.Description,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDatabase(id string) (Database, error) {
	var d Database
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM databases WHERE id = ?`, id,
	).Scan(&d.ID, &d.OwnerID, &d.Name, &d.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Database{}, fault.NotFound("database %s", id)
	}
	if err != nil {
		return Database{}, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Database{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Database{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return d, nil
}

// ListDatabases returns all databases owned by ownerID in creation order.
func (s *Store) ListDatabases(ownerID string) ([]Database, error) {
	rows, err := s.db.Query(`
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM databases WHERE owner_id = ? ORDER BY rowid ASC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Database
	for rows.Next() {
		var d Database
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Description, &createdAt, &updatedAt); err != nil {
			return nil, err
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

func (s *Store) UpdateDatabase(d Database) error {
	res, err := s.db.Exec(`
		UPDATE databases SET name = ?, description = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.Description, time.Now().UTC().Format(time.RFC3339), d.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.NotFound("database %s", d.ID)
	}
	return nil
}

// DeleteDatabase removes a database record. Deleting an already-gone
// database is not an error, so cascading drops stay idempotent.
func (s *Store) DeleteDatabase(id string) error {
	_, err := s.db.Exec(`DELETE FROM databases WHERE id = ?`, id)
	return err
}
