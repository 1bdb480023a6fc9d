package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/storage"
)

// CreateDatabase allocates a new user-owned database grouping.
func (m *Manager) CreateDatabase(ctx context.Context, ownerID, name, description string) (storage.Database, error) {
	if ownerID == "" {
		return storage.Database{}, fault.Permission("caller identity is required")
	}
	if name == "" {
		return storage.Database{}, fault.Validation("database name is required")
	}

	db := storage.Database{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
	}
	if err := m.store.CreateDatabase(db); err != nil {
		return storage.Database{}, fmt.Errorf("creating database: %w", err)
	}
	return m.store.GetDatabase(db.ID)
}

// UpdateDatabase renames a database or updates its description.
func (m *Manager) UpdateDatabase(ctx context.Context, callerID, databaseID, name, description string) (storage.Database, error) {
	db, err := m.requireDatabaseOwner(databaseID, callerID)
	if err != nil {
		return storage.Database{}, err
	}
	if name == "" {
		return storage.Database{}, fault.Validation("database name is required")
	}
	db.Name = name
	db.Description = description
	if err := m.store.UpdateDatabase(db); err != nil {
		return storage.Database{}, err
	}
	return m.store.GetDatabase(databaseID)
}

// ListDatabases returns the caller's databases.
func (m *Manager) ListDatabases(ctx context.Context, ownerID string) ([]storage.Database, error) {
	return m.store.ListDatabases(ownerID)
}

// GetDatabase returns a database the caller owns.
func (m *Manager) GetDatabase(ctx context.Context, callerID, databaseID string) (storage.Database, error) {
	return m.requireDatabaseOwner(databaseID, callerID)
}

// DropDatabase deletes a database and cascades to all of its collections,
// their documents, schemas, and derived artifacts. The per-collection
// cascades run concurrently; the call returns after all of them settle,
// surfacing the first failure. Dropping an already-gone database is a
// no-op, so a repeated drop does not error.
func (m *Manager) DropDatabase(ctx context.Context, callerID, databaseID string) error {
	db, err := m.store.GetDatabase(databaseID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if db.OwnerID != callerID {
		return fault.Permission("database %s is not owned by caller", databaseID)
	}

	cols, err := m.store.ListCollections(databaseID)
	if err != nil {
		return fmt.Errorf("listing collections for drop: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, col := range cols {
		col := col
		g.Go(func() error {
			return m.cascadeCollection(gCtx, col)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return m.store.DeleteDatabase(databaseID)
}

// cascadeCollection removes a collection record together with its
// documents, schema, embedding, search entry, and (best effort) its last
// published snapshot. Every step is idempotent.
func (m *Manager) cascadeCollection(ctx context.Context, col storage.Collection) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.store.DeleteDocumentsByCollection(col.ID) })
	g.Go(func() error { return m.store.DeleteSchema(col.ID) })
	g.Go(func() error { return m.store.DeleteCollection(col.ID) })
	if m.vectors != nil {
		g.Go(func() error { return m.vectors.Delete(col.ID) })
	}
	if m.search != nil {
		g.Go(func() error { return m.search.Delete(gCtx, col.ID) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.deleteAsset(ctx, col)
	return nil
}

// deleteAsset removes the last published CSV snapshot, if any. Best effort:
// a leftover snapshot is the same accepted storage growth as superseded
// snapshots.
func (m *Manager) deleteAsset(ctx context.Context, col storage.Collection) {
	if m.objects == nil || col.AssetURL == "" {
		return
	}
	key := assetKey(col)
	if key == "" {
		return
	}
	if err := m.objects.Delete(ctx, key); err != nil {
		m.logger.Warn("deleting published snapshot failed", "collection", col.ID, "key", key, "error", err)
	}
}

// assetKey recovers the object key from a published snapshot URL. Snapshot
// keys are always four path segments (tenant/owner/database/file), so the
// key is the URL path's trailing four segments.
func assetKey(col storage.Collection) string {
	u, err := url.Parse(col.AssetURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 {
		return ""
	}
	return strings.Join(parts[len(parts)-4:], "/")
}
