package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mensah/datashelf/internal/coerce"
	"github.com/mensah/datashelf/internal/diff"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/storage"
)

// CreateCollection adds an empty, unpublished collection to a database the
// caller owns. An empty title falls back to "Untitled {n}", n being one past
// the database's current collection count, so consecutive untitled
// collections do not collide on slug.
func (m *Manager) CreateCollection(ctx context.Context, callerID, databaseID, title string) (storage.Collection, error) {
	db, err := m.requireDatabaseOwner(databaseID, callerID)
	if err != nil {
		return storage.Collection{}, err
	}

	if title == "" {
		existing, err := m.store.ListCollections(databaseID)
		if err != nil {
			return storage.Collection{}, fmt.Errorf("counting collections: %w", err)
		}
		title = untitled(len(existing) + 1)
	}

	col := storage.Collection{
		ID:         uuid.New().String(),
		DatabaseID: databaseID,
		OwnerID:    db.OwnerID,
		Name:       title,
		Slug:       Slugify(title, m.username(ctx, db.OwnerID)),
		Metadata: storage.Metadata{
			Title:      title,
			AccessType: storage.AccessFree,
			Status:     storage.StatusUnpublished,
		},
	}
	if err := m.store.CreateCollection(col); err != nil {
		return storage.Collection{}, fmt.Errorf("creating collection: %w", err)
	}
	return m.store.GetCollection(col.ID)
}

// GetCollection returns a collection the caller owns.
func (m *Manager) GetCollection(ctx context.Context, callerID, collectionID string) (storage.Collection, error) {
	return m.requireOwner(collectionID, callerID)
}

// ListCollections lists the collections of a database the caller owns.
func (m *Manager) ListCollections(ctx context.Context, callerID, databaseID string) ([]storage.Collection, error) {
	if _, err := m.requireDatabaseOwner(databaseID, callerID); err != nil {
		return nil, err
	}
	return m.store.ListCollections(databaseID)
}

// CollectionPatch carries the metadata fields of a collection update. Nil
// pointers leave the current value untouched.
type CollectionPatch struct {
	Title           *string
	Description     *string
	FullDescription *string
	Tags            *[]string
	Category        *string
	AccessType      *string
	Status          *string
}

// UpdateCollection applies a metadata patch to a collection the caller
// owns. A title change recomputes the public slug. Status may be toggled
// here between Unpublished and Pending only; the Published flip is owned by
// the publication pipeline.
func (m *Manager) UpdateCollection(ctx context.Context, callerID, collectionID string, patch CollectionPatch) (storage.Collection, error) {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return storage.Collection{}, err
	}

	if patch.Title != nil {
		if *patch.Title == "" {
			return storage.Collection{}, fault.Validation("collection title must not be empty")
		}
		col.Name = *patch.Title
		col.Metadata.Title = *patch.Title
		col.Slug = Slugify(*patch.Title, m.username(ctx, col.OwnerID))
	}
	if patch.Description != nil {
		col.Metadata.Description = *patch.Description
	}
	if patch.FullDescription != nil {
		col.Metadata.FullDescription = *patch.FullDescription
	}
	if patch.Tags != nil {
		col.Metadata.Tags = *patch.Tags
	}
	if patch.Category != nil {
		col.Metadata.Category = *patch.Category
	}
	if patch.AccessType != nil {
		if !validAccessType(*patch.AccessType) {
			return storage.Collection{}, fault.Validation("unknown access type %q", *patch.AccessType)
		}
		col.Metadata.AccessType = *patch.AccessType
	}
	if patch.Status != nil {
		if !validStatus(*patch.Status) {
			return storage.Collection{}, fault.Validation("unknown status %q", *patch.Status)
		}
		if *patch.Status == storage.StatusPublished {
			return storage.Collection{}, fault.Validation("status cannot be set to Published directly; save with publish intent instead")
		}
		col.Metadata.Status = *patch.Status
	}

	if err := m.store.UpdateCollection(col); err != nil {
		return storage.Collection{}, err
	}
	return m.store.GetCollection(collectionID)
}

// DropCollection deletes a collection the caller owns, cascading to its
// documents, schema, embedding, search entry, and published snapshot.
// Dropping a collection that is already gone is a no-op.
func (m *Manager) DropCollection(ctx context.Context, callerID, collectionID string) error {
	col, err := m.store.GetCollection(collectionID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if col.OwnerID != callerID {
		return fault.Permission("collection %s is not owned by caller", collectionID)
	}
	return m.cascadeCollection(ctx, col)
}

// SetSchema replaces a collection's schema. The collection must exist, and
// the field list must pass validation. A field whose name changed while its
// position and type stayed put is treated as a rename: every stored
// document has the old key migrated to the new one before the schema is
// committed.
func (m *Manager) SetSchema(ctx context.Context, callerID, collectionID string, fields []schema.Field) error {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return err
	}
	if err := schema.Validate(fields); err != nil {
		return err
	}

	old, err := m.store.Schema(col.DatabaseID, col.ID)
	if err != nil && !errors.Is(err, fault.ErrNotFound) {
		return err
	}
	if renames := schema.Renames(old, fields); len(renames) > 0 {
		if err := m.store.MigrateDocumentKeys(col.DatabaseID, col.ID, renames); err != nil {
			return fmt.Errorf("migrating document keys: %w", err)
		}
	}
	return m.store.SetSchema(col.DatabaseID, col.ID, fields)
}

// GetSchema returns a collection's schema in declaration order. A
// collection that never had a schema set yields an empty field list rather
// than an error.
func (m *Manager) GetSchema(ctx context.Context, callerID, collectionID string) ([]schema.Field, error) {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return nil, err
	}
	fields, err := m.store.Schema(col.DatabaseID, col.ID)
	if errors.Is(err, fault.ErrNotFound) {
		return []schema.Field{}, nil
	}
	return fields, err
}

// Save reconciles an edited snapshot of the collection's records against
// the store and optionally runs the publication pipeline.
//
// String cells are coerced to their schema-declared types before diffing,
// so an unedited numeric cell echoed back as "34" does not register as a
// change. Records without an id become inserts; records whose coerced
// payload differs from the stored one become upserts. Nothing is deleted.
//
// With publishIntent the publication pipeline runs after the writes; its
// hard failures abort the save with the documents already committed, which
// is safe because the next save retries publication over the same rows.
// Without publishIntent a currently Published collection is flipped back to
// Unpublished.
func (m *Manager) Save(ctx context.Context, callerID, collectionID string, edited []diff.Record, publishIntent bool) (storage.Collection, error) {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return storage.Collection{}, err
	}
	fields, err := m.store.Schema(col.DatabaseID, col.ID)
	if errors.Is(err, fault.ErrNotFound) {
		return storage.Collection{}, fault.Validation("collection %s has no schema; define one before saving documents", collectionID)
	}
	if err != nil {
		return storage.Collection{}, err
	}

	docs, err := m.store.FindDocuments(col.DatabaseID, col.ID, -1, 0)
	if err != nil {
		return storage.Collection{}, fmt.Errorf("loading current documents: %w", err)
	}
	original := make([]diff.Record, 0, len(docs))
	for _, d := range docs {
		rec := make(diff.Record, len(d.Payload)+1)
		for k, v := range d.Payload {
			rec[k] = v
		}
		rec[diff.IDKey] = d.ID
		original = append(original, rec)
	}

	coerced := make([]diff.Record, 0, len(edited))
	for _, rec := range edited {
		coerced = append(coerced, coerceRecord(rec, fields))
	}

	ws := diff.Compute(original, coerced)
	for _, rec := range ws.Inserts {
		if err := m.store.InsertDocument(storage.Document{
			ID:           uuid.New().String(),
			DatabaseID:   col.DatabaseID,
			CollectionID: col.ID,
			OwnerID:      col.OwnerID,
			Payload:      rec,
		}); err != nil {
			return storage.Collection{}, fmt.Errorf("inserting document: %w", err)
		}
	}
	for _, rec := range ws.Updates {
		id, _ := rec[diff.IDKey].(string)
		payload := make(map[string]any, len(rec))
		for k, v := range rec {
			if k == diff.IDKey {
				continue
			}
			payload[k] = v
		}
		if err := m.store.UpsertDocument(storage.Document{
			ID:           id,
			DatabaseID:   col.DatabaseID,
			CollectionID: col.ID,
			OwnerID:      col.OwnerID,
			Payload:      payload,
		}); err != nil {
			return storage.Collection{}, fmt.Errorf("updating document %s: %w", id, err)
		}
	}

	switch {
	case publishIntent && m.pipeline != nil:
		col, err = m.pipeline.Publish(ctx, col, fields)
		if err != nil {
			return storage.Collection{}, err
		}
	case publishIntent:
		return storage.Collection{}, fault.Dependency("publish", errors.New("publication pipeline is not configured"))
	case col.Metadata.Status == storage.StatusPublished:
		col.Metadata.Status = storage.StatusUnpublished
		if err := m.store.UpdateCollection(col); err != nil {
			return storage.Collection{}, err
		}
	}
	return m.store.GetCollection(col.ID)
}

// DeleteDocument removes a single record. This is the only path that
// deletes documents; the save diff never infers deletes. Missing documents
// are a no-op.
func (m *Manager) DeleteDocument(ctx context.Context, callerID, collectionID, documentID string) error {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return err
	}
	doc, err := m.store.GetDocument(documentID)
	if errors.Is(err, fault.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if doc.CollectionID != col.ID {
		return fault.Validation("document %s does not belong to collection %s", documentID, collectionID)
	}
	return m.store.DeleteDocument(documentID)
}

// coerceRecord applies schema-typed coercion to the string cells of an
// edited record. Non-string values (already-typed JSON payloads) and keys
// outside the schema pass through untouched.
func coerceRecord(rec diff.Record, fields []schema.Field) diff.Record {
	types := make(map[string]schema.FieldType, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}
	out := make(diff.Record, len(rec))
	for k, v := range rec {
		if k == diff.IDKey {
			out[k] = v
			continue
		}
		t, ok := types[k]
		if !ok {
			out[k] = v
			continue
		}
		if raw, isString := v.(string); isString && t != schema.TypeString {
			out[k] = coerce.Value(raw, t)
			continue
		}
		out[k] = v
	}
	return out
}
