package dataset

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mensah/datashelf/internal/diff"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/storage"
)

func censusSchema() []schema.Field {
	return []schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeNumber},
		{Name: "region", Type: schema.TypeString},
	}
}

func TestSaveCensusEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")

	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	// Editor cells arrive as strings; "bad" is not a number.
	got, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
		{"name": "Kofi", "age": "bad", "region": "Accra"},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusPublished, got.Metadata.Status)
	assert.Equal(t, 1, f.pipeline.calls)

	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Ama", docs[0].Payload["name"])
	assert.Equal(t, 34.0, docs[0].Payload["age"])
	assert.Equal(t, "Tema", docs[0].Payload["region"])

	badAge, ok := docs[1].Payload["age"].(float64)
	require.True(t, ok)
	assert.True(t, math.IsNaN(badAge))
}

func TestSaveEchoedSnapshotWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)

	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	id := docs[0].ID

	// The editor echoes the row back with the stored id and the numeric
	// cell re-stringified. Coercion before diffing keeps this a no-op.
	_, err = f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{diff.IDKey: id, "name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)

	docs, err = f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, 34.0, docs[0].Payload["age"])
}

func TestSaveEditUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Accra"},
	}, false)
	require.NoError(t, err)
	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	id := docs[0].ID

	_, err = f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{diff.IDKey: id, "name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)

	docs, err = f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Equal(t, "Tema", docs[0].Payload["region"])
}

func TestSaveRowMissingFromSnapshotIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
		{"name": "Kofi", "age": "20", "region": "Accra"},
	}, false)
	require.NoError(t, err)

	// A partial snapshot (e.g. a filtered editor view) must not delete
	// the rows it omits.
	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	_, err = f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{diff.IDKey: docs[0].ID, "name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)

	n, err := f.store.CountDocuments(db.ID, col.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveWithoutSchemaIsValidationError(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")

	_, err := f.manager.Save(context.Background(), "u1", col.ID, []diff.Record{{"x": "1"}}, false)
	assert.True(t, errors.Is(err, fault.ErrValidation))
}

func TestSaveWithoutPublishFlipsPublishedBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	got, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
	}, true)
	require.NoError(t, err)
	require.Equal(t, storage.StatusPublished, got.Metadata.Status)

	got, err = f.manager.Save(ctx, "u1", col.ID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnpublished, got.Metadata.Status)
}

func TestSavePipelineFailurePropagatesAfterWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	f.pipeline.err = errors.New("metadata write failed")
	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
	}, true)
	require.Error(t, err)

	// The documents landed before the pipeline ran; a retry publishes the
	// same rows.
	n, err := f.store.CountDocuments(db.ID, col.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveConcurrentLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)
	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	id := docs[0].ID

	// Two snapshots race on the same row. There is no locking or version
	// counter; whichever write lands last is the one that sticks.
	var g errgroup.Group
	for _, region := range []string{"Accra", "Kumasi"} {
		g.Go(func() error {
			_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
				{diff.IDKey: id, "name": "Ama", "age": "34", "region": region},
			}, false)
			return err
		})
	}
	require.NoError(t, g.Wait())

	docs, err = f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)
	assert.Contains(t, []any{"Accra", "Kumasi"}, docs[0].Payload["region"])
}

func TestSetSchemaRequiresCollection(t *testing.T) {
	f := newFixture(t)

	err := f.manager.SetSchema(context.Background(), "u1", "ghost", censusSchema())
	assert.True(t, errors.Is(err, fault.ErrNotFound))
}

func TestSetSchemaRejectsInvalidFields(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")

	err := f.manager.SetSchema(context.Background(), "u1", col.ID, []schema.Field{
		{Name: "a", Type: schema.TypeString},
		{Name: "a", Type: schema.TypeNumber},
	})
	assert.True(t, errors.Is(err, fault.ErrValidation))
}

func TestSetSchemaRenameMigratesDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, censusSchema()))

	_, err := f.manager.Save(ctx, "u1", col.ID, []diff.Record{
		{"name": "Ama", "age": "34", "region": "Tema"},
	}, false)
	require.NoError(t, err)

	renamed := []schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeNumber},
		{Name: "location", Type: schema.TypeString},
	}
	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, renamed))

	fields, err := f.manager.GetSchema(ctx, "u1", col.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed, fields)

	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Tema", docs[0].Payload["location"])
	assert.NotContains(t, docs[0].Payload, "region")
}

func TestGetSchemaMissingIsEmpty(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Census")

	fields, err := f.manager.GetSchema(context.Background(), "u1", col.ID)
	require.NoError(t, err)
	assert.Empty(t, fields)
}
