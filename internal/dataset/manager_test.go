package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensah/datashelf/internal/embeddings"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/identity"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/search"
	"github.com/mensah/datashelf/internal/storage"
)

type fakeResolver struct {
	users map[string]identity.User
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string) (identity.User, error) {
	if f.err != nil {
		return identity.User{}, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return identity.User{}, fault.NotFound("user %s", userID)
	}
	return u, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }

// fakePipeline persists the Published flip like the real publisher but
// skips snapshot, embedding, and indexing side effects.
type fakePipeline struct {
	store *storage.Store
	calls int
	err   error
}

func (f *fakePipeline) Publish(ctx context.Context, col storage.Collection, fields []schema.Field) (storage.Collection, error) {
	f.calls++
	if f.err != nil {
		return storage.Collection{}, f.err
	}
	col.Metadata.Status = storage.StatusPublished
	if err := f.store.UpdateCollection(col); err != nil {
		return storage.Collection{}, err
	}
	return col, nil
}

type fixture struct {
	store    *storage.Store
	manager  *Manager
	pipeline *fakePipeline
	vectors  *embeddings.Index
	search   *search.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pipeline := &fakePipeline{store: store}
	vectors := embeddings.NewIndex(store.DB())
	searchIdx := search.NewIndex(store.DB())
	resolver := &fakeResolver{users: map[string]identity.User{
		"u1": {ID: "u1", Username: "ama"},
	}}

	manager := NewManager(Deps{
		Store:    store,
		Pipeline: pipeline,
		Users:    resolver,
		Embedder: &fakeEmbedder{vector: []float32{1, 0}},
		Vectors:  vectors,
		Search:   searchIdx,
	})
	return &fixture{store: store, manager: manager, pipeline: pipeline, vectors: vectors, search: searchIdx}
}

func (f *fixture) seedDatabase(t *testing.T, owner string) storage.Database {
	t.Helper()
	db, err := f.manager.CreateDatabase(context.Background(), owner, "testdb", "")
	require.NoError(t, err)
	return db
}

func (f *fixture) seedCollection(t *testing.T, owner, databaseID, title string) storage.Collection {
	t.Helper()
	col, err := f.manager.CreateCollection(context.Background(), owner, databaseID, title)
	require.NoError(t, err)
	return col
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ghana_census_2020-ama", Slugify("Ghana Census 2020", "ama"))
	assert.Equal(t, "x-u1", Slugify("X", "u1"))
}

func TestCreateCollectionDerivesSlugFromUsername(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")

	col := f.seedCollection(t, "u1", db.ID, "Ghana Census")
	assert.Equal(t, "ghana_census-ama", col.Slug)
	assert.Equal(t, storage.StatusUnpublished, col.Metadata.Status)
	assert.Equal(t, storage.AccessFree, col.Metadata.AccessType)
}

func TestCreateCollectionUntitledFallback(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")

	first := f.seedCollection(t, "u1", db.ID, "")
	second := f.seedCollection(t, "u1", db.ID, "")

	assert.Equal(t, "Untitled 1", first.Name)
	assert.Equal(t, "Untitled 2", second.Name)
	assert.NotEqual(t, first.Slug, second.Slug)
}

func TestCreateCollectionUnresolvableOwnerFallsBackToID(t *testing.T) {
	f := newFixture(t)
	db, err := f.manager.CreateDatabase(context.Background(), "u2", "db", "")
	require.NoError(t, err)

	// u2 is not in the directory; the slug uses the raw owner id.
	col, err := f.manager.CreateCollection(context.Background(), "u2", db.ID, "Data")
	require.NoError(t, err)
	assert.Equal(t, "data-u2", col.Slug)
}

func TestOwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Data")

	ctx := context.Background()

	_, err := f.manager.CreateCollection(ctx, "intruder", db.ID, "X")
	assert.True(t, errors.Is(err, fault.ErrPermission))

	_, err = f.manager.UpdateCollection(ctx, "intruder", col.ID, CollectionPatch{})
	assert.True(t, errors.Is(err, fault.ErrPermission))

	err = f.manager.DropCollection(ctx, "intruder", col.ID)
	assert.True(t, errors.Is(err, fault.ErrPermission))

	err = f.manager.DropDatabase(ctx, "intruder", db.ID)
	assert.True(t, errors.Is(err, fault.ErrPermission))
}

func TestUpdateCollectionPatch(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Data")

	desc := "short"
	paid := storage.AccessPaid
	got, err := f.manager.UpdateCollection(context.Background(), "u1", col.ID, CollectionPatch{
		Description: &desc,
		AccessType:  &paid,
	})
	require.NoError(t, err)
	assert.Equal(t, "short", got.Metadata.Description)
	assert.Equal(t, storage.AccessPaid, got.Metadata.AccessType)
	// Untouched fields survive.
	assert.Equal(t, "Data", got.Metadata.Title)
	assert.Equal(t, col.Slug, got.Slug)
}

func TestUpdateCollectionTitleRecomputesSlug(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Old Name")

	title := "New Name"
	got, err := f.manager.UpdateCollection(context.Background(), "u1", col.ID, CollectionPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new_name-ama", got.Slug)
	assert.Equal(t, "New Name", got.Name)
}

func TestUpdateCollectionRejectsDirectPublish(t *testing.T) {
	f := newFixture(t)
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Data")

	status := storage.StatusPublished
	_, err := f.manager.UpdateCollection(context.Background(), "u1", col.ID, CollectionPatch{Status: &status})
	assert.True(t, errors.Is(err, fault.ErrValidation))

	pending := storage.StatusPending
	got, err := f.manager.UpdateCollection(context.Background(), "u1", col.ID, CollectionPatch{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, got.Metadata.Status)
}

func TestDropCollectionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Data")

	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, []schema.Field{{Name: "v", Type: schema.TypeNumber}}))
	_, err := f.manager.Save(ctx, "u1", col.ID, []map[string]any{{"v": "1"}}, false)
	require.NoError(t, err)
	require.NoError(t, f.vectors.Upsert(embeddings.Embedding{CollectionID: col.ID, Model: "m", Vector: []float32{1}}))
	require.NoError(t, f.search.Upsert(ctx, search.Entry{CollectionID: col.ID, Title: "Data"}))

	require.NoError(t, f.manager.DropCollection(ctx, "u1", col.ID))

	_, err = f.store.GetCollection(col.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	n, err := f.store.CountDocuments(db.ID, col.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.store.Schema(db.ID, col.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	_, err = f.vectors.Get(col.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound))

	ids, err := f.search.Query(ctx, "data", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Dropping again is a no-op.
	assert.NoError(t, f.manager.DropCollection(ctx, "u1", col.ID))
}

func TestDropDatabaseCascadesAllCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	c1 := f.seedCollection(t, "u1", db.ID, "One")
	c2 := f.seedCollection(t, "u1", db.ID, "Two")

	require.NoError(t, f.manager.SetSchema(ctx, "u1", c1.ID, []schema.Field{{Name: "v", Type: schema.TypeString}}))
	_, err := f.manager.Save(ctx, "u1", c1.ID, []map[string]any{{"v": "x"}}, false)
	require.NoError(t, err)

	require.NoError(t, f.manager.DropDatabase(ctx, "u1", db.ID))

	_, err = f.store.GetDatabase(db.ID)
	assert.True(t, errors.Is(err, fault.ErrNotFound))
	for _, id := range []string{c1.ID, c2.ID} {
		_, err = f.store.GetCollection(id)
		assert.True(t, errors.Is(err, fault.ErrNotFound))
	}
	n, err := f.store.CountDocuments(db.ID, c1.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Idempotent second drop.
	assert.NoError(t, f.manager.DropDatabase(ctx, "u1", db.ID))
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	db := f.seedDatabase(t, "u1")
	col := f.seedCollection(t, "u1", db.ID, "Data")
	other := f.seedCollection(t, "u1", db.ID, "Other")

	require.NoError(t, f.manager.SetSchema(ctx, "u1", col.ID, []schema.Field{{Name: "v", Type: schema.TypeString}}))
	_, err := f.manager.Save(ctx, "u1", col.ID, []map[string]any{{"v": "x"}, {"v": "y"}}, false)
	require.NoError(t, err)

	docs, err := f.store.FindDocuments(db.ID, col.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// A document id paired with the wrong collection is rejected.
	err = f.manager.DeleteDocument(ctx, "u1", other.ID, docs[0].ID)
	assert.True(t, errors.Is(err, fault.ErrValidation))

	require.NoError(t, f.manager.DeleteDocument(ctx, "u1", col.ID, docs[0].ID))
	n, err := f.store.CountDocuments(db.ID, col.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Deleting a gone document is a no-op.
	assert.NoError(t, f.manager.DeleteDocument(ctx, "u1", col.ID, docs[0].ID))
}

func TestDatabaseLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	db, err := f.manager.CreateDatabase(ctx, "u1", "mydb", "desc")
	require.NoError(t, err)
	assert.NotEmpty(t, db.ID)
	assert.Equal(t, "mydb", db.Name)

	_, err = f.manager.CreateDatabase(ctx, "u1", "", "")
	assert.True(t, errors.Is(err, fault.ErrValidation))

	updated, err := f.manager.UpdateDatabase(ctx, "u1", db.ID, "renamed", "newdesc")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	dbs, err := f.manager.ListDatabases(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, dbs, 1)
}
