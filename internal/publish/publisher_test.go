package publish

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensah/datashelf/internal/embeddings"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/search"
	"github.com/mensah/datashelf/internal/storage"
)

type fakeStore struct {
	docs      []storage.Document
	findErr   error
	updateErr error
	updated   []storage.Collection
}

func (f *fakeStore) FindDocuments(databaseID, collectionID string, limit, skip int) ([]storage.Document, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.docs, nil
}

func (f *fakeStore) UpdateCollection(c storage.Collection) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, c)
	return nil
}

type fakeObjects struct {
	putErr error
	puts   map[string][]byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = content
	return nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error { return nil }

func (f *fakeObjects) PublicURL(key string) string { return "http://assets.test/" + key }

type fakeEmbedder struct {
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }

type fakeVectors struct {
	err      error
	upserted []embeddings.Embedding
}

func (f *fakeVectors) Upsert(e embeddings.Embedding) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, e)
	return nil
}

type fakeSearch struct {
	entries []search.Entry
}

func (f *fakeSearch) Upsert(ctx context.Context, e search.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func testCollection() storage.Collection {
	return storage.Collection{
		ID:         "c1",
		DatabaseID: "db1",
		OwnerID:    "u1",
		Name:       "Census",
		Slug:       "census_ama",
		Metadata: storage.Metadata{
			Title:       "Census",
			Description: "Population data",
			Tags:        []string{"population"},
			Category:    "Government",
			AccessType:  storage.AccessFree,
			Status:      storage.StatusUnpublished,
		},
	}
}

func testFields() []schema.Field {
	return []schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeNumber},
	}
}

func TestPublishHappyPath(t *testing.T) {
	store := &fakeStore{docs: []storage.Document{
		{ID: "d1", Payload: map[string]any{"name": "Ama", "age": 34.0}},
	}}
	objects := &fakeObjects{}
	embedder := &fakeEmbedder{}
	vectors := &fakeVectors{}
	searchIdx := &fakeSearch{}

	p := New(store, objects, embedder, vectors, searchIdx, "tenant1")
	got, err := p.Publish(context.Background(), testCollection(), testFields())
	require.NoError(t, err)

	assert.Equal(t, storage.StatusPublished, got.Metadata.Status)
	assert.True(t, strings.HasPrefix(got.AssetURL, "http://assets.test/tenant1/u1/db1/c1-"))
	assert.True(t, strings.HasSuffix(got.AssetURL, ".csv"))

	require.Len(t, store.updated, 1)
	assert.Equal(t, storage.StatusPublished, store.updated[0].Metadata.Status)

	require.Len(t, vectors.upserted, 1)
	assert.Equal(t, "c1", vectors.upserted[0].CollectionID)
	assert.Equal(t, "test-model", vectors.upserted[0].Model)

	require.Len(t, searchIdx.entries, 1)
	assert.Equal(t, "Census", searchIdx.entries[0].Title)

	require.Len(t, objects.puts, 1)
	for _, content := range objects.puts {
		assert.Equal(t, "name,age\nAma,34\n", string(content))
	}
}

func TestPublishSnapshotFailureKeepsPriorAssetURL(t *testing.T) {
	store := &fakeStore{}
	objects := &fakeObjects{putErr: errors.New("bucket down")}

	col := testCollection()
	col.AssetURL = "http://assets.test/tenant1/u1/db1/c1-100.csv"

	p := New(store, objects, nil, nil, nil, "tenant1")
	got, err := p.Publish(context.Background(), col, testFields())
	require.NoError(t, err)

	// Still published, and the previous snapshot URL survives.
	assert.Equal(t, storage.StatusPublished, got.Metadata.Status)
	assert.Equal(t, col.AssetURL, got.AssetURL)
}

func TestPublishStoreReadFailureAborts(t *testing.T) {
	store := &fakeStore{findErr: errors.New("disk error")}

	p := New(store, &fakeObjects{}, nil, nil, nil, "t")
	_, err := p.Publish(context.Background(), testCollection(), testFields())
	require.Error(t, err)
	assert.Empty(t, store.updated)
}

func TestPublishMetadataWriteFailureAborts(t *testing.T) {
	store := &fakeStore{updateErr: errors.New("write failed")}

	p := New(store, &fakeObjects{}, nil, nil, nil, "t")
	_, err := p.Publish(context.Background(), testCollection(), testFields())
	require.Error(t, err)
}

func TestPublishEmbedderFailureIsSoft(t *testing.T) {
	store := &fakeStore{}
	embedder := &fakeEmbedder{err: errors.New("model not loaded")}
	vectors := &fakeVectors{}

	p := New(store, &fakeObjects{}, embedder, vectors, &fakeSearch{}, "t")
	got, err := p.Publish(context.Background(), testCollection(), testFields())
	require.NoError(t, err)

	assert.Equal(t, storage.StatusPublished, got.Metadata.Status)
	assert.Empty(t, vectors.upserted)
}

func TestBuildCSVSchemaOrderAndCanonicalCells(t *testing.T) {
	fields := []schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeNumber},
		{Name: "active", Type: schema.TypeBoolean},
	}
	docs := []storage.Document{
		{Payload: map[string]any{"name": "Ama", "age": 34.0, "active": true, "stray": "x"}},
		{Payload: map[string]any{"name": "Kofi", "age": math.NaN(), "active": false}},
		{Payload: map[string]any{"name": "Esi"}}, // missing keys render empty
	}

	got := string(BuildCSV(fields, docs))
	want := "name,age,active\n" +
		"Ama,34,true\n" +
		"Kofi,NaN,false\n" +
		"Esi,,\n"
	assert.Equal(t, want, got)
}

func TestEmbedTextFormat(t *testing.T) {
	meta := storage.Metadata{
		Title:           "Census",
		Description:     "Short",
		FullDescription: "Long",
		Tags:            []string{"population", "ghana"},
	}
	fields := []schema.Field{
		{Name: "name", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeNumber},
	}

	got := EmbedText(meta, fields)
	assert.Contains(t, got, "Census.")
	assert.Contains(t, got, "Schema: name (string), age (number).")
	assert.Contains(t, got, "Tags: population, ghana.")
}
