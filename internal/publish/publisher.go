// Package publish orchestrates the side effects of publishing a collection
// as a public dataset: CSV snapshot upload, metadata flip, semantic
// embedding, and search indexing.
//
// There is no transaction across steps. The document write happens before
// this pipeline runs and hard-fails the whole save. Within the pipeline only
// the metadata write is load-bearing: snapshot upload, embedding, and
// indexing are best-effort, because the dataset is usably published once the
// metadata flip lands. Discovery staleness is preferable to blocking
// publication.
package publish

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mensah/datashelf/internal/coerce"
	"github.com/mensah/datashelf/internal/embeddings"
	"github.com/mensah/datashelf/internal/objstore"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/search"
	"github.com/mensah/datashelf/internal/storage"
)

// CollectionStore is the slice of the document store the pipeline needs.
type CollectionStore interface {
	FindDocuments(databaseID, collectionID string, limit, skip int) ([]storage.Document, error)
	UpdateCollection(c storage.Collection) error
}

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// VectorUpserter stores collection embeddings.
type VectorUpserter interface {
	Upsert(e embeddings.Embedding) error
}

// SearchUpserter maintains the keyword search index.
type SearchUpserter interface {
	Upsert(ctx context.Context, e search.Entry) error
}

// Publisher runs the publication pipeline.
type Publisher struct {
	store    CollectionStore
	objects  objstore.Storage
	embedder Embedder
	vectors  VectorUpserter
	search   SearchUpserter
	tenant   string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. tenant prefixes every snapshot key so multiple
// deployments can share one bucket. embedder, vectors, and search may be nil,
// in which case the corresponding best-effort step is skipped.
func New(store CollectionStore, objects objstore.Storage, embedder Embedder, vectors VectorUpserter, searchIdx SearchUpserter, tenant string) *Publisher {
	return &Publisher{
		store:    store,
		objects:  objects,
		embedder: embedder,
		vectors:  vectors,
		search:   searchIdx,
		tenant:   tenant,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish uploads a CSV snapshot of the full current document set, flips the
// collection to Published with the new asset URL, and refreshes the
// embedding and search index entries.
//
// The metadata write is the only step whose failure propagates. A failed
// snapshot upload keeps the prior asset URL; failed embedding or indexing is
// logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, col storage.Collection, fields []schema.Field) (storage.Collection, error) {
	// Snapshot the full current document set, not just the diff. A store
	// read failure aborts: the primary store misbehaving is not a
	// degraded-discovery situation.
	docs, err := p.store.FindDocuments(col.DatabaseID, col.ID, 0, 0)
	if err != nil {
		return storage.Collection{}, fmt.Errorf("reading documents for snapshot: %w", err)
	}

	content := BuildCSV(fields, docs)
	key := p.snapshotKey(col)
	if err := p.objects.Put(ctx, key, content, "text/csv"); err != nil {
		p.logger.Warn("publish: snapshot upload failed, keeping prior asset URL",
			"collection", col.ID, "key", key, "error", err)
	} else {
		col.AssetURL = p.objects.PublicURL(key)
	}

	col.Metadata.Status = storage.StatusPublished
	if err := p.store.UpdateCollection(col); err != nil {
		return storage.Collection{}, fmt.Errorf("updating collection metadata: %w", err)
	}

	p.refreshEmbedding(ctx, col, fields)
	p.refreshSearchEntry(ctx, col)

	return col, nil
}

// snapshotKey builds the deterministic storage key for a snapshot. The
// timestamp suffix means prior snapshots are never overwritten; they are
// also not garbage-collected, an accepted storage-growth tradeoff.
func (p *Publisher) snapshotKey(col storage.Collection) string {
	return fmt.Sprintf("%s/%s/%s/%s-%d.csv",
		p.tenant, col.OwnerID, col.DatabaseID, col.ID, p.now().Unix())
}

func (p *Publisher) refreshEmbedding(ctx context.Context, col storage.Collection, fields []schema.Field) {
	if p.embedder == nil || p.vectors == nil {
		return
	}
	vec, err := p.embedder.Embed(ctx, EmbedText(col.Metadata, fields))
	if err != nil {
		p.logger.Warn("publish: embedding generation failed", "collection", col.ID, "error", err)
		return
	}
	err = p.vectors.Upsert(embeddings.Embedding{
		CollectionID: col.ID,
		Model:        p.embedder.Model(),
		Vector:       vec,
	})
	if err != nil {
		p.logger.Warn("publish: embedding upsert failed", "collection", col.ID, "error", err)
	}
}

func (p *Publisher) refreshSearchEntry(ctx context.Context, col storage.Collection) {
	if p.search == nil {
		return
	}
	err := p.search.Upsert(ctx, search.Entry{
		CollectionID: col.ID,
		Title:        col.Metadata.Title,
		Description:  col.Metadata.Description,
		Tags:         col.Metadata.Tags,
		Category:     col.Metadata.Category,
	})
	if err != nil {
		p.logger.Warn("publish: search index upsert failed", "collection", col.ID, "error", err)
	}
}

// BuildCSV serializes documents to CSV using the schema's field order as
// column order and the canonical cell serialization for values. Stray
// payload keys outside the schema are not exported.
func BuildCSV(fields []schema.Field, docs []storage.Document) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	w.Write(header)

	row := make([]string, len(fields))
	for _, d := range docs {
		for i, f := range fields {
			row[i] = coerce.Canonical(d.Payload[f.Name])
		}
		w.Write(row)
	}

	w.Flush()
	return buf.Bytes()
}

// EmbedText builds the text whose embedding represents a dataset for
// semantic discovery: title, descriptions, schema summary, and tags.
func EmbedText(meta storage.Metadata, fields []schema.Field) string {
	var b strings.Builder
	b.WriteString(meta.Title)
	b.WriteString(".\n")
	b.WriteString(meta.Description)
	b.WriteString(".\n")
	b.WriteString(meta.FullDescription)
	b.WriteString(".\n")
	b.WriteString("Schema: ")
	b.WriteString(schema.Summary(fields))
	b.WriteString(".\n")
	b.WriteString("Tags: ")
	b.WriteString(strings.Join(meta.Tags, ", "))
	b.WriteString(".")
	return strings.TrimSpace(b.String())
}
