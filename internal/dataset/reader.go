package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mensah/datashelf/internal/coerce"
	"github.com/mensah/datashelf/internal/diff"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/identity"
	"github.com/mensah/datashelf/internal/storage"
)

const (
	// defaultPageSize is the page length of paginated document reads.
	defaultPageSize = 10

	// sampleLimit caps the preview rows embedded in a public dataset view.
	sampleLimit = 20

	// searchTopK is how many semantic matches are considered per query.
	searchTopK = 10
)

// Page is one page of a collection's documents plus the total count.
type Page struct {
	Documents []storage.Document `json:"documents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
}

// Paginate returns one page of a collection's documents in insertion
// order. Pages are 0-based; negative indexes mean the first page.
func (m *Manager) Paginate(ctx context.Context, callerID, collectionID string, page int) (Page, error) {
	col, err := m.requireOwner(collectionID, callerID)
	if err != nil {
		return Page{}, err
	}
	if page < 0 {
		page = 0
	}

	total, err := m.store.CountDocuments(col.DatabaseID, col.ID)
	if err != nil {
		return Page{}, fmt.Errorf("counting documents: %w", err)
	}
	docs, err := m.store.FindDocuments(col.DatabaseID, col.ID, defaultPageSize, page*defaultPageSize)
	if err != nil {
		return Page{}, fmt.Errorf("loading page %d: %w", page, err)
	}
	for i := range docs {
		docs[i].Payload = sampleRecord(docs[i].Payload)
	}
	return Page{Documents: docs, Total: total, Page: page, PageSize: defaultPageSize}, nil
}

// Listing is a catalog entry: a published collection joined with its
// uploader's public profile. Uploader may be zero-valued when the identity
// directory cannot resolve the owner; the listing is still served.
type Listing struct {
	Collection storage.Collection `json:"collection"`
	Uploader   identity.User      `json:"uploader"`
}

// Published lists the catalog of published collections, optionally filtered
// by category. Uploader profiles resolve concurrently; a failed resolution
// degrades that entry instead of failing the listing.
func (m *Manager) Published(ctx context.Context, category string) ([]Listing, error) {
	cols, err := m.store.ListPublished(category)
	if err != nil {
		return nil, err
	}
	return m.withUploaders(ctx, cols), nil
}

// withUploaders joins collections with owner profiles from the identity
// directory. Order is preserved.
func (m *Manager) withUploaders(ctx context.Context, cols []storage.Collection) []Listing {
	listings := make([]Listing, len(cols))
	for i, col := range cols {
		listings[i] = Listing{Collection: col}
	}
	if m.users == nil {
		return listings
	}

	// Resolve each distinct owner once.
	owners := make(map[string][]int)
	for i, col := range cols {
		owners[col.OwnerID] = append(owners[col.OwnerID], i)
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for ownerID, idxs := range owners {
		ownerID, idxs := ownerID, idxs
		g.Go(func() error {
			u, err := m.users.Resolve(gCtx, ownerID)
			if err != nil {
				m.logger.Warn("resolving uploader failed", "owner", ownerID, "error", err)
				return nil
			}
			mu.Lock()
			for _, i := range idxs {
				listings[i].Uploader = u
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return listings
}

// View is the public dataset page: metadata, a sample of the rows, and
// download facts.
type View struct {
	Collection storage.Collection `json:"collection"`
	Uploader   identity.User      `json:"uploader"`
	Sample     []diff.Record      `json:"sample"`
	Total      int                `json:"total"`
	Formats    []string           `json:"formats"`
}

// DatasetView serves the public page for a published collection, looked up
// by slug. The sample holds at most sampleLimit rows with internal ids
// stripped.
func (m *Manager) DatasetView(ctx context.Context, slug string) (View, error) {
	col, err := m.store.GetCollectionBySlug(slug)
	if err != nil {
		return View{}, err
	}

	total, err := m.store.CountDocuments(col.DatabaseID, col.ID)
	if err != nil {
		return View{}, fmt.Errorf("counting documents: %w", err)
	}
	docs, err := m.store.FindDocuments(col.DatabaseID, col.ID, sampleLimit, 0)
	if err != nil {
		return View{}, fmt.Errorf("loading sample: %w", err)
	}
	sample := make([]diff.Record, 0, len(docs))
	for _, d := range docs {
		sample = append(sample, sampleRecord(d.Payload))
	}

	view := View{
		Collection: col,
		Sample:     sample,
		Total:      total,
		Formats:    []string{"CSV"},
	}
	if m.users != nil {
		if u, err := m.users.Resolve(ctx, col.OwnerID); err == nil {
			view.Uploader = u
		} else {
			m.logger.Warn("resolving uploader failed", "owner", col.OwnerID, "error", err)
		}
	}
	return view, nil
}

// sampleRecord copies a payload for the public view. NaN cells (failed
// number coercions) are rendered as the canonical "NaN" string because they
// cannot survive JSON encoding.
func sampleRecord(payload map[string]any) diff.Record {
	rec := make(diff.Record, len(payload))
	for k, v := range payload {
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			rec[k] = coerce.Canonical(f)
			continue
		}
		rec[k] = v
	}
	return rec
}

// Search finds published collections matching q. Semantic search over
// metadata embeddings is tried first; when the embedding provider or the
// vector index is unavailable the keyword index answers instead, so search
// never hard-fails on a degraded embedder.
func (m *Manager) Search(ctx context.Context, q string) ([]Listing, error) {
	if q == "" {
		return m.Published(ctx, "")
	}

	ids, err := m.semanticSearch(ctx, q)
	if err != nil {
		m.logger.Warn("semantic search unavailable, falling back to keywords", "error", err)
		ids, err = m.keywordSearch(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	cols := make([]storage.Collection, 0, len(ids))
	for _, id := range ids {
		col, err := m.store.GetCollection(id)
		if errors.Is(err, fault.ErrNotFound) {
			continue // index lag after a drop
		}
		if err != nil {
			return nil, err
		}
		if col.Metadata.Status != storage.StatusPublished {
			continue
		}
		cols = append(cols, col)
	}
	return m.withUploaders(ctx, cols), nil
}

func (m *Manager) semanticSearch(ctx context.Context, q string) ([]string, error) {
	if m.embedder == nil || m.vectors == nil {
		return nil, errors.New("semantic search is not configured")
	}
	vector, err := m.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	matches, err := m.vectors.Search(vector, searchTopK)
	if err != nil {
		return nil, fmt.Errorf("searching embeddings: %w", err)
	}
	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.CollectionID)
	}
	return ids, nil
}

func (m *Manager) keywordSearch(ctx context.Context, q string) ([]string, error) {
	if m.search == nil {
		return nil, errors.New("keyword search is not configured")
	}
	return m.search.Query(ctx, q, searchTopK)
}

// Categories lists the distinct categories across published collections.
func (m *Manager) Categories(ctx context.Context) ([]string, error) {
	return m.store.Categories()
}
