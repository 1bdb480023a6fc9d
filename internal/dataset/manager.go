// Package dataset owns the collection lifecycle: database/collection CRUD
// with ownership checks, the Unpublished/Pending/Published state machine,
// the save path that reconciles editor snapshots against the store, and the
// read façade serving public dataset views.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mensah/datashelf/internal/embeddings"
	"github.com/mensah/datashelf/internal/fault"
	"github.com/mensah/datashelf/internal/identity"
	"github.com/mensah/datashelf/internal/objstore"
	"github.com/mensah/datashelf/internal/schema"
	"github.com/mensah/datashelf/internal/storage"
)

// Pipeline is the publication side-effect chain triggered by a save with
// publish intent.
type Pipeline interface {
	Publish(ctx context.Context, col storage.Collection, fields []schema.Field) (storage.Collection, error)
}

// Embedder generates embedding vectors for semantic dataset search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity-search slice of the embedding index.
type VectorIndex interface {
	Search(vector []float32, topK int) ([]embeddings.Match, error)
	Delete(collectionID string) error
}

// SearchIndex is the keyword index slice the manager needs.
type SearchIndex interface {
	Query(ctx context.Context, q string, limit int) ([]string, error)
	Delete(ctx context.Context, collectionID string) error
}

// Manager wires the store, the publication pipeline, and the external
// collaborators behind the collection lifecycle operations.
type Manager struct {
	store    *storage.Store
	pipeline Pipeline
	users    identity.Resolver
	embedder Embedder
	vectors  VectorIndex
	search   SearchIndex
	objects  objstore.Storage
	logger   *slog.Logger
}

// Deps holds the manager's collaborators. Store is required; everything
// else may be nil, degrading the corresponding feature (no publishing, no
// uploader info, no semantic search).
type Deps struct {
	Store    *storage.Store
	Pipeline Pipeline
	Users    identity.Resolver
	Embedder Embedder
	Vectors  VectorIndex
	Search   SearchIndex
	Objects  objstore.Storage
}

// NewManager creates a Manager from its dependencies.
func NewManager(deps Deps) *Manager {
	return &Manager{
		store:    deps.Store,
		pipeline: deps.Pipeline,
		users:    deps.Users,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		search:   deps.Search,
		objects:  deps.Objects,
		logger:   slog.Default(),
	}
}

// Slugify derives the public slug from a title and the owner's username:
// lowercase, spaces to underscores. Human-legible, not cryptographically
// unique; title+username collisions are accepted as a known limitation
// since usernames are unique upstream.
func Slugify(title, username string) string {
	s := strings.ToLower(title + "-" + username)
	return strings.ReplaceAll(s, " ", "_")
}

// username resolves the owner's username for slug derivation, falling back
// to the raw owner id when the directory cannot resolve the user.
func (m *Manager) username(ctx context.Context, ownerID string) string {
	if m.users == nil {
		return ownerID
	}
	u, err := m.users.Resolve(ctx, ownerID)
	if err != nil || u.Username == "" {
		m.logger.Warn("could not resolve owner username for slug", "owner", ownerID, "error", err)
		return ownerID
	}
	return u.Username
}

// requireOwner loads a collection and enforces that callerID owns it.
func (m *Manager) requireOwner(collectionID, callerID string) (storage.Collection, error) {
	col, err := m.store.GetCollection(collectionID)
	if err != nil {
		return storage.Collection{}, err
	}
	if col.OwnerID != callerID {
		return storage.Collection{}, fault.Permission("collection %s is not owned by caller", collectionID)
	}
	return col, nil
}

// requireDatabaseOwner loads a database and enforces that callerID owns it.
func (m *Manager) requireDatabaseOwner(databaseID, callerID string) (storage.Database, error) {
	db, err := m.store.GetDatabase(databaseID)
	if err != nil {
		return storage.Database{}, err
	}
	if db.OwnerID != callerID {
		return storage.Database{}, fault.Permission("database %s is not owned by caller", databaseID)
	}
	return db, nil
}

// validStatus reports whether s is a known collection status.
func validStatus(s string) bool {
	switch s {
	case storage.StatusUnpublished, storage.StatusPending, storage.StatusPublished:
		return true
	}
	return false
}

// validAccessType reports whether s is a known access type.
func validAccessType(s string) bool {
	return s == storage.AccessFree || s == storage.AccessPaid
}

func untitled(n int) string {
	return fmt.Sprintf("Untitled %d", n)
}
