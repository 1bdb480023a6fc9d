// Package api exposes datashelf over HTTP: a public catalog surface for
// published datasets and a management surface for owners, plus an MCP
// server for dataset discovery from agent tooling.
package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mensah/datashelf/internal/dataset"
	"github.com/mensah/datashelf/internal/schema"
)

const maxBodySize = 10 << 20 // 10MB

// AppDeps holds the API layer's dependencies.
type AppDeps struct {
	Manager *dataset.Manager
}

// NewAppHandler builds the full datashelf router. Everything under
// /v1/datasets, /v1/search, and /v1/categories is public; the management
// routes require a caller identity.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	// Public catalog surface.
	r.Get("/v1/datasets", handleListDatasets(deps))
	r.Get("/v1/datasets/{slug}", handleDatasetView(deps))
	r.Get("/v1/search", handleSearch(deps))
	r.Get("/v1/categories", handleCategories(deps))

	// Management surface.
	r.Group(func(r chi.Router) {
		r.Use(RequireCaller)

		r.Post("/v1/databases", handleCreateDatabase(deps))
		r.Get("/v1/databases", handleListDatabases(deps))
		r.Get("/v1/databases/{id}", handleGetDatabase(deps))
		r.Patch("/v1/databases/{id}", handleUpdateDatabase(deps))
		r.Delete("/v1/databases/{id}", handleDropDatabase(deps))

		r.Post("/v1/databases/{id}/collections", handleCreateCollection(deps))
		r.Get("/v1/databases/{id}/collections", handleListCollections(deps))

		r.Get("/v1/collections/{id}", handleGetCollection(deps))
		r.Patch("/v1/collections/{id}", handleUpdateCollection(deps))
		r.Delete("/v1/collections/{id}", handleDropCollection(deps))

		r.Put("/v1/collections/{id}/schema", handleSetSchema(deps))
		r.Get("/v1/collections/{id}/schema", handleGetSchema(deps))

		r.Post("/v1/collections/{id}/save", handleSave(deps))
		r.Post("/v1/collections/{id}/import", handleImport(deps))
		r.Get("/v1/collections/{id}/documents", handleListDocuments(deps))
		r.Delete("/v1/collections/{id}/documents/{docID}", handleDeleteDocument(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleListDatasets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listings, err := deps.Manager.Published(r.Context(), r.URL.Query().Get("category"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"datasets": listings})
	}
}

func handleDatasetView(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Manager.DatasetView(r.Context(), chi.URLParam(r, "slug"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		listings, err := deps.Manager.Search(r.Context(), q)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"datasets": listings})
	}
}

func handleCategories(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := deps.Manager.Categories(r.Context())
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
	}
}

type databaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func handleCreateDatabase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req databaseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		db, err := deps.Manager.CreateDatabase(r.Context(), callerID(r), req.Name, req.Description)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, db)
	}
}

func handleListDatabases(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbs, err := deps.Manager.ListDatabases(r.Context(), callerID(r))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"databases": dbs})
	}
}

func handleGetDatabase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, err := deps.Manager.GetDatabase(r.Context(), callerID(r), chi.URLParam(r, "id"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, db)
	}
}

func handleUpdateDatabase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req databaseRequest
		if !decodeBody(w, r, &req) {
			return
		}
		db, err := deps.Manager.UpdateDatabase(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Name, req.Description)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, db)
	}
}

func handleDropDatabase(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.DropDatabase(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
			faultError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCreateCollection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		col, err := deps.Manager.CreateCollection(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Title)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, col)
	}
}

func handleListCollections(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cols, err := deps.Manager.ListCollections(r.Context(), callerID(r), chi.URLParam(r, "id"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": cols})
	}
}

func handleGetCollection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		col, err := deps.Manager.GetCollection(r.Context(), callerID(r), chi.URLParam(r, "id"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

type collectionPatchRequest struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	FullDescription *string   `json:"full_description"`
	Tags            *[]string `json:"tags"`
	Category        *string   `json:"category"`
	AccessType      *string   `json:"access_type"`
	Status          *string   `json:"status"`
}

func handleUpdateCollection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req collectionPatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		col, err := deps.Manager.UpdateCollection(r.Context(), callerID(r), chi.URLParam(r, "id"), dataset.CollectionPatch{
			Title:           req.Title,
			Description:     req.Description,
			FullDescription: req.FullDescription,
			Tags:            req.Tags,
			Category:        req.Category,
			AccessType:      req.AccessType,
			Status:          req.Status,
		})
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

func handleDropCollection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.DropCollection(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
			faultError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSetSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Fields []schema.Field `json:"fields"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Manager.SetSchema(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Fields); err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": req.Fields})
	}
}

func handleGetSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := deps.Manager.GetSchema(r.Context(), callerID(r), chi.URLParam(r, "id"))
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
	}
}

func handleSave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Records []map[string]any `json:"records"`
			Publish bool             `json:"publish"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		col, err := deps.Manager.Save(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Records, req.Publish)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, col)
	}
}

func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filename string `json:"filename"`
			Content  string `json:"content"` // base64
		}
		if !decodeBody(w, r, &req) {
			return
		}
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content must be base64")
			return
		}
		n, err := deps.Manager.Import(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Filename, content)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"imported": n})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		result, err := deps.Manager.Paginate(r.Context(), callerID(r), chi.URLParam(r, "id"), page)
		if err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Manager.DeleteDocument(r.Context(), callerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "docID"))
		if err != nil {
			faultError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeBody decodes a JSON request body, writing the error response itself
// on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
