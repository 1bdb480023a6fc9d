package storage

import (
	"time"
)

// Collection status values. Unpublished is the default private state;
// Pending is only reachable through an explicit user toggle.
const (
	StatusUnpublished = "Unpublished"
	StatusPending     = "Pending"
	StatusPublished   = "Published"
)

// Access types for published collections.
const (
	AccessFree = "Free"
	AccessPaid = "Paid"
)

// Database is a named, user-owned grouping of collections.
type Database struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metadata is the public-facing metadata block of a collection.
type Metadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	FullDescription string   `json:"full_description"`
	Tags            []string `json:"tags"`
	Category        string   `json:"category"`
	AccessType      string   `json:"access_type"`
	Status          string   `json:"status"`
}

// Collection belongs to exactly one database and is the unit of publishing.
// AssetURL points at the last-published CSV snapshot, if any.
type Collection struct {
	ID         string    `json:"id"`
	DatabaseID string    `json:"database_id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Metadata   Metadata  `json:"metadata"`
	AssetURL   string    `json:"asset_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Document is a single record of a collection. The payload key set is
// expected to match the collection schema's field names, but the store does
// not enforce that; stray or missing keys are tolerated on read.
type Document struct {
	ID           string         `json:"id"`
	DatabaseID   string         `json:"database_id"`
	CollectionID string         `json:"collection_id"`
	OwnerID      string         `json:"owner_id"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
