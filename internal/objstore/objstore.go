// Package objstore abstracts the object storage that holds published CSV
// snapshots. The production deployment points this at a bucket; the default
// implementation writes to the local filesystem, which is also what tests
// use.
package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the capability set the publication pipeline needs.
// Delete-then-put is the expected overwrite pattern; Delete on a missing
// key must not fail.
type Storage interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// FS is a filesystem-backed Storage rooted at a directory.
type FS struct {
	root    string
	baseURL string
}

// NewFS creates a filesystem Storage under root. baseURL is prepended to
// keys to form public URLs.
func NewFS(root, baseURL string) *FS {
	return &FS{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (f *FS) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Put writes content under key, creating parent directories as needed.
// The content type is ignored by the filesystem backend.
func (f *FS) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	return nil
}

// Delete removes the object under key. Missing objects are not an error.
func (f *FS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// PublicURL returns the URL where the object under key is served.
func (f *FS) PublicURL(key string) string {
	return f.baseURL + "/" + key
}
