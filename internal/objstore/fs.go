// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package objstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
)

// FSStore keeps objects as files under root/bucket/prefix. Keys are
// path-escaped so query literals with slashes or quotes map to one file.
type FSStore struct {
	dir string
}

// NewFSStore creates the store directory if needed.
func NewFSStore(root, bucket, prefix string) (*FSStore, error) {
	if root == "" {
		return nil, apperr.New(apperr.KindConfiguration, "object store directory is empty")
	}
	dir := filepath.Join(root, bucket, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating object store directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key))
}

// Put writes data atomically: a temp file is renamed over the final path.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(s.dir, ".put-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", key, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Get reads the object stored under key.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}
