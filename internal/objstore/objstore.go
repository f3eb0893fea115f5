// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package objstore stores large immutable payloads (raw search pages and
// item projections) as byte blobs under string keys, scoped by a bucket and
// a prefix.
package objstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store reads and writes byte blobs by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the backend selected by cfg.
func New(ctx context.Context, cfg types.ObjectStoreConfig) (Store, error) {
	switch cfg.Backend {
	case types.ObjectBackendFS, "":
		return NewFSStore(cfg.Dir, cfg.Bucket, cfg.Prefix)
	case types.ObjectBackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.Bucket, cfg.Prefix)
	default:
		return nil, apperr.New(apperr.KindConfiguration, "unknown object store backend %q", cfg.Backend)
	}
}

// PutJSON encodes v as gzip-compressed JSON and stores it under key.
// Encoding happens before anything is written.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "encoding %s", key)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compressing %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing %s: %w", key, err)
	}
	return s.Put(ctx, key, buf.Bytes())
}

// GetJSON reads key and decodes its gzip-compressed JSON into v.
// A missing key yields an error wrapping ErrNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "decompressing %s", key)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "decompressing %s", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Wrap(apperr.KindSerialization, err, "decoding %s", key)
	}
	return nil
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
