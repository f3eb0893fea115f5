// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package objstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

func testFS(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), "ads-query-eval", "retrievals")
	require.NoError(t, err)
	return s
}

// --- Filesystem backend ---

func TestFSPutGet(t *testing.T) {
	s := testFS(t)
	ctx := context.Background()

	key := `similar(bibcode:"2020ApJ/x").2024-03-01.json.gz`
	require.NoError(t, s.Put(ctx, key, []byte("payload")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "slashes in keys must not create directories")
}

func TestFSOverwrite(t *testing.T) {
	s := testFS(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("one")))
	require.NoError(t, s.Put(ctx, "k", []byte("two")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestFSGetMissing(t *testing.T) {
	s := testFS(t)
	_, err := s.Get(context.Background(), "absent")
	assert.True(t, IsNotFound(err))
}

func TestFSScopesByBucketAndPrefix(t *testing.T) {
	root := t.TempDir()
	a, err := NewFSStore(root, "b", "p1")
	require.NoError(t, err)
	b, err := NewFSStore(root, "b", "p2")
	require.NoError(t, err)

	require.NoError(t, a.Put(context.Background(), "k", []byte("x")))
	_, err = b.Get(context.Background(), "k")
	assert.True(t, IsNotFound(err))
	assert.FileExists(t, filepath.Join(root, "b", "p1", "k"))
}

// --- JSON helpers ---

func TestPutJSONGetJSON(t *testing.T) {
	s := testFS(t)
	ctx := context.Background()

	in := []map[string]any{{"bibcode": "b1", "position": 1.0}}
	require.NoError(t, PutJSON(ctx, s, "items", in))

	raw, err := s.Get(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2], "payload is gzip")

	var out []map[string]any
	require.NoError(t, GetJSON(ctx, s, "items", &out))
	assert.Equal(t, in, out)
}

func TestPutJSONSerializationFailureWritesNothing(t *testing.T) {
	s := testFS(t)
	ctx := context.Background()

	err := PutJSON(ctx, s, "bad", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindSerialization))

	_, err = s.Get(ctx, "bad")
	assert.True(t, IsNotFound(err))
}

func TestGetJSONMissingAndCorrupt(t *testing.T) {
	s := testFS(t)
	ctx := context.Background()

	var v any
	assert.True(t, IsNotFound(GetJSON(ctx, s, "absent", &v)))

	require.NoError(t, s.Put(ctx, "plain", []byte("not gzip")))
	err := GetJSON(ctx, s, "plain", &v)
	assert.True(t, apperr.Is(err, apperr.KindSerialization))
}

// --- Factory ---

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, types.ObjectStoreConfig{Backend: types.ObjectBackendFS, Dir: t.TempDir(), Bucket: "b"})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)

	_, err = New(ctx, types.ObjectStoreConfig{Backend: "s3"})
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

// --- Redis backend ---

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "invalid://url", "b", "p")
	assert.Error(t, err)
}

func TestNewRedisStore_ConnectionFailure(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "redis://localhost:9999", "b", "p")
	assert.Error(t, err)
}

func TestRedisStore_PutGet(t *testing.T) {
	s, err := NewRedisStore(context.Background(), "redis://localhost:6379/15", "ads-query-eval-test", "retrievals")
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer s.Close()
	ctx := context.Background()
	defer s.Delete(ctx, "k")

	require.NoError(t, PutJSON(ctx, s, "k", []string{"a", "b"}))
	var out []string
	require.NoError(t, GetJSON(ctx, s, "k", &out))
	assert.Equal(t, []string{"a", "b"}, out)

	_, err = s.Get(ctx, "missing-key")
	assert.True(t, IsNotFound(err))
}

func TestRedisNamespace(t *testing.T) {
	assert.Equal(t, "b:p:k", NewRedisStoreFromClient(nil, "b", "p").key("k"))
	assert.Equal(t, "b:k", NewRedisStoreFromClient(nil, "b", "").key("k"))
	assert.Equal(t, "k", NewRedisStoreFromClient(nil, "", "").key("k"))
}
