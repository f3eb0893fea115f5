// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// --- test helpers ---

func page(t *testing.T, q string, start, n int, highlighted map[int]bool) search.Page {
	t.Helper()
	p := search.Page{Highlighting: map[string]map[string][]string{}}
	qraw, _ := json.Marshal(q)
	p.ResponseHeader.Params = map[string]json.RawMessage{"q": qraw}
	p.Response.Start = start
	for i := start; i < start+n; i++ {
		var d search.Doc
		raw := fmt.Sprintf(`{"id":"%d","bibcode":"B%04d","title":["T%d","sub"],"identifier":["I%d"],"[citations]":{"num_citations":%d,"num_references":2}}`, i, i, i, i, i)
		require.NoError(t, json.Unmarshal([]byte(raw), &d))
		p.Response.Docs = append(p.Response.Docs, d)
		if highlighted[i] {
			p.Highlighting[fmt.Sprint(i)] = map[string][]string{"abstract": {"<em>hit</em>"}}
		}
	}
	return p
}

func testStores(t *testing.T) (*docstore.Store, objstore.Store) {
	t.Helper()
	docs, err := docstore.Open(types.DocStoreConfig{Path: filepath.Join(t.TempDir(), "docs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })
	objs, err := objstore.NewFSStore(t.TempDir(), "b", "p")
	require.NoError(t, err)
	return docs, objs
}

// --- Flatten ---

func TestFlattenOrdersAndHighlights(t *testing.T) {
	pages := []search.Page{
		page(t, "q", 0, 3, map[int]bool{1: true}),
		page(t, "q", 3, 2, nil),
	}
	items := Flatten("Retrieval/abc", "q", pages, zerolog.Nop())

	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, i+1, it.Position)
		assert.Equal(t, fmt.Sprintf("B%04d", i), it.Bibcode)
		assert.Equal(t, types.RetrievedItemID("Retrieval/abc", i+1), it.ItemID)
	}
	assert.Equal(t, "T0\nsub", items[0].Title)
	assert.Nil(t, items[0].Highlighting)
	assert.Equal(t, []string{"<em>hit</em>"}, items[1].Highlighting["abstract"])
	assert.Equal(t, 3, items[3].NumCitations)
	assert.Equal(t, 2, items[3].NumReferences)
	assert.Equal(t, []string{"B0004", "I4"}, items[4].Bibcodes())
}

func TestFlattenWarnsOnQueryMismatch(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	items := Flatten("Retrieval/x", "expected", []search.Page{page(t, "drifted", 0, 2, nil)}, log)
	assert.Len(t, items, 2, "mismatch is not fatal")
	assert.Contains(t, buf.String(), "does not match query literal")
	assert.Contains(t, buf.String(), `"q":"drifted"`)

	buf.Reset()
	Flatten("Retrieval/x", "expected", []search.Page{page(t, "expected", 0, 1, nil)}, log)
	assert.Empty(t, buf.String())
}

func TestTopNInvariant(t *testing.T) {
	for _, k := range []int{0, 1, 24, 25, 26, 1000} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			var pages []search.Page
			for start := 0; start < k; start += 200 {
				pages = append(pages, page(t, "q", start, min(200, k-start), nil))
			}
			top := Top(Flatten("Retrieval/r", "q", pages, zerolog.Nop()), types.TopN)
			require.Len(t, top, min(k, 25))
			for i, it := range top {
				assert.Equal(t, i+1, it.Position)
			}
		})
	}
}

// --- Format ---

func TestFormatWritesProjectionsAndLinksItems(t *testing.T) {
	docs, objs := testStores(t)
	ctx := context.Background()

	id, err := docs.Insert(ctx, types.Retrieval{Query: "Query/1", S3Key: "q.2024-03-10.json.gz", Status: types.RetrievalCompleted, Items: []types.RetrievedItem{}})
	require.NoError(t, err)

	h := &retrieval.Handle{
		RetrievalID:  id,
		QueryLiteral: "q",
		StorageKey:   "q.2024-03-10.json.gz",
		Status:       types.RetrievalCompleted,
		NeedToFormat: true,
		Pages:        []search.Page{page(t, "q", 0, 30, map[int]bool{0: true})},
	}
	f := NewFormatter(docs, objs, zerolog.Nop(), nil)
	require.NoError(t, f.Format(ctx, h))

	all, err := LoadItems(ctx, objs, ItemsAllKey(h.StorageKey))
	require.NoError(t, err)
	assert.Len(t, all, 30)

	top, err := LoadItems(ctx, objs, ItemsTopKey(h.StorageKey))
	require.NoError(t, err)
	require.Len(t, top, 25)
	assert.Equal(t, 25, top[24].Position)

	var rec types.Retrieval
	require.NoError(t, docs.Get(ctx, id, &rec))
	require.Len(t, rec.Items, 30)
	assert.Equal(t, "B0000", rec.Items[0].ADSBibcode)
	assert.Equal(t, id, rec.Items[0].Retrieval)
	assert.Len(t, rec.TopItems(types.TopN), 25)

	// Idempotent: a second run keeps the same references.
	require.NoError(t, f.Format(ctx, h))
	var again types.Retrieval
	require.NoError(t, docs.Get(ctx, id, &again))
	assert.Equal(t, rec.Items, again.Items)
}

func TestFormatSkipsWhenNotNeeded(t *testing.T) {
	docs, objs := testStores(t)
	h := &retrieval.Handle{StorageKey: "k", NeedToFormat: false}

	require.NoError(t, NewFormatter(docs, objs, zerolog.Nop(), nil).Format(context.Background(), h))
	_, err := objs.Get(context.Background(), ItemsAllKey("k"))
	assert.True(t, objstore.IsNotFound(err))
}

func TestFormatMissingRetrieval(t *testing.T) {
	docs, objs := testStores(t)
	h := &retrieval.Handle{RetrievalID: "Retrieval/missing", QueryLiteral: "q", StorageKey: "k", NeedToFormat: true,
		Pages: []search.Page{page(t, "q", 0, 1, nil)}}

	err := NewFormatter(docs, objs, zerolog.Nop(), nil).Format(context.Background(), h)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestProjectionKeys(t *testing.T) {
	assert.Equal(t, "items_all__q.2024-03-10.json.gz", ItemsAllKey("q.2024-03-10.json.gz"))
	assert.Equal(t, "items_top25__q.2024-03-10.json.gz", ItemsTopKey("q.2024-03-10.json.gz"))
}
