// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/bus"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// --- test helpers ---

const literal = `similar(bibcode:2020ApJ...900..100D)`

var eastern = time.FixedZone("EST", -5*3600)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int32
	pages []search.Page
	err   error
	gate  chan struct{}
}

func (f *fakeFetcher) FetchFirstN(ctx context.Context, q string, n int) ([]search.Page, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages, f.err
}

func (f *fakeFetcher) set(pages []search.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

func (f *fakeFetcher) count() int { return int(atomic.LoadInt32(&f.calls)) }

// countingStore records Put keys.
type countingStore struct {
	objstore.Store
	mu   sync.Mutex
	puts []string
}

func (c *countingStore) Put(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	c.puts = append(c.puts, key)
	c.mu.Unlock()
	return c.Store.Put(ctx, key, data)
}

func makePages(q string, n, qtime int, bibPrefix string) []search.Page {
	var docs []search.Doc
	for i := 0; i < n; i++ {
		var d search.Doc
		raw := fmt.Sprintf(`{"id":"%d","bibcode":"%s%04d","title":["Paper %d"]}`, i, bibPrefix, i, i)
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			panic(err)
		}
		docs = append(docs, d)
	}
	qraw, _ := json.Marshal(q)
	return []search.Page{{
		ResponseHeader: search.ResponseHeader{QTime: qtime, Params: map[string]json.RawMessage{"q": qraw}},
		Response:       search.ResultSet{NumFound: n, Docs: docs},
	}}
}

type fixture struct {
	docs    *docstore.Store
	objects *countingStore
	fetcher *fakeFetcher
	events  *bus.MemoryBus
	now     time.Time
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := docstore.Open(types.DocStoreConfig{Path: filepath.Join(t.TempDir(), "docs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	fs, err := objstore.NewFSStore(t.TempDir(), "bucket", "prefix")
	require.NoError(t, err)

	_, err = docs.Insert(context.Background(), types.Query{QueryLiteral: literal})
	require.NoError(t, err)

	f := &fixture{
		docs:    docs,
		objects: &countingStore{Store: fs},
		fetcher: &fakeFetcher{pages: makePages(literal, 30, 5, "2024A")},
		events:  bus.NewMemoryBus(),
		now:     time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(docs, f.objects, f.fetcher,
		WithClock(func() time.Time { return f.now }),
		WithLocation(eastern),
		WithPublisher(f.events),
	)
	return f
}

func (f *fixture) retrievals(t *testing.T) []types.Retrieval {
	t.Helper()
	rs, err := docstore.All[types.Retrieval](context.Background(), f.docs, types.TypeRetrieval, nil)
	require.NoError(t, err)
	return rs
}

// --- Date resolution ---

func TestResolveDate(t *testing.T) {
	f := newFixture(t)
	// 02:00 UTC on the 10th is still the 9th in the engine's zone.
	f.now = time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "2024-03-09", false},
		{"2024-03-09", "2024-03-09", false},
		{"2023-12-31", "2023-12-31", false},
		{"2024-03-10", "", true},
		{"2024-13-01", "", true},
		{"yesterday", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := f.engine.ResolveDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFutureDateFailsBeforeIO(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Retrieve(context.Background(), literal, "2024-03-11")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Zero(t, f.fetcher.count())
	assert.Empty(t, f.retrievals(t))
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "dark matter.2024-03-10.json.gz", StorageKey("dark matter", "2024-03-10"))
}

// --- Retrieve ---

func TestRetrieveFreshThenCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h1, err := f.engine.Retrieve(ctx, literal, "")
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeCompleted, h1.Outcome)
	assert.Equal(t, types.RetrievalCompleted, h1.Status)
	assert.True(t, h1.NeedToFormat)
	assert.Equal(t, StorageKey(literal, "2024-03-10"), h1.StorageKey)
	assert.Equal(t, 30, search.DocCount(h1.Pages))

	h2, err := f.engine.Retrieve(ctx, literal, "")
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeCacheHit, h2.Outcome)
	assert.Equal(t, h1.RetrievalID, h2.RetrievalID)
	assert.Equal(t, 1, f.fetcher.count(), "cache hit must not call the search API")

	rs := f.retrievals(t)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].Done)
	require.NotNil(t, rs[0].DoneAt)
	assert.True(t, f.now.Equal(*rs[0].DoneAt))
	assert.Empty(t, rs[0].Items)
	assert.Equal(t, []string{bus.TopicRetrievalCompleted}, f.events.Topics())
}

func TestRetrieveIdenticalToPreviousIsAborted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Retrieve(ctx, literal, "2024-03-09")
	require.NoError(t, err)
	require.Equal(t, types.RetrievalCompleted, first.Status)

	h, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, types.RetrievalAborted, h.Status)
	assert.Equal(t, metrics.OutcomeAborted, h.Outcome)
	assert.False(t, h.NeedToFormat)

	_, err = f.objects.Get(ctx, h.StorageKey)
	assert.True(t, objstore.IsNotFound(err), "aborted retrieval stores no payload")
	assert.Equal(t, []string{first.StorageKey}, f.objects.puts)

	var rec types.Retrieval
	require.NoError(t, f.docs.Get(ctx, h.RetrievalID, &rec))
	assert.False(t, rec.Done)
	assert.Nil(t, rec.DoneAt)

	// Re-running the day fetches again but keeps a single aborted record.
	h2, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, h.RetrievalID, h2.RetrievalID)
	assert.Len(t, f.retrievals(t), 2)
	assert.Equal(t, []string{bus.TopicRetrievalCompleted, bus.TopicRetrievalAborted, bus.TopicRetrievalAborted}, f.events.Topics())
}

func TestRetrieveQTimeOnlyChange(t *testing.T) {
	ctx := context.Background()

	t.Run("compared by default", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Retrieve(ctx, literal, "2024-03-09")
		require.NoError(t, err)

		f.fetcher.set(makePages(literal, 30, 99, "2024A"))
		h, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
		require.NoError(t, err)
		assert.Equal(t, types.RetrievalCompleted, h.Status)
		assert.True(t, h.NeedToFormat)
		assert.Len(t, f.objects.puts, 2)
	})

	t.Run("ignored when configured", func(t *testing.T) {
		f := newFixture(t)
		f.engine = NewEngine(f.docs, f.objects, f.fetcher,
			WithClock(func() time.Time { return f.now }),
			WithLocation(eastern),
			WithIgnoreQTime(true),
		)
		_, err := f.engine.Retrieve(ctx, literal, "2024-03-09")
		require.NoError(t, err)

		f.fetcher.set(makePages(literal, 30, 99, "2024A"))
		h, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
		require.NoError(t, err)
		assert.Equal(t, types.RetrievalAborted, h.Status)
		assert.Len(t, f.objects.puts, 1)
	})
}

func TestRetrieveChangedResultsCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Retrieve(ctx, literal, "2024-03-09")
	require.NoError(t, err)

	f.fetcher.set(makePages(literal, 30, 5, "2024B"))
	h, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, types.RetrievalCompleted, h.Status)
	assert.Len(t, f.objects.puts, 2)
}

func TestRetrieveUnreadablePreviousCountsAsNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qid, err := f.docs.FindOne(ctx, types.TypeQuery, docstore.Template{"query_literal": literal}, &types.Query{})
	require.NoError(t, err)
	prevAt := f.now.Add(-24 * time.Hour)
	_, err = f.docs.Insert(ctx, types.Retrieval{
		Query: qid, S3Key: StorageKey(literal, "2024-03-09"), Status: types.RetrievalCompleted,
		Done: true, DoneAt: &prevAt, Items: []types.RetrievedItem{},
	})
	require.NoError(t, err)

	h, err := f.engine.Retrieve(ctx, literal, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, types.RetrievalCompleted, h.Status)
}

func TestRetrieveBackfillsOrphanPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key := StorageKey(literal, "2024-03-08")
	require.NoError(t, objstore.PutJSON(ctx, f.objects, key, makePages(literal, 12, 1, "2024C")))
	f.objects.puts = nil

	h, err := f.engine.Retrieve(ctx, literal, "2024-03-08")
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeBackfilled, h.Outcome)
	assert.True(t, h.NeedToFormat)
	assert.Equal(t, 12, search.DocCount(h.Pages))
	assert.Zero(t, f.fetcher.count(), "backfill must not re-fetch")
	assert.Empty(t, f.objects.puts)

	rs := f.retrievals(t)
	require.Len(t, rs, 1)
	require.NotNil(t, rs[0].DoneAt)
	assert.True(t, rs[0].DoneAt.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, eastern)))
}

func TestRetrieveRepairsMissingPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	qid, err := f.docs.FindOne(ctx, types.TypeQuery, docstore.Template{"query_literal": literal}, &types.Query{})
	require.NoError(t, err)
	key := StorageKey(literal, "2024-03-10")
	id, err := f.docs.Insert(ctx, types.Retrieval{
		Query: qid, S3Key: key, Status: types.RetrievalCompleted, Done: true, DoneAt: &f.now,
		Items: []types.RetrievedItem{},
	})
	require.NoError(t, err)

	h, err := f.engine.Retrieve(ctx, literal, "")
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeRepaired, h.Outcome)
	assert.Equal(t, id, h.RetrievalID)
	assert.Equal(t, 1, f.fetcher.count())
	assert.Equal(t, []string{key}, f.objects.puts)
	assert.Len(t, f.retrievals(t), 1)
}

func TestRetrieveRepairsCorruptPayload(t *testing.T) {
	ctx := context.Background()

	t.Run("recorded retrieval", func(t *testing.T) {
		f := newFixture(t)
		qid, err := f.docs.FindOne(ctx, types.TypeQuery, docstore.Template{"query_literal": literal}, &types.Query{})
		require.NoError(t, err)
		key := StorageKey(literal, "2024-03-10")
		id, err := f.docs.Insert(ctx, types.Retrieval{
			Query: qid, S3Key: key, Status: types.RetrievalCompleted, Done: true, DoneAt: &f.now,
			Items: []types.RetrievedItem{},
		})
		require.NoError(t, err)
		require.NoError(t, f.objects.Put(ctx, key, []byte("not gzip")))

		h, err := f.engine.Retrieve(ctx, literal, "")
		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeRepaired, h.Outcome)
		assert.Equal(t, id, h.RetrievalID)
		assert.Equal(t, 1, f.fetcher.count())

		var pages []search.Page
		require.NoError(t, objstore.GetJSON(ctx, f.objects, key, &pages))
		assert.Equal(t, 30, search.DocCount(pages))
	})

	t.Run("orphan payload", func(t *testing.T) {
		f := newFixture(t)
		key := StorageKey(literal, "2024-03-08")
		require.NoError(t, f.objects.Put(ctx, key, []byte("not gzip")))

		h, err := f.engine.Retrieve(ctx, literal, "2024-03-08")
		require.NoError(t, err)
		assert.Equal(t, metrics.OutcomeCompleted, h.Outcome)
		assert.Equal(t, 1, f.fetcher.count())
		assert.Equal(t, 30, search.DocCount(h.Pages))

		var pages []search.Page
		require.NoError(t, objstore.GetJSON(ctx, f.objects, key, &pages))
		assert.Equal(t, 30, search.DocCount(pages))
	})
}

func TestRetrieveUnknownQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Retrieve(context.Background(), "no such query", "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, f.fetcher.count())
}

func TestRetrieveUpstreamFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = apperr.New(apperr.KindUpstream, "search API returned HTTP 503")

	_, err := f.engine.Retrieve(context.Background(), literal, "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Empty(t, f.retrievals(t))
	assert.Empty(t, f.objects.puts)
	assert.Empty(t, f.events.Published())
}

func TestRetrieveConcurrentSameKeyFetchesOnce(t *testing.T) {
	f := newFixture(t)
	f.fetcher.gate = make(chan struct{})

	const n = 6
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := f.engine.Retrieve(context.Background(), literal, "")
			errs[i] = err
			if h != nil {
				ids[i] = h.RetrievalID
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.fetcher.count())
	assert.Len(t, f.retrievals(t), 1)
}

func TestPublishFailureDoesNotFailRetrieval(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.events.Subscribe(bus.TopicRetrievalCompleted, func(context.Context, bus.Event) error {
		return errors.New("subscriber down")
	}))

	h, err := f.engine.Retrieve(context.Background(), literal, "")
	require.NoError(t, err)
	assert.Equal(t, types.RetrievalCompleted, h.Status)
}

// --- Payload comparison ---

func TestEqualPayloads(t *testing.T) {
	a := makePages("q", 3, 1, "X")
	b := makePages("q", 3, 200, "X")
	same, err := EqualPayloads(a, b)
	require.NoError(t, err)
	assert.False(t, same, "QTime is part of the payload")

	same, err = EqualIgnoringQTime(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = EqualPayloads(a, makePages("q", 3, 1, "X"))
	require.NoError(t, err)
	assert.True(t, same)

	// Key order inside a document does not matter.
	var d1, d2 search.Doc
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":[1,2]}`), &d1))
	require.NoError(t, json.Unmarshal([]byte(`{"b":[1,2],"a":1}`), &d2))
	p1 := []search.Page{{Response: search.ResultSet{Docs: []search.Doc{d1}}}}
	p2 := []search.Page{{Response: search.ResultSet{Docs: []search.Doc{d2}}}}
	same, err = EqualPayloads(p1, p2)
	require.NoError(t, err)
	assert.True(t, same)

	c := makePages("q", 3, 1, "Y")
	same, err = EqualPayloads(a, c)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = EqualPayloads(a, makePages("q", 4, 1, "X"))
	require.NoError(t, err)
	assert.False(t, same)
}
