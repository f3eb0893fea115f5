// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval runs the daily fetch of one query's search results.
//
// A retrieval is identified by its storage key, "<query literal>.<yyyy-mm-dd>.json.gz".
// Retrieve returns the existing completed retrieval for that key when its
// payload is readable, repairs it when the payload is gone, adopts a payload
// stored by an earlier run that never recorded metadata, and otherwise
// fetches fresh results. A fresh fetch identical to the query's previous
// completed retrieval is recorded as aborted and its payload is not stored.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/bus"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// DateLayout is the calendar-day format of trigger dates and storage keys.
const DateLayout = "2006-01-02"

// DefaultTimezone decides what "today" means.
const DefaultTimezone = "America/New_York"

// Fetcher fetches up to n results for q.
type Fetcher interface {
	FetchFirstN(ctx context.Context, q string, n int) ([]search.Page, error)
}

// Documents is the document-store surface the engine needs.
type Documents interface {
	docstore.Session
	InsertIfAbsent(ctx context.Context, doc docstore.Document, tpl docstore.Template) (string, bool, error)
}

// Handle describes the retrieval a Retrieve call settled on.
type Handle struct {
	RetrievalID  string
	QueryID      string
	QueryLiteral string
	StorageKey   string
	Date         string
	Status       types.RetrievalStatus

	// Outcome is one of the metrics.Outcome* values.
	Outcome string

	// NeedToFormat is true when the retrieval is completed and its items
	// should be (re)derived.
	NeedToFormat bool

	// Pages is the raw paginated payload.
	Pages []search.Page
}

// StorageKey returns the object-store key of a query's payload for day.
func StorageKey(queryLiteral, day string) string {
	return fmt.Sprintf("%s.%s.json.gz", queryLiteral, day)
}

// Engine runs retrievals.
type Engine struct {
	docs     Documents
	objects  objstore.Store
	fetcher  Fetcher
	log      zerolog.Logger
	metrics  *metrics.Metrics
	events   bus.Publisher
	now      func() time.Time
	loc      *time.Location
	maxItems int

	ignoreQTime bool

	flight singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics records retrieval outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithPublisher publishes retrieval events.
func WithPublisher(p bus.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the timezone that decides the calendar day.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithMaxItems sets how many results a fresh fetch collects.
func WithMaxItems(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxItems = n
		}
	}
}

// WithIgnoreQTime makes the comparison with the previous retrieval skip each
// page's QTime, so a fetch differing only in server timing is aborted.
func WithIgnoreQTime(ignore bool) Option { return func(e *Engine) { e.ignoreQTime = ignore } }

// NewEngine creates an engine. Without WithLocation the calendar day is
// taken in DefaultTimezone, or UTC when that zone is unavailable.
func NewEngine(docs Documents, objects objstore.Store, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		docs:     docs,
		objects:  objects,
		fetcher:  fetcher,
		log:      zerolog.Nop(),
		events:   bus.Nop{},
		now:      time.Now,
		maxItems: search.DefaultMaxItems,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		e.loc = loc
	}
	return e
}

// Today returns the current calendar day in the engine's timezone.
func (e *Engine) Today() string {
	return e.now().In(e.loc).Format(DateLayout)
}

// ResolveDate validates a trigger date. The empty string means today.
// Unparsable and future dates are configuration errors.
func (e *Engine) ResolveDate(date string) (string, error) {
	today := e.Today()
	if date == "" {
		return today, nil
	}
	d, err := time.ParseInLocation(DateLayout, date, e.loc)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConfiguration, err, "date %q is invalid", date)
	}
	if day := d.Format(DateLayout); day > today {
		return "", apperr.New(apperr.KindConfiguration, "date %q is in the future", date)
	}
	return d.Format(DateLayout), nil
}

// Retrieve settles the retrieval of queryLiteral for date (yyyy-mm-dd, or
// empty for today). Concurrent calls for the same key share one execution.
func (e *Engine) Retrieve(ctx context.Context, queryLiteral, date string) (*Handle, error) {
	day, err := e.ResolveDate(date)
	if err != nil {
		return nil, err
	}
	key := StorageKey(queryLiteral, day)

	v, err, shared := e.flight.Do(key, func() (any, error) {
		return e.retrieve(ctx, queryLiteral, day, key)
	})
	if err != nil {
		if !shared {
			e.metrics.RecordRetrieval(metrics.OutcomeFailed)
		}
		return nil, err
	}
	return v.(*Handle), nil
}

func (e *Engine) retrieve(ctx context.Context, literal, day, key string) (*Handle, error) {
	log := e.log.With().Str("key", key).Logger()

	var q types.Query
	queryID, err := e.docs.FindOne(ctx, types.TypeQuery, docstore.Template{"query_literal": literal}, &q)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Query", literal)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up query: %w", err)
	}

	h := &Handle{QueryID: queryID, QueryLiteral: literal, StorageKey: key, Date: day}

	var existing types.Retrieval
	retrievalID, err := e.docs.FindOne(ctx, types.TypeRetrieval,
		docstore.Template{"s3_key": key, "status": types.RetrievalCompleted}, &existing)
	switch {
	case err == nil:
		log.Info().Str("retrieval", retrievalID).Msg("found metadata record for retrieval")
		err = e.reuse(ctx, log, h, retrievalID)
	case errors.Is(err, docstore.ErrNotFound):
		log.Info().Msg("no metadata record for retrieval, checking for already-fetched data")
		err = e.create(ctx, log, h)
	default:
		err = fmt.Errorf("looking up retrieval: %w", err)
	}
	if err != nil {
		return nil, err
	}

	e.metrics.RecordRetrieval(h.Outcome)
	if h.Outcome != metrics.OutcomeCacheHit {
		e.publish(ctx, log, h)
	}
	return h, nil
}

// reuse serves an existing completed retrieval, re-fetching its payload
// when the object store lost it or it no longer decodes.
func (e *Engine) reuse(ctx context.Context, log zerolog.Logger, h *Handle, retrievalID string) error {
	h.RetrievalID = retrievalID
	h.Status = types.RetrievalCompleted
	h.NeedToFormat = true

	pages, err := e.loadPages(ctx, h.StorageKey)
	if err == nil {
		log.Info().Msg("found retrieval data")
		h.Pages = pages
		h.Outcome = metrics.OutcomeCacheHit
		return nil
	}
	if !unreadable(err) {
		return err
	}

	log.Warn().Err(err).Msg("retrieval data missing or unreadable, fetching again")
	pages, err = e.fetch(ctx, h.QueryLiteral)
	if err != nil {
		return err
	}
	if err := objstore.PutJSON(ctx, e.objects, h.StorageKey, pages); err != nil {
		return fmt.Errorf("storing payload: %w", err)
	}
	h.Pages = pages
	h.Outcome = metrics.OutcomeRepaired
	return nil
}

// create records a retrieval for a key that has no completed record yet.
func (e *Engine) create(ctx context.Context, log zerolog.Logger, h *Handle) error {
	pages, err := e.loadPages(ctx, h.StorageKey)
	backfill := err == nil
	if err != nil && !unreadable(err) {
		return err
	}
	if apperr.Is(err, apperr.KindSerialization) {
		log.Warn().Err(err).Msg("orphan retrieval data unreadable, fetching again")
	}

	status := types.RetrievalCompleted
	if backfill {
		log.Info().Msg("found retrieval data without metadata, backfilling record")
	} else {
		if pages, err = e.fetch(ctx, h.QueryLiteral); err != nil {
			return err
		}
		if e.sameAsPrevious(ctx, log, h, pages) {
			status = types.RetrievalAborted
		}
	}

	if status == types.RetrievalCompleted && !backfill {
		if err := objstore.PutJSON(ctx, e.objects, h.StorageKey, pages); err != nil {
			return fmt.Errorf("storing payload: %w", err)
		}
		log.Info().Msg("stored retrieval data")
	}

	rec := types.Retrieval{
		Query:  h.QueryID,
		S3Key:  h.StorageKey,
		Status: status,
		Items:  []types.RetrievedItem{},
	}
	if status == types.RetrievalCompleted {
		doneAt := e.now().UTC()
		if backfill {
			midnight, _ := time.ParseInLocation(DateLayout, h.Date, e.loc)
			doneAt = midnight
		}
		rec.Done = true
		rec.DoneAt = &doneAt
	}

	id, inserted, err := e.docs.InsertIfAbsent(ctx, rec,
		docstore.Template{"s3_key": h.StorageKey, "status": status})
	if err != nil {
		return fmt.Errorf("recording retrieval: %w", err)
	}
	if !inserted {
		log.Info().Str("retrieval", id).Msg("retrieval already recorded by a concurrent run")
	}

	h.RetrievalID = id
	h.Status = status
	h.Pages = pages
	h.NeedToFormat = status == types.RetrievalCompleted
	switch {
	case status == types.RetrievalAborted:
		h.Outcome = metrics.OutcomeAborted
		log.Info().Msg("retrieval identical to previous, aborted")
	case backfill:
		h.Outcome = metrics.OutcomeBackfilled
	default:
		h.Outcome = metrics.OutcomeCompleted
	}
	return nil
}

// sameAsPrevious compares pages with the payload of the query's most recent
// completed retrieval. An unreadable previous payload counts as different.
func (e *Engine) sameAsPrevious(ctx context.Context, log zerolog.Logger, h *Handle, pages []search.Page) bool {
	prev, err := e.previousCompleted(ctx, h.QueryID, h.StorageKey)
	if err != nil {
		log.Warn().Err(err).Msg("could not look up previous retrieval")
		return false
	}
	if prev == nil {
		return false
	}

	prevPages, err := e.loadPages(ctx, prev.S3Key)
	if err != nil {
		log.Info().Err(err).Str("previous", prev.S3Key).Msg("previous retrieval data unreadable, treating fetch as new")
		return false
	}
	equal := EqualPayloads
	if e.ignoreQTime {
		equal = EqualIgnoringQTime
	}
	same, err := equal(pages, prevPages)
	if err != nil {
		log.Warn().Err(err).Msg("could not compare with previous retrieval")
		return false
	}
	return same
}

func (e *Engine) previousCompleted(ctx context.Context, queryID, key string) (*types.Retrieval, error) {
	completed, err := docstore.All[types.Retrieval](ctx, e.docs, types.TypeRetrieval,
		docstore.Template{"query": queryID, "status": types.RetrievalCompleted})
	if err != nil {
		return nil, err
	}
	var latest *types.Retrieval
	for i := range completed {
		r := &completed[i]
		if r.S3Key == key || r.DoneAt == nil {
			continue
		}
		if latest == nil || r.DoneAt.After(*latest.DoneAt) {
			latest = r
		}
	}
	return latest, nil
}

func (e *Engine) fetch(ctx context.Context, literal string) ([]search.Page, error) {
	pages, err := e.fetcher.FetchFirstN(ctx, literal, e.maxItems)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", literal, err)
	}
	return pages, nil
}

// unreadable reports whether a payload read failed because the object is
// absent or does not decode.
func unreadable(err error) bool {
	return objstore.IsNotFound(err) || apperr.Is(err, apperr.KindSerialization)
}

func (e *Engine) loadPages(ctx context.Context, key string) ([]search.Page, error) {
	var pages []search.Page
	if err := objstore.GetJSON(ctx, e.objects, key, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (e *Engine) publish(ctx context.Context, log zerolog.Logger, h *Handle) {
	topic := bus.TopicRetrievalCompleted
	if h.Status == types.RetrievalAborted {
		topic = bus.TopicRetrievalAborted
	}
	ev := bus.NewEvent(topic, bus.RetrievalEvent{
		RetrievalID:  h.RetrievalID,
		QueryLiteral: h.QueryLiteral,
		StorageKey:   h.StorageKey,
		Date:         h.Date,
		Status:       string(h.Status),
		Outcome:      h.Outcome,
	})
	if err := e.events.Publish(ctx, topic, ev); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("publishing retrieval event")
	}
}
