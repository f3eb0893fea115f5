// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package topicreview evaluates a retrieval automatically against known
// topic reviews: papers cited by a topic review of the query's subject are
// taken as relevant, and the retrieval is scored by how many of them it
// returned (recall at 1000).
package topicreview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/format"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Identity of the procedure document the evaluator records as evaluator.
const (
	ProcedureFQN     = "ads_query_eval.frame.evaluators.topic_review_references"
	ProcedureVersion = "0.1"
)

// PageFetcher fetches the first page of results for a query.
type PageFetcher interface {
	FetchFirstPage(ctx context.Context, q string) (search.Page, error)
}

// Documents is the document-store surface the evaluator needs.
type Documents interface {
	docstore.Session
	InsertIfAbsent(ctx context.Context, doc docstore.Document, tpl docstore.Template) (string, bool, error)
}

// Evaluator scores retrievals against topic-review references.
type Evaluator struct {
	docs    Documents
	objects objstore.Store
	fetcher PageFetcher
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Evaluator) { e.log = l } }

// WithMetrics counts completed evaluations.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Evaluator) { e.metrics = m } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// NewEvaluator creates an evaluator.
func NewEvaluator(docs Documents, objects objstore.Store, fetcher PageFetcher, opts ...Option) *Evaluator {
	e := &Evaluator{
		docs:    docs,
		objects: objects,
		fetcher: fetcher,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LookupProcedure loads the topic-review EvaluatingProcedure. It returns
// docstore.ErrNotFound when the procedure was never bootstrapped.
func LookupProcedure(ctx context.Context, docs docstore.Session) (types.EvaluatingProcedure, error) {
	var p types.EvaluatingProcedure
	id, err := docs.FindOne(ctx, types.TypeEvaluatingProcedure,
		docstore.Template{"fqn": ProcedureFQN, "version": ProcedureVersion}, &p)
	if err != nil {
		return p, err
	}
	p.ID = id
	return p, nil
}

// Evaluate scores the retrieval behind h. It returns nil without error when
// there is nothing to do: the retrieval is not completed or no topic reviews
// are configured for the query. Item flags are rewritten on every call; the
// Evaluation is recorded once per retrieval and later calls return nil.
func (e *Evaluator) Evaluate(ctx context.Context, h *retrieval.Handle) (*types.Evaluation, error) {
	log := e.log.With().Str("key", h.StorageKey).Logger()
	if h.Status != types.RetrievalCompleted {
		return nil, nil
	}

	proc, err := LookupProcedure(ctx, e.docs)
	if errors.Is(err, docstore.ErrNotFound) {
		log.Debug().Msg("topic-review procedure not configured")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading topic-review procedure: %w", err)
	}
	reviews := proc.Config[h.QueryLiteral]
	if len(reviews) == 0 {
		return nil, nil
	}

	tpl := docstore.Template{"evaluator": proc.ID, "retrieval": h.RetrievalID}
	var existing types.Evaluation
	_, err = e.docs.FindOne(ctx, types.TypeEvaluation, tpl, &existing)
	recorded := err == nil
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("checking existing evaluation: %w", err)
	}

	relevant, err := e.relevantBibcodes(ctx, reviews, log)
	if err != nil {
		return nil, err
	}

	items, err := format.LoadItems(ctx, e.objects, format.ItemsAllKey(h.StorageKey))
	if objstore.IsNotFound(err) {
		return nil, apperr.Wrap(apperr.KindStorageReadMiss, err, "items of retrieval %s", h.RetrievalID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}

	found := Flag(items, relevant)
	if err := format.StoreProjections(ctx, e.objects, h.StorageKey, items); err != nil {
		return nil, err
	}
	if recorded {
		log.Info().Msg("topic-review evaluation already recorded, flags rewritten")
		return nil, nil
	}

	now := e.now().UTC()
	ev := types.Evaluation{
		Evaluator: proc.ID,
		Retrieval: h.RetrievalID,
		Status:    types.EvaluationCompleted,
		Done:      true,
		DoneAt:    &now,
		CreatedAt: now,
	}
	if len(relevant) > 0 {
		r := float64(found) / float64(len(relevant))
		ev.RAt1000 = &r
	}
	id, inserted, err := e.docs.InsertIfAbsent(ctx, ev, tpl)
	if err != nil {
		return nil, fmt.Errorf("recording topic-review evaluation: %w", err)
	}
	if !inserted {
		return nil, nil
	}
	ev.ID = id
	e.metrics.RecordEvaluationCompleted("procedure")
	log.Info().Int("relevant", len(relevant)).Int("found", found).Msg("topic-review evaluation recorded")
	return &ev, nil
}

// relevantBibcodes unions the references of the top hit of each review query.
func (e *Evaluator) relevantBibcodes(ctx context.Context, reviews []string, log zerolog.Logger) (map[string]bool, error) {
	relevant := map[string]bool{}
	for _, q := range reviews {
		page, err := e.fetcher.FetchFirstPage(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fetching topic review %s: %w", q, err)
		}
		if len(page.Response.Docs) == 0 {
			log.Warn().Str("review", q).Msg("topic review not found")
			continue
		}
		for _, ref := range page.Response.Docs[0].Strings("reference") {
			relevant[ref] = true
		}
	}
	return relevant, nil
}

// Flag marks each item whose bibcode or any identifier is in relevant and
// returns how many distinct relevant bibcodes the items cover.
func Flag(items []types.RetrievedItemContent, relevant map[string]bool) int {
	covered := map[string]bool{}
	for i := range items {
		hit := false
		for _, b := range items[i].Bibcodes() {
			if relevant[b] {
				hit = true
				covered[b] = true
			}
		}
		items[i].RelevantAsTopicReviewRef = &hit
	}
	return len(covered)
}
