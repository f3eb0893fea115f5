// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evaluation runs reviewer evaluations of completed retrievals.
//
// An evaluation is created "in progress" when a reviewer opens the form for
// a retrieval and becomes "completed" exactly once, when the reviewer
// submits judgments for the retrieval's top items. The judgments and the
// completing update are written in one transaction.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/bus"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/format"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Documents is the document-store surface the workflow needs.
type Documents interface {
	docstore.Session
	Batch(ctx context.Context, fn func(tx *docstore.Tx) error) error
}

// Highlight is the fragments matched in one field.
type Highlight struct {
	Field     string
	Fragments []string
}

// FormItem is one item as presented for judgment.
type FormItem struct {
	types.RetrievedItemContent
	Highlights []Highlight
}

// Form is an opened evaluation.
type Form struct {
	EvaluationID string
	RetrievalID  string
	QueryLiteral string
	Items        []FormItem
}

// Judgment is a reviewer's verdict on one item. Empty fields take defaults.
type Judgment struct {
	Relevance   types.Relevance
	Uncertainty types.Uncertainty
}

// Submission is everything a reviewer sends when completing an evaluation.
// Judgments are keyed by RetrievedItem id.
type Submission struct {
	Judgments      map[string]Judgment
	BelievedIntent string
}

// Workflow opens and completes evaluations.
type Workflow struct {
	docs    Documents
	objects objstore.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	events  bus.Publisher
	now     func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(w *Workflow) { w.log = l } }

// WithMetrics counts opened and completed evaluations.
func WithMetrics(m *metrics.Metrics) Option { return func(w *Workflow) { w.metrics = m } }

// WithPublisher publishes completed evaluations.
func WithPublisher(p bus.Publisher) Option { return func(w *Workflow) { w.events = p } }

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// NewWorkflow creates a workflow.
func NewWorkflow(docs Documents, objects objstore.Store, opts ...Option) *Workflow {
	w := &Workflow{
		docs:    docs,
		objects: objects,
		log:     zerolog.Nop(),
		events:  bus.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open starts an evaluation of retrievalID by reviewerID. The retrieval
// must be completed, its top items readable, and its item references
// linked; the evaluation is only recorded once all three hold.
func (w *Workflow) Open(ctx context.Context, retrievalID, reviewerID string) (*Form, error) {
	var r types.Retrieval
	if err := getDoc(ctx, w.docs, types.TypeRetrieval, retrievalID, &r); err != nil {
		return nil, err
	}
	if r.Status != types.RetrievalCompleted {
		return nil, apperr.New(apperr.KindConflict, "retrieval %s is %s, not completed", retrievalID, r.Status)
	}
	var reviewer types.User
	if err := getDoc(ctx, w.docs, types.TypeUser, reviewerID, &reviewer); err != nil {
		return nil, err
	}
	var q types.Query
	if err := getDoc(ctx, w.docs, types.TypeQuery, r.Query, &q); err != nil {
		return nil, err
	}

	items, err := format.LoadItems(ctx, w.objects, format.ItemsTopKey(r.S3Key))
	if objstore.IsNotFound(err) {
		return nil, apperr.Wrap(apperr.KindStorageReadMiss, err, "top items of retrieval %s", retrievalID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading top items: %w", err)
	}
	if len(r.Items) == 0 {
		return nil, apperr.New(apperr.KindConflict, "retrieval %s has no linked items", retrievalID)
	}

	id, err := w.docs.Insert(ctx, types.Evaluation{
		Evaluator: reviewerID,
		Retrieval: retrievalID,
		Status:    types.EvaluationInProgress,
		CreatedAt: w.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating evaluation: %w", err)
	}
	w.metrics.RecordEvaluationOpened()
	w.log.Info().Str("evaluation", id).Str("retrieval", retrievalID).Str("reviewer", reviewer.Username).
		Msg("opened evaluation")

	form := &Form{EvaluationID: id, RetrievalID: retrievalID, QueryLiteral: q.QueryLiteral}
	for _, it := range format.Top(items, types.TopN) {
		form.Items = append(form.Items, FormItem{RetrievedItemContent: it, Highlights: OrderHighlights(it.Highlighting)})
	}
	return form, nil
}

// Submit completes evaluationID with sub on behalf of reviewerID. Every top
// item of the retrieval gets a judgment: omitted relevance becomes
// "not relevant" and omitted uncertainty "not supplied". Judgments for items
// outside the top are ignored. A completed evaluation cannot be submitted
// again, and a retrieval without linked items cannot be judged.
func (w *Workflow) Submit(ctx context.Context, evaluationID, reviewerID string, sub Submission) (*types.Evaluation, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	var ev types.Evaluation
	err := w.docs.Batch(ctx, func(tx *docstore.Tx) error {
		if err := getDoc(ctx, tx, types.TypeEvaluation, evaluationID, &ev); err != nil {
			return err
		}
		if ev.Status != types.EvaluationInProgress {
			return apperr.New(apperr.KindConflict, "evaluation %s is already %s", evaluationID, ev.Status)
		}
		if ev.Evaluator != reviewerID {
			return apperr.New(apperr.KindForbidden, "evaluation %s belongs to another reviewer", evaluationID)
		}

		var r types.Retrieval
		if err := getDoc(ctx, tx, types.TypeRetrieval, ev.Retrieval, &r); err != nil {
			return err
		}
		top := r.TopItems(types.TopN)
		if len(top) == 0 {
			return apperr.New(apperr.KindConflict, "retrieval %s has no linked items", ev.Retrieval)
		}
		w.warnUnknown(evaluationID, top, sub)

		relevant := 0
		for _, item := range top {
			j := withDefaults(sub.Judgments[item.ID])
			if j.Relevance == types.Relevant {
				relevant++
			}
			if _, err := tx.Insert(ctx, types.ItemOfEvaluation{
				Evaluation:       evaluationID,
				RetrievedItem:    item.ID,
				EvaluationStatus: types.EvaluationCompleted,
				Relevance:        j.Relevance,
				Uncertainty:      j.Uncertainty,
			}); err != nil {
				return fmt.Errorf("recording judgment for %s: %w", item.ID, err)
			}
		}

		doneAt := w.now().UTC()
		ev.Status = types.EvaluationCompleted
		ev.Done = true
		ev.DoneAt = &doneAt
		ev.BelievedIntent = sub.BelievedIntent
		p := float64(relevant) / float64(len(top))
		ev.PAt25 = &p
		return tx.Replace(ctx, evaluationID, ev)
	})
	if err != nil {
		return nil, err
	}

	w.metrics.RecordEvaluationCompleted("user")
	w.log.Info().Str("evaluation", evaluationID).Msg("completed evaluation")
	e := bus.NewEvent(bus.TopicEvaluationCompleted, bus.EvaluationEvent{
		EvaluationID: evaluationID,
		RetrievalID:  ev.Retrieval,
		Evaluator:    ev.Evaluator,
		PAt25:        ev.PAt25,
	})
	if err := w.events.Publish(ctx, bus.TopicEvaluationCompleted, e); err != nil {
		w.log.Warn().Err(err).Msg("publishing evaluation event")
	}
	return &ev, nil
}

func (w *Workflow) warnUnknown(evaluationID string, top []types.RetrievedItem, sub Submission) {
	known := make(map[string]bool, len(top))
	for _, it := range top {
		known[it.ID] = true
	}
	for id := range sub.Judgments {
		if !known[id] {
			w.log.Warn().Str("evaluation", evaluationID).Str("item", id).Msg("ignoring judgment for unknown item")
		}
	}
}

func validate(sub Submission) error {
	for id, j := range sub.Judgments {
		if j.Relevance != "" && !j.Relevance.Valid() {
			return apperr.New(apperr.KindValidation, "item %s: unknown relevance %q", id, j.Relevance)
		}
		if j.Uncertainty != "" && !j.Uncertainty.Valid() {
			return apperr.New(apperr.KindValidation, "item %s: unknown uncertainty %q", id, j.Uncertainty)
		}
	}
	return nil
}

func withDefaults(j Judgment) Judgment {
	if j.Relevance == "" {
		j.Relevance = types.NotRelevant
	}
	if j.Uncertainty == "" {
		j.Uncertainty = types.UncertaintyNotGiven
	}
	return j
}

// highlightPriority orders the fields shown first.
var highlightPriority = map[string]int{"title": 0, "abstract": 1, "body": 2, "ack": 3}

// OrderHighlights lists hl by field: title, abstract, body, ack, then the
// rest alphabetically.
func OrderHighlights(hl map[string][]string) []Highlight {
	out := make([]Highlight, 0, len(hl))
	for field, frags := range hl {
		out = append(out, Highlight{Field: field, Fragments: frags})
	}
	sort.Slice(out, func(i, j int) bool {
		pi, iok := highlightPriority[out[i].Field]
		pj, jok := highlightPriority[out[j].Field]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return out[i].Field < out[j].Field
		}
	})
	return out
}

func getDoc(ctx context.Context, s docstore.Session, docType, id string, out any) error {
	if _, err := s.FindOne(ctx, docType, docstore.Template{"@id": id}, out); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperr.NotFound(docType, id)
		}
		return fmt.Errorf("loading %s: %w", id, err)
	}
	return nil
}
