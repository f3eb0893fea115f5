// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export dumps evaluations with their judgments for offline analysis.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Entry is one evaluation with the context needed to read it on its own.
type Entry struct {
	EvaluationID   string                 `json:"evaluation_id" yaml:"evaluation_id"`
	Evaluator      string                 `json:"evaluator" yaml:"evaluator"`
	Query          string                 `json:"query" yaml:"query"`
	RetrievalID    string                 `json:"retrieval_id" yaml:"retrieval_id"`
	RetrievedAt    *time.Time             `json:"retrieved_at,omitempty" yaml:"retrieved_at,omitempty"`
	Status         types.EvaluationStatus `json:"status" yaml:"status"`
	DoneAt         *time.Time             `json:"done_at,omitempty" yaml:"done_at,omitempty"`
	PAt25          *float64               `json:"p_at_25,omitempty" yaml:"p_at_25,omitempty"`
	RAt1000        *float64               `json:"r_at_1000,omitempty" yaml:"r_at_1000,omitempty"`
	BelievedIntent string                 `json:"believed_intent,omitempty" yaml:"believed_intent,omitempty"`
	Judgments      []Judgment             `json:"judgments,omitempty" yaml:"judgments,omitempty"`
}

// Judgment is one judged item.
type Judgment struct {
	Position    int               `json:"position" yaml:"position"`
	Bibcode     string            `json:"bibcode" yaml:"bibcode"`
	Relevance   types.Relevance   `json:"relevance" yaml:"relevance"`
	Uncertainty types.Uncertainty `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"`
}

// Options filter the export.
type Options struct {
	// QueryLiteral restricts the export to one query.
	QueryLiteral string

	// CompletedOnly drops evaluations still in progress.
	CompletedOnly bool
}

// Entries collects the evaluations matching opts, ordered by query, then
// retrieval time, then evaluation id.
func Entries(ctx context.Context, docs docstore.Session, opts Options) ([]Entry, error) {
	queries, err := docstore.All[types.Query](ctx, docs, types.TypeQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("loading queries: %w", err)
	}
	literals := make(map[string]string, len(queries))
	for _, q := range queries {
		literals[q.ID] = q.QueryLiteral
	}

	tpl := docstore.Template{}
	if opts.CompletedOnly {
		tpl["status"] = string(types.EvaluationCompleted)
	}
	evals, err := docstore.All[types.Evaluation](ctx, docs, types.TypeEvaluation, tpl)
	if err != nil {
		return nil, fmt.Errorf("loading evaluations: %w", err)
	}

	retrievals := map[string]types.Retrieval{}
	var entries []Entry
	for _, ev := range evals {
		r, ok := retrievals[ev.Retrieval]
		if !ok {
			if err := docs.Get(ctx, ev.Retrieval, &r); err != nil {
				return nil, fmt.Errorf("loading retrieval of %s: %w", ev.ID, err)
			}
			retrievals[ev.Retrieval] = r
		}
		literal := literals[r.Query]
		if opts.QueryLiteral != "" && literal != opts.QueryLiteral {
			continue
		}

		judgments, err := judgmentsOf(ctx, docs, ev.ID, r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			EvaluationID:   ev.ID,
			Evaluator:      ev.Evaluator,
			Query:          literal,
			RetrievalID:    ev.Retrieval,
			RetrievedAt:    r.DoneAt,
			Status:         ev.Status,
			DoneAt:         ev.DoneAt,
			PAt25:          ev.PAt25,
			RAt1000:        ev.RAt1000,
			BelievedIntent: ev.BelievedIntent,
			Judgments:      judgments,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Query != b.Query {
			return a.Query < b.Query
		}
		if ta, tb := timeOf(a.RetrievedAt), timeOf(b.RetrievedAt); !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.EvaluationID < b.EvaluationID
	})
	return entries, nil
}

func judgmentsOf(ctx context.Context, docs docstore.Session, evaluationID string, r types.Retrieval) ([]Judgment, error) {
	items, err := docstore.All[types.ItemOfEvaluation](ctx, docs, types.TypeItemOfEvaluation,
		docstore.Template{"evaluation": evaluationID})
	if err != nil {
		return nil, fmt.Errorf("loading judgments of %s: %w", evaluationID, err)
	}
	refs := make(map[string]types.RetrievedItem, len(r.Items))
	for _, it := range r.Items {
		refs[it.ID] = it
	}
	out := make([]Judgment, 0, len(items))
	for _, it := range items {
		ref := refs[it.RetrievedItem]
		out = append(out, Judgment{
			Position:    ref.Position,
			Bibcode:     ref.ADSBibcode,
			Relevance:   it.Relevance,
			Uncertainty: it.Uncertainty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Write encodes entries to w as yaml or json.
func Write(w io.Writer, entries []Entry, format string) error {
	if entries == nil {
		entries = []Entry{}
	}
	switch strings.ToLower(format) {
	case "", FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	default:
		return apperr.New(apperr.KindValidation, "unknown export format %q", format)
	}
}
