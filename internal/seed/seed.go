// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package seed bootstraps the document store with the queries to retrieve
// and the topic-review evaluating procedure.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/topicreview"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

//go:embed queries.yaml
var defaultSeed []byte

// Seed lists the query literals and, per literal, the bibcode queries of
// its topic reviews.
type Seed struct {
	Queries      []string            `yaml:"queries"`
	TopicReviews map[string][]string `yaml:"topic_reviews"`
}

// Result reports what Bootstrap inserted.
type Result struct {
	QueriesInserted   []string
	ProcedureInserted bool
}

// Parse decodes a seed document. Every query must be non-empty and unique.
func Parse(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing seed: %w", err)
	}
	seen := map[string]bool{}
	for i, q := range s.Queries {
		if q == "" {
			return s, fmt.Errorf("seed query %d is empty", i+1)
		}
		if seen[q] {
			return s, fmt.Errorf("seed query %q is listed twice", q)
		}
		seen[q] = true
	}
	return s, nil
}

// Default returns the embedded seed.
func Default() Seed {
	s, err := Parse(defaultSeed)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads a seed file, or returns the embedded seed when path is empty.
func Load(path string) (Seed, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("reading seed file: %w", err)
	}
	return Parse(data)
}

// Bootstrap inserts the seed queries that are not stored yet and ensures
// the topic-review procedure exists. Stored documents are never modified,
// so running it again is harmless.
func Bootstrap(ctx context.Context, docs *docstore.Store, s Seed) (Result, error) {
	var res Result
	err := docs.Batch(ctx, func(tx *docstore.Tx) error {
		res = Result{}
		stored, err := docstore.All[types.Query](ctx, tx, types.TypeQuery, nil)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(stored))
		for _, q := range stored {
			have[q.QueryLiteral] = true
		}
		for _, literal := range s.Queries {
			if have[literal] {
				continue
			}
			if _, err := tx.Insert(ctx, types.Query{QueryLiteral: literal}); err != nil {
				return fmt.Errorf("inserting query %q: %w", literal, err)
			}
			res.QueriesInserted = append(res.QueriesInserted, literal)
		}

		_, err = topicreview.LookupProcedure(ctx, tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		if _, err := tx.Insert(ctx, types.EvaluatingProcedure{
			FQN:     topicreview.ProcedureFQN,
			Version: topicreview.ProcedureVersion,
			Config:  s.TopicReviews,
		}); err != nil {
			return fmt.Errorf("inserting evaluating procedure: %w", err)
		}
		res.ProcedureInserted = true
		return nil
	})
	return res, err
}

// Queries returns every stored query sorted by literal.
func Queries(ctx context.Context, docs docstore.Session) ([]types.Query, error) {
	out, err := docstore.All[types.Query](ctx, docs, types.TypeQuery, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueryLiteral < out[j].QueryLiteral })
	return out, nil
}
