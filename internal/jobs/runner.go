// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// Retriever settles the retrieval of a query for a date.
type Retriever interface {
	Retrieve(ctx context.Context, queryLiteral, date string) (*retrieval.Handle, error)
}

// Formatter derives item projections of a retrieval.
type Formatter interface {
	Format(ctx context.Context, h *retrieval.Handle) error
}

// Evaluator runs an automated evaluation of a retrieval.
type Evaluator interface {
	Evaluate(ctx context.Context, h *retrieval.Handle) (*types.Evaluation, error)
}

// Outcome is the result of one job run.
type Outcome struct {
	Job    Job
	Handle *retrieval.Handle
	Err    error
}

// Runner chains retrieval, formatting and automated evaluation.
type Runner struct {
	retriever Retriever
	formatter Formatter
	evaluator Evaluator
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewRunner creates a runner. evaluator and m may be nil.
func NewRunner(r Retriever, f Formatter, e Evaluator, log zerolog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{retriever: r, formatter: f, evaluator: e, log: log, metrics: m}
}

// Run executes job for date (empty for today).
func (r *Runner) Run(ctx context.Context, job Job, date string) (h *retrieval.Handle, err error) {
	start := time.Now()
	log := r.log.With().Str("job", job.Name).Logger()
	defer func() {
		r.metrics.RecordJobRun(job.Name, err, time.Since(start))
		if err != nil {
			log.Error().Err(err).Msg("job failed")
		}
	}()

	h, err = r.retriever.Retrieve(ctx, job.QueryLiteral, date)
	if err != nil {
		return nil, fmt.Errorf("retrieving: %w", err)
	}
	log.Info().Str("retrieval", h.RetrievalID).Str("outcome", h.Outcome).Msg("retrieval settled")

	if err = r.formatter.Format(ctx, h); err != nil {
		return h, fmt.Errorf("formatting: %w", err)
	}
	if r.evaluator != nil {
		if _, err = r.evaluator.Evaluate(ctx, h); err != nil {
			return h, fmt.Errorf("evaluating: %w", err)
		}
	}
	return h, nil
}

// RunAll runs every job for date, at most parallel at a time. A failing job
// does not stop the others; the returned error joins every failure.
func (r *Runner) RunAll(ctx context.Context, jobs []Job, date string, parallel int) ([]Outcome, error) {
	if parallel <= 0 {
		parallel = DefaultParallelism
	}
	outcomes := make([]Outcome, len(jobs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, job := range jobs {
		g.Go(func() error {
			h, err := r.Run(ctx, job, date)
			outcomes[i] = Outcome{Job: job, Handle: h, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Job.Name, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}
