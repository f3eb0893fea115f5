// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/bus"
	"github.com/pdiddy/ads-query-eval/internal/config"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/format"
	"github.com/pdiddy/ads-query-eval/internal/httputil"
	"github.com/pdiddy/ads-query-eval/internal/jobs"
	"github.com/pdiddy/ads-query-eval/internal/logging"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
	"github.com/pdiddy/ads-query-eval/internal/objstore"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/internal/secrets"
	"github.com/pdiddy/ads-query-eval/internal/seed"
	"github.com/pdiddy/ads-query-eval/internal/topicreview"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// app holds the components every command builds from configuration.
type app struct {
	cfg      types.AppConfig
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	docs     *docstore.Store
	objects  objstore.Store
	events   bus.Publisher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper(), loadedSecrets)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{cfg: cfg, log: log, registry: reg, metrics: metrics.New(reg)}
	if a.docs, err = docstore.Open(cfg.DocStore); err != nil {
		return nil, err
	}
	if a.objects, err = objstore.New(ctx, cfg.ObjectStore); err != nil {
		a.Close()
		return nil, err
	}
	if a.events, err = bus.New(cfg.Bus); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases every component that was opened.
func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if c, ok := a.objects.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
	}
	return errors.Join(errs...)
}

func (a *app) searchClient() (*search.Client, error) {
	if a.cfg.Search.Token == "" {
		return nil, apperr.New(apperr.KindConfiguration,
			"ADS API token missing: set search.token, ADS_QUERY_EVAL_SEARCH_TOKEN or .secrets/%s", secrets.ADSAPIToken)
	}
	return search.NewClient(a.cfg.Search.BaseURL, a.cfg.Search.Token,
		search.WithHTTPClient(&http.Client{Timeout: a.cfg.Search.Timeout}),
		search.WithLimiter(httputil.NewLimiter(a.cfg.Search.RequestsPerSecond)),
		search.WithLogger(logging.Component(a.log, "search")),
		search.WithMetrics(a.metrics),
		search.WithUserAgent(a.cfg.Search.UserAgent),
	), nil
}

// runner wires the retrieval, formatting and topic-review stages.
func (a *app) runner() (*jobs.Runner, error) {
	client, err := a.searchClient()
	if err != nil {
		return nil, err
	}
	loc, err := config.Location(a.cfg.Schedule)
	if err != nil {
		return nil, err
	}
	engine := retrieval.NewEngine(a.docs, a.objects, client,
		retrieval.WithLogger(logging.Component(a.log, "retrieval")),
		retrieval.WithMetrics(a.metrics),
		retrieval.WithPublisher(a.events),
		retrieval.WithLocation(loc),
		retrieval.WithMaxItems(a.cfg.Search.MaxItems),
		retrieval.WithIgnoreQTime(a.cfg.Search.DedupIgnoreQTime),
	)
	formatter := format.NewFormatter(a.docs, a.objects, logging.Component(a.log, "format"), a.metrics)
	evaluator := topicreview.NewEvaluator(a.docs, a.objects, client,
		topicreview.WithLogger(logging.Component(a.log, "topicreview")),
		topicreview.WithMetrics(a.metrics),
	)
	return jobs.NewRunner(engine, formatter, evaluator, logging.Component(a.log, "jobs"), a.metrics), nil
}

// jobRegistry builds the job list from the stored queries.
func (a *app) jobRegistry(ctx context.Context) ([]jobs.Job, error) {
	queries, err := seed.Queries(ctx, a.docs)
	if err != nil {
		return nil, err
	}
	return jobs.BuildRegistry(queries, a.cfg.Schedule)
}
