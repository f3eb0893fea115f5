// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides the Prometheus metrics for ads-query-eval.
//
// All Record methods are safe to call on a nil *Metrics so components can
// run without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retrieval outcomes.
const (
	OutcomeCacheHit   = "cache_hit"
	OutcomeRepaired   = "repaired"
	OutcomeBackfilled = "backfilled"
	OutcomeCompleted  = "completed"
	OutcomeAborted    = "aborted"
	OutcomeFailed     = "failed"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	SearchRequestsTotal   *prometheus.CounterVec
	SearchRequestDuration prometheus.Histogram

	RetrievalsTotal *prometheus.CounterVec
	FormattedItems  prometheus.Counter

	EvaluationsOpened    prometheus.Counter
	EvaluationsCompleted *prometheus.CounterVec

	JobRunsTotal   *prometheus.CounterVec
	JobRunDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.SearchRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsqe_search_requests_total",
			Help: "Search API page requests by HTTP status code",
		},
		[]string{"code"},
	)
	m.SearchRequestDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adsqe_search_request_duration_seconds",
			Help:    "Duration of search API page requests in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.RetrievalsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsqe_retrievals_total",
			Help: "Retrieval attempts by outcome",
		},
		[]string{"outcome"},
	)
	m.FormattedItems = f.NewCounter(
		prometheus.CounterOpts{
			Name: "adsqe_formatted_items_total",
			Help: "Items written to all-items projections",
		},
	)

	m.EvaluationsOpened = f.NewCounter(
		prometheus.CounterOpts{
			Name: "adsqe_evaluations_opened_total",
			Help: "Evaluations created in progress",
		},
	)
	m.EvaluationsCompleted = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsqe_evaluations_completed_total",
			Help: "Evaluations completed, by evaluator kind (user or procedure)",
		},
		[]string{"evaluator"},
	)

	m.JobRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsqe_job_runs_total",
			Help: "Retrieval job runs by status",
		},
		[]string{"job", "status"},
	)
	m.JobRunDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsqe_job_run_duration_seconds",
			Help:    "Duration of retrieval job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"job"},
	)

	return m
}

// RecordSearchRequest records one search API page request.
func (m *Metrics) RecordSearchRequest(code string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(code).Inc()
	m.SearchRequestDuration.Observe(d.Seconds())
}

// RecordRetrieval records the outcome of a retrieval attempt.
func (m *Metrics) RecordRetrieval(outcome string) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.WithLabelValues(outcome).Inc()
}

// RecordFormatted adds n formatted items.
func (m *Metrics) RecordFormatted(n int) {
	if m == nil {
		return
	}
	m.FormattedItems.Add(float64(n))
}

// RecordEvaluationOpened counts a newly opened evaluation.
func (m *Metrics) RecordEvaluationOpened() {
	if m == nil {
		return
	}
	m.EvaluationsOpened.Inc()
}

// RecordEvaluationCompleted counts a completed evaluation.
func (m *Metrics) RecordEvaluationCompleted(evaluator string) {
	if m == nil {
		return
	}
	m.EvaluationsCompleted.WithLabelValues(evaluator).Inc()
}

// RecordJobRun records a job run and its duration.
func (m *Metrics) RecordJobRun(job string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobRunDuration.WithLabelValues(job).Observe(d.Seconds())
}
