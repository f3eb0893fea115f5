// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search is the client for the ADS search API. It issues paginated
// GET requests with a fixed field and highlighting parameter set and never
// retries: a non-200 response fails the whole fetch.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/httputil"
	"github.com/pdiddy/ads-query-eval/internal/metrics"
)

// DefaultBaseURL is the ADS search endpoint.
const DefaultBaseURL = "https://api.adsabs.harvard.edu/v1/search/query"

const (
	// FirstPageRows is the page size of FetchFirstPage.
	FirstPageRows = 25

	// MaxRows is the largest page the API serves.
	MaxRows = 200

	// DefaultMaxItems is how many results a retrieval collects.
	DefaultMaxItems = 1000
)

// Fields is the fixed field list requested for every document.
var Fields = []string{
	"identifier", "[citations]", "reference", "abstract", "author",
	"book_author", "orcid_pub", "orcid_user", "orcid_other", "bibcode",
	"citation_count", "comment", "doi", "id", "keyword", "page", "property",
	"pub", "pub_raw", "pubdate", "pubnote", "read_count", "title", "volume",
	"links_data", "esources", "data", "citation_count_norm", "email", "doctype",
}

// Params returns the query string for one page of q.
func Params(q string, rows, start int) url.Values {
	return url.Values{
		"__clearBigQuery":         {"true"},
		"fl":                      {strings.Join(Fields, ",")},
		"hl":                      {"true"},
		"hl.fl":                   {"title,abstract,body,ack,*"},
		"hl.maxAnalyzedChars":     {"150000"},
		"hl.requireFieldMatch":    {"true"},
		"hl.usePhraseHighlighter": {"true"},
		"q":                       {q},
		"rows":                    {strconv.Itoa(rows)},
		"sort":                    {"score desc"},
		"start":                   {strconv.Itoa(start)},
	}
}

// Client queries the ADS search API.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLimiter paces requests. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// NewClient creates a client for baseURL authenticating with token.
// An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFirstPage returns the first FirstPageRows results for q.
func (c *Client) FetchFirstPage(ctx context.Context, q string) (Page, error) {
	return c.fetchPage(ctx, q, FirstPageRows, 0)
}

// FetchFirstN collects pages until n documents have been fetched or a page
// comes back short. Pages hold at most MaxRows documents.
func (c *Client) FetchFirstN(ctx context.Context, q string, n int) ([]Page, error) {
	if n <= 0 {
		return nil, apperr.New(apperr.KindValidation, "fetch size must be positive, got %d", n)
	}
	rows := min(n, MaxRows)

	var pages []Page
	fetched, start := 0, 0
	for {
		page, err := c.fetchPage(ctx, q, rows, start)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)

		got := len(page.Response.Docs)
		fetched += got
		if fetched >= n || got < rows {
			return pages, nil
		}
		start += rows
		c.log.Debug().Str("q", q).Int("start", start).Msg("fetching next page")
	}
}

func (c *Client) fetchPage(ctx context.Context, q string, rows, start int) (Page, error) {
	reqURL := c.baseURL + "?" + Params(q, rows, start).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	began := time.Now()
	resp, err := httputil.Do(ctx, c.http, c.limiter, req)
	if err != nil {
		c.metrics.RecordSearchRequest("error", time.Since(began))
		return Page{}, fmt.Errorf("ADS search request: %w", err)
	}
	c.metrics.RecordSearchRequest(strconv.Itoa(resp.StatusCode), time.Since(began))

	var page Page
	if err := httputil.ReadJSON(resp, &page); err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			return Page{}, apperr.Wrap(apperr.KindUpstream, se, "ADS search for %q (start %d)", q, start)
		}
		return Page{}, apperr.Wrap(apperr.KindSerialization, err, "parsing ADS response")
	}
	return page, nil
}
