// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package web serves the reviewer UI: browsing queries and retrievals,
// evaluating a retrieval's top items, and the invite-link flow that hands
// out reviewer credentials.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/evaluation"
	"github.com/pdiddy/ads-query-eval/internal/users"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// Documents is the document-store surface the UI reads.
type Documents interface {
	docstore.Session
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Docs     Documents
	Workflow *evaluation.Workflow
	Users    *users.Service
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
	Config   types.ServerConfig
}

// Server is the reviewer UI.
type Server struct {
	Deps
	tmpl *template.Template
}

// New parses the templates and returns a server.
func New(d Deps) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"suffix":     types.IDSuffix,
		"pathEscape": url.PathEscape,
		"fieldName":  evaluation.FieldName,
		"fmtTime":    fmtTime,
		"fmtFloat":   fmtFloat,
		"highlight":  highlight,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{Deps: d, tmpl: tmpl}, nil
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleQueries)
	mux.HandleFunc("GET /queries/{literal}", s.handleRetrievals)
	mux.HandleFunc("GET /retrievals/{id}", s.handleRetrieval)
	mux.Handle("GET /retrievals/{id}/evaluations/new", s.reviewer(s.handleOpenEvaluation))
	mux.Handle("POST /evaluations/{id}", s.reviewer(s.handleSubmitEvaluation))
	mux.Handle("GET /invite_link/new", s.admin(s.handleNewInviteLink))
	mux.HandleFunc("GET /invite_link/{token}", s.handleInviteLink)
	mux.HandleFunc("POST /credentials_request", s.handleCredentialsRequest)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.Log.Info().Str("addr", s.Config.Addr).Msg("serving")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- middleware ---

type ctxKey struct{}

func reviewerFrom(ctx context.Context) types.User {
	u, _ := ctx.Value(ctxKey{}).(types.User)
	return u
}

// reviewer requires basic-auth credentials of a stored reviewer.
func (s *Server) reviewer(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			s.writeError(w, r, apperr.New(apperr.KindUnauthorized, "credentials required"))
			return
		}
		user, err := s.Users.Authenticate(r.Context(), username, password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

// admin requires the configured administrator credentials.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || s.Config.AdminUsername == "" || s.Config.AdminPassword == "" ||
			!equal(username, s.Config.AdminUsername) || !equal(password, s.Config.AdminPassword) {
			s.writeError(w, r, apperr.New(apperr.KindUnauthorized, "incorrect username or password"))
			return
		}
		next(w, r)
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// --- rendering ---

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.Log.Error().Err(err).Str("template", name).Msg("rendering page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="ads-query-eval", charset="UTF-8"`)
	}
	s.render(w, r, status, "error", struct {
		Status  int
		Message string
	}{status, msg})
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

func fmtFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *f)
}

// highlight escapes a search-engine fragment but keeps its <em> markers.
func highlight(fragment string) template.HTML {
	escaped := html.EscapeString(fragment)
	escaped = strings.ReplaceAll(escaped, "&lt;em&gt;", "<em>")
	escaped = strings.ReplaceAll(escaped, "&lt;/em&gt;", "</em>")
	return template.HTML(escaped)
}
