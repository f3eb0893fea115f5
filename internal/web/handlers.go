// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package web

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/docstore"
	"github.com/pdiddy/ads-query-eval/internal/evaluation"
	"github.com/pdiddy/ads-query-eval/internal/seed"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := seed.Queries(r.Context(), s.Docs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "queries", struct{ Queries []types.Query }{queries})
}

func (s *Server) handleRetrievals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	literal := r.PathValue("literal")

	var q types.Query
	qid, err := s.Docs.FindOne(ctx, types.TypeQuery, docstore.Template{"query_literal": literal}, &q)
	if errors.Is(err, docstore.ErrNotFound) {
		s.writeError(w, r, apperr.NotFound(types.TypeQuery, literal))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	retrievals, err := docstore.All[types.Retrieval](ctx, s.Docs, types.TypeRetrieval, docstore.Template{"query": qid})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sort.SliceStable(retrievals, func(i, j int) bool {
		a, b := retrievals[i].DoneAt, retrievals[j].DoneAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	s.render(w, r, http.StatusOK, "retrievals", struct {
		Query      types.Query
		Retrievals []types.Retrieval
	}{q, retrievals})
}

func (s *Server) handleRetrieval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := types.TypeRetrieval + "/" + r.PathValue("id")

	var rec types.Retrieval
	if err := s.load(r, types.TypeRetrieval, id, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	var q types.Query
	if err := s.Docs.Get(ctx, rec.Query, &q); err != nil {
		s.writeError(w, r, err)
		return
	}
	evals, err := docstore.All[types.Evaluation](ctx, s.Docs, types.TypeEvaluation, docstore.Template{"retrieval": id})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "retrieval", struct {
		Query       types.Query
		Retrieval   types.Retrieval
		Evaluations []types.Evaluation
		Evaluable   bool
		TopN        int
	}{q, rec, evals, rec.Status == types.RetrievalCompleted, types.TopN})
}

func (s *Server) handleOpenEvaluation(w http.ResponseWriter, r *http.Request) {
	reviewer := reviewerFrom(r.Context())
	form, err := s.Workflow.Open(r.Context(), types.TypeRetrieval+"/"+r.PathValue("id"), reviewer.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "evaluate", struct {
		Form        *evaluation.Form
		Relevance   []types.Relevance
		Uncertainty []types.Uncertainty
	}{
		form,
		[]types.Relevance{types.Relevant, types.SomewhatRelevant, types.NotRelevant},
		[]types.Uncertainty{types.Certain, types.Uncertain},
	})
}

func (s *Server) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "reading form"))
		return
	}
	reviewer := reviewerFrom(r.Context())
	ev, err := s.Workflow.Submit(r.Context(), types.TypeEvaluation+"/"+r.PathValue("id"), reviewer.ID,
		evaluation.ParseForm(r.PostForm))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/retrievals/"+types.IDSuffix(ev.Retrieval), http.StatusSeeOther)
}

func (s *Server) handleNewInviteLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.Users.NewInviteLink(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, strings.TrimSuffix(s.Config.SiteURL, "/")+"/invite_link/"+link.Token, http.StatusSeeOther)
}

func (s *Server) handleInviteLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.Users.ValidInviteLink(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "credentials_request", struct{ Token string }{link.Token})
}

func (s *Server) handleCredentialsRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, err, "reading form"))
		return
	}
	email := r.PostForm.Get("email_address")
	creds, err := s.Users.RequestCredentials(r.Context(), r.PostForm.Get("invite_link_token"), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Log.Info().Str("user", creds.UserID).Msg("issued credentials")
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusOK, "credentials_issued", struct {
		Email, Username, Password string
	}{email, creds.Username, creds.Password})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Docs.Ping(r.Context()); err != nil {
		s.Log.Error().Err(err).Msg("health check failed")
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) load(r *http.Request, docType, id string, out any) error {
	_, err := s.Docs.FindOne(r.Context(), docType, docstore.Template{"@id": id}, out)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound(docType, id)
	}
	return err
}
