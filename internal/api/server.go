package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jhbizops/builder.contractors-sub000/internal/attachments"
	"github.com/jhbizops/builder.contractors-sub000/internal/config"
	"github.com/jhbizops/builder.contractors-sub000/internal/engine"
	"github.com/jhbizops/builder.contractors-sub000/internal/models"
	"github.com/jhbizops/builder.contractors-sub000/internal/ratelimit"
	"github.com/jhbizops/builder.contractors-sub000/internal/store"
	"github.com/jhbizops/builder.contractors-sub000/internal/telemetry"
)

// Server wires HTTP handlers for the allocation API. Authentication
// happens upstream; the trusted actor arrives as headers and is passed
// to the engine verbatim.
type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	limiter  *ratelimit.TokenBucket
	archiver *attachments.Archiver
}

// New constructs the API server. limiter and archiver may be nil.
func New(cfg config.Config, eng *engine.Engine, limiter *ratelimit.TokenBucket, archiver *attachments.Archiver) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		limiter:  limiter,
		archiver: archiver,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleCreate)
	r.Get("/jobs", s.handleList)
	r.Get("/jobs/{id}", s.handleGet)
	r.Patch("/jobs/{id}", s.handleUpdateDetails)
	r.Post("/jobs/{id}/status", s.handleSetStatus)
	r.Post("/jobs/{id}/assign", s.handleAssign)
	r.Post("/jobs/{id}/claim", s.handleClaim)
	r.Post("/jobs/{id}/activity", s.handlePostActivity)
	r.Get("/jobs/{id}/activity", s.handleListActivity)
	r.Post("/jobs/{id}/invite", s.handleInvite)
	return r
}

type createRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	PrivateDetails *string `json:"private_details"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Trade          string  `json:"trade"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	job, err := s.engine.Create(r.Context(), actor, engine.CreateRequest{
		Title:          req.Title,
		Description:    req.Description,
		PrivateDetails: req.PrivateDetails,
		Region:         req.Region,
		Country:        req.Country,
		Trade:          req.Trade,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	jobs, err := s.engine.List(r.Context(), actor, filterFromQuery(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	job, err := s.engine.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type updateRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	PrivateDetails *string `json:"private_details"`
	Region         *string `json:"region"`
	Country        *string `json:"country"`
	Trade          *string `json:"trade"`
}

func (s *Server) handleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	job, err := s.engine.UpdateDetails(r.Context(), actor, chi.URLParam(r, "id"), models.JobPatch{
		Title:          req.Title,
		Description:    req.Description,
		PrivateDetails: req.PrivateDetails,
		Region:         req.Region,
		Country:        req.Country,
		Trade:          req.Trade,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	job, err := s.engine.SetStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req struct {
		AssigneeID string `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	job, err := s.engine.Assign(r.Context(), actor, chi.URLParam(r, "id"), req.AssigneeID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	job, err := s.engine.Claim(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handlePostActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req struct {
		Note        string   `json:"note"`
		Kind        string   `json:"kind"`
		Attachments []string `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	entry, err := s.engine.PostActivity(r.Context(), actor, chi.URLParam(r, "id"), engine.PostActivityRequest{
		Note:        req.Note,
		Kind:        req.Kind,
		Attachments: req.Attachments,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.archiver != nil && len(req.Attachments) > 0 {
		// Detached from the request: archiving previews must not block or
		// fail the response.
		go func(entryID string, urls []string) {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AttachmentTimeout)
			defer cancel()
			if err := s.archiver.Archive(ctx, entryID, urls); err != nil {
				log.Printf("archive attachments: entry=%s err=%v", entryID, err)
			}
		}(entry.ID, req.Attachments)
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	entries, err := s.engine.ListActivity(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	if !s.allowMutation(w, r, actor) {
		return
	}
	var req struct {
		Emails  []string `json:"emails"`
		Message string   `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	receipt, err := s.engine.Invite(r.Context(), actor, chi.URLParam(r, "id"), req.Emails, req.Message)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// requireActor extracts the authenticated actor supplied by the upstream
// authentication layer.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor := models.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Role: r.Header.Get("X-Actor-Role"),
	}
	approved := r.Header.Get("X-Actor-Approved")
	actor.Approved = approved == "true" || approved == "1"

	if actor.ID == "" {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func (s *Server) allowMutation(w http.ResponseWriter, r *http.Request, actor models.Actor) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.AllowActor(r.Context(), actor.ID)
	if err != nil {
		http.Error(w, "rate limit error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrForbidden):
		telemetry.ForbiddenRequests.Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrConflict):
		http.Error(w, "Job already assigned", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
