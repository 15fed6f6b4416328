package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/models"
	"github.com/ablair264/SplitLease-Backend/internal/ratelimit"
	"github.com/ablair264/SplitLease-Backend/internal/store"
	"github.com/ablair264/SplitLease-Backend/internal/telemetry"
)

// JobStore is the slice of the store the API needs.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobs(ctx context.Context, status string, limit int) ([]models.Job, error)
	ListResults(ctx context.Context, jobID string) ([]models.QuoteResult, error)
	ResetJob(ctx context.Context, id string) error
}

// Server wires HTTP handlers for job intake and status.
type Server struct {
	cfg     config.Config
	store   JobStore
	limiter *ratelimit.Limiter
}

// New constructs the API server. The limiter may be nil to disable intake
// rate limiting.
func New(cfg config.Config, st JobStore, limiter *ratelimit.Limiter) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		limiter: limiter,
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

	r.Post("/jobs", s.handleCreateJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/results", s.handleListResults)
	r.Post("/jobs/{id}/reset", s.handleResetJob)
	return r
}

type createJobRequest struct {
	Vehicles      []models.Vehicle     `json:"vehicles"`
	Configuration models.Configuration `json:"configuration"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Vehicles) == 0 {
		http.Error(w, "vehicles are required", http.StatusBadRequest)
		return
	}
	for _, v := range req.Vehicles {
		if v.Manufacturer == "" || v.Model == "" {
			http.Error(w, "every vehicle needs manufacturer and model", http.StatusBadRequest)
			return
		}
	}
	if err := req.Configuration.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), accountFromRequest(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		Vehicles:      req.Vehicles,
		Configuration: req.Configuration,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !models.ValidStatus(status) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := s.store.ListJobs(r.Context(), status, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results, err := s.store.ListResults(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.QuoteResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "results": results, "count": len(results)})
}

// handleResetJob is the manual recovery path for stuck or failed jobs: back
// to pending with counts and results cleared.
func (s *Server) handleResetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.ResetJob(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "job not found", http.StatusNotFound)
		case errors.Is(err, store.ErrNotPending):
			http.Error(w, "job is already pending", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.StatusPending})
}

func accountFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Account-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
