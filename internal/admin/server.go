package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"videopipeline/internal/store"
)

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the admin status surface: list jobs, inspect one, re-arm a
// failed one. Authentication sits in front of it and is not handled here.
type Server struct {
	Store  store.JobStore
	DB     Pinger
	Logger *slog.Logger
}

func NewServer(s store.JobStore, db Pinger, logger *slog.Logger) *Server {
	return &Server{Store: s, DB: db, Logger: logger}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jobs", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/retry", s.handleRetry).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Store.ListAll(r.Context())
	if err != nil {
		s.Logger.Error("list jobs failed", "error", err)
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := s.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("get job failed", "job_id", id, "error", err)
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.Store.Retry(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	case errors.Is(err, store.ErrNotRetryable):
		http.Error(w, "job is not in the failed state", http.StatusConflict)
	case err != nil:
		s.Logger.Error("retry failed", "job_id", id, "error", err)
		http.Error(w, "failed to retry job", http.StatusInternalServerError)
	default:
		s.Logger.Info("job re-armed for processing", "job_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"jobId": id, "status": "processing"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
