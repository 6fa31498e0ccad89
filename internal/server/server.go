// Package server exposes describe and locate jobs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/store"
	"github.com/disintegration/imaging"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runner     *Runner
	addr       string
	server     *http.Server
	baseCtx    context.Context
	cancelAll  context.CancelFunc
}

// NewServer creates a server on addr. A nil runner runs jobs sequentially
// without persistence.
func NewServer(addr string, runner *Runner) *Server {
	if runner == nil {
		runner = NewRunner(nil, nil, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		runner:     runner,
		addr:       addr,
		baseCtx:    ctx,
		cancelAll:  cancel,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/jobs/", s.handleJobPage)

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/records", s.handleListRecords)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodDelete:
		s.handleCancelJob(w, r, jobID)
	case sub == "" || sub == "status":
		s.handleGetJobStatus(w, r, jobID)
	case sub == "descriptor":
		s.handleGetDescriptor(w, r, jobID)
	case sub == "hog.png":
		s.handleGetVisualization(w, r, jobID)
	case sub == "trace":
		s.handleGetTrace(w, r, jobID)
	case sub == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if err := applyDefaults(&config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// startJob runs the job's worker in the background.
func (s *Server) startJob(jobID string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.SetCancel(jobID, cancel)
	go func() {
		defer s.jobManager.Release(jobID)
		defer cancel()
		runJob(ctx, s.jobManager, s.runner, jobID)
	}()
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.Cancel(jobID) {
		http.Error(w, "Job is not running", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"stage":       job.Stage,
		"config":      job.Config,
		"grid":        job.Grid,
		"summary":     job.Summary,
		"match":       job.Match,
		"evaluations": job.Evaluations,
		"distance":    job.Distance,
		"elapsed":     job.Elapsed().Seconds(),
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	}
	writeJSON(w, http.StatusOK, response)
}

// descriptorFor returns the descriptor of a finished job. Jobs no longer in
// memory are looked up in the record store.
func (s *Server) descriptorFor(jobID string) (*hog.Descriptor, error) {
	s.jobManager.mu.RLock()
	job, exists := s.jobManager.jobs[jobID]
	var d *hog.Descriptor
	if exists {
		d = job.descriptor
	}
	s.jobManager.mu.RUnlock()

	if exists {
		if d == nil {
			return nil, errNoDescriptor
		}
		return d, nil
	}

	if s.runner.store == nil {
		return nil, &store.NotFoundError{JobID: jobID}
	}
	record, err := s.runner.store.LoadRecord(jobID)
	if err != nil {
		return nil, err
	}
	return record.Descriptor(), nil
}

func (s *Server) writeDescriptorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoDescriptor):
		http.Error(w, "No results yet", http.StatusNotFound)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleGetDescriptor handles GET /api/v1/jobs/:id/descriptor
func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request, jobID string) {
	d, err := s.descriptorFor(jobID)
	if err != nil {
		s.writeDescriptorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleGetVisualization handles GET /api/v1/jobs/:id/hog.png?cell=N
func (s *Server) handleGetVisualization(w http.ResponseWriter, r *http.Request, jobID string) {
	d, err := s.descriptorFor(jobID)
	if err != nil {
		s.writeDescriptorError(w, err)
		return
	}

	cell := visualizationCell
	if v := r.URL.Query().Get("cell"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 3 || n > 64 {
			http.Error(w, "cell must be an integer in [3, 64]", http.StatusBadRequest)
			return
		}
		cell = n
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := imaging.Encode(w, hog.Visualize(d, cell), imaging.PNG); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.runner.store == nil {
		http.Error(w, "No record store configured", http.StatusNotFound)
		return
	}
	entries, err := s.runner.store.ReadTrace(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleListRecords handles GET /api/v1/records
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runner.store == nil {
		writeJSON(w, http.StatusOK, []store.RecordInfo{})
		return
	}
	infos, err := s.runner.store.ListRecords()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
