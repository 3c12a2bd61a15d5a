// Package worker hosts the executor behind a serverless-style HTTP API.
//
// Jobs are submitted to /v2/{endpoint}/runsync (execute and wait) or
// /v2/{endpoint}/run (queue and poll /status/{id}). A fixed number of
// execution slots bounds concurrency: synchronous requests that find no
// free slot are rejected with 429, queued jobs wait for one.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/podexec/pkg/api"
	"github.com/rhuss/podexec/pkg/debug"
	"github.com/rhuss/podexec/pkg/executor"
	"github.com/rhuss/podexec/pkg/observability"
	"github.com/rhuss/podexec/pkg/storage"
)

// Config holds the worker's request handling settings.
type Config struct {
	// EndpointID restricts the served endpoint. Empty serves any.
	EndpointID string

	// MaxConcurrent is the number of execution slots (default: 3).
	MaxConcurrent int

	// MaxBodyBytes limits job request bodies (default: 10 MiB).
	MaxBodyBytes int64

	// MetricsPath serves Prometheus metrics when set.
	MetricsPath string
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access and lifecycle logs.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAuth wraps the job routes with mw. Liveness and metrics stay open.
func WithAuth(mw Middleware) Option {
	return func(s *Server) { s.auth = mw }
}

// Server executes jobs received over HTTP.
type Server struct {
	cfg     Config
	handler *executor.Handler
	store   JobStore
	logger  *slog.Logger
	auth    Middleware

	slots   chan struct{}
	running atomic.Int32

	// ctx is cancelled on shutdown; queued jobs still waiting for a slot
	// give up when it ends.
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	httpServer *http.Server
}

// New creates a Server executing jobs with handler and recording them in
// store.
func New(handler *executor.Handler, store JobStore, cfg Config, opts ...Option) *Server {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		handler: handler,
		store:   store,
		logger:  slog.Default(),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full HTTP handler including middleware.
func (s *Server) Handler() http.Handler {
	guard := func(h http.HandlerFunc) http.Handler {
		if s.auth == nil {
			return h
		}
		return s.auth(h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v2/{endpoint}/runsync", guard(s.handleRunSync))
	mux.Handle("POST /v2/{endpoint}/run", guard(s.handleRun))
	mux.Handle("GET /v2/{endpoint}/status/{id}", guard(s.handleStatus))
	mux.Handle("GET /v2/{endpoint}/health", guard(s.handleHealth))
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	if s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, promhttp.Handler())
	}

	return Chain(
		Recovery(s.logger),
		RequestID(),
		Logging(s.logger),
		observability.MetricsMiddleware,
	)(mux)
}

// endpointOK rejects requests addressed to an endpoint this worker does
// not serve.
func (s *Server) endpointOK(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.EndpointID != "" && r.PathValue("endpoint") != s.cfg.EndpointID {
		writeAPIError(w, api.NewNotFoundError(fmt.Sprintf("endpoint %q not found", r.PathValue("endpoint"))))
		return false
	}
	return true
}

func (s *Server) decodeJob(w http.ResponseWriter, r *http.Request) (api.JobRequest, bool) {
	var req api.JobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeAPIError(w, api.NewInvalidRequestError("input",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
		case errors.Is(err, io.EOF):
			writeAPIError(w, api.NewInvalidRequestError("input", "request body is empty"))
		default:
			writeAPIError(w, api.NewInvalidRequestError("input", "malformed JSON: "+err.Error()))
		}
		return req, false
	}
	return req, true
}

func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	if !s.endpointOK(w, r) {
		return
	}
	req, ok := s.decodeJob(w, r)
	if !ok {
		return
	}

	job := &api.Job{ID: api.NewJobID(true), Input: req.Input, CreatedAt: time.Now()}

	if !s.tryAcquire() {
		slog.Warn("worker at capacity", "job_id", job.ID, "max_concurrent", s.cfg.MaxConcurrent)
		writeAPIError(w, api.NewTooManyRequestsError(
			fmt.Sprintf("at capacity (%d concurrent executions)", s.cfg.MaxConcurrent)))
		return
	}
	defer s.release()

	// The client going away does not cancel a running execution; only
	// its deadline does.
	ctx := context.WithoutCancel(r.Context())

	job.Start(time.Now())
	if err := s.store.SaveJob(ctx, job); err != nil {
		slog.Error("saving job failed", "job_id", job.ID, "error", err)
		writeAPIError(w, api.NewServerError("saving job: "+err.Error()))
		return
	}

	s.execute(ctx, job)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.endpointOK(w, r) {
		return
	}
	req, ok := s.decodeJob(w, r)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	job := &api.Job{
		ID:        api.NewJobID(false),
		Status:    api.JobStatusInQueue,
		Input:     req.Input,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		slog.Error("saving job failed", "job_id", job.ID, "error", err)
		writeAPIError(w, api.NewServerError("saving job: "+err.Error()))
		return
	}

	accepted := api.JobAccepted{ID: job.ID, Status: job.Status}
	queued := job.Clone()
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		s.runQueued(ctx, queued)
	}()

	debug.Log("worker", "job queued", "job_id", accepted.ID)
	writeJSON(w, http.StatusOK, accepted)
}

// runQueued waits for a slot and executes job. If the server shuts down
// first, the job fails without running.
func (s *Server) runQueued(ctx context.Context, job *api.Job) {
	select {
	case s.slots <- struct{}{}:
		s.running.Add(1)
	case <-s.ctx.Done():
		job.Start(time.Now())
		if s.update(ctx, job) {
			job.Finish(api.Failed(errors.New("worker shutting down")), time.Now())
			s.update(ctx, job)
		}
		return
	}
	defer s.release()

	job.Start(time.Now())
	if !s.update(ctx, job) {
		return
	}
	s.execute(ctx, job)
}

// execute runs an IN_PROGRESS job and records its terminal state.
func (s *Server) execute(ctx context.Context, job *api.Job) {
	observability.JobsInProgress.Inc()
	defer observability.JobsInProgress.Dec()

	result := s.handler.Handle(ctx, api.JobRequest{Input: job.Input})
	status := job.Finish(result, time.Now())
	s.update(ctx, job)

	debug.Log("worker", "job finished",
		"job_id", job.ID,
		"status", string(status),
		"delay_ms", job.DelayTime,
		"execution_ms", job.ExecutionTime,
	)
}

func (s *Server) update(ctx context.Context, job *api.Job) bool {
	if err := s.store.UpdateJob(ctx, job); err != nil {
		slog.Error("updating job failed", "job_id", job.ID, "status", string(job.Status), "error", err)
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.endpointOK(w, r) {
		return
	}
	id := r.PathValue("id")
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeAPIError(w, api.NewNotFoundError(fmt.Sprintf("job %q not found", id)))
		return
	}
	if err != nil {
		writeAPIError(w, api.NewServerError("loading job: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.endpointOK(w, r) {
		return
	}

	running := int(s.running.Load())
	workers := &api.WorkerCounts{Running: running, Idle: s.cfg.MaxConcurrent - running}

	if err := s.store.HealthCheck(r.Context()); err != nil {
		slog.Error("job store unhealthy", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unhealthy", Workers: workers})
		return
	}
	counts, err := s.store.CountJobs(r.Context())
	if err != nil {
		writeAPIError(w, api.NewServerError("counting jobs: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy", Jobs: &counts, Workers: workers})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "ok")
}

func (s *Server) tryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		s.running.Add(1)
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	s.running.Add(-1)
	<-s.slots
}
