// File path: internal/api/server.go

// Package api exposes the evaluation service over HTTP: a synchronous
// evaluate endpoint, the asynchronous job endpoints, and the operational
// health, config, and log endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/jobs"
	"github.com/auditlens/auditlens/internal/llm"
	"github.com/auditlens/auditlens/internal/orchestrator"
)

type Server struct {
	router   chi.Router
	provider llm.Provider
	engine   *orchestrator.Engine
	store    jobs.Store
	queue    jobs.Queue
	worker   *jobs.Worker
	cfg      Config
}

// Config controls request admission and reporting for the API server.
type Config struct {
	// MaxRequestBytes caps the evaluate request body, evidence included.
	MaxRequestBytes int64
	// Workers is reported by the config endpoint; the pool itself is sized
	// at startup.
	Workers int
	// MaxRefine is reported by the config endpoint.
	MaxRefine int
}

// DefaultConfig returns the standard configuration used when no overrides
// are provided.
func DefaultConfig() Config {
	return Config{
		MaxRequestBytes: 64 << 20,
		Workers:         2,
		MaxRefine:       2,
	}
}

// Merge overlays non-zero configuration values from the override onto the
// base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if override.MaxRequestBytes > 0 {
		result.MaxRequestBytes = override.MaxRequestBytes
	}
	if override.Workers > 0 {
		result.Workers = override.Workers
	}
	if override.MaxRefine > 0 {
		result.MaxRefine = override.MaxRefine
	}
	return result
}

func NewServer(engine *orchestrator.Engine, provider llm.Provider, store jobs.Store, queue jobs.Queue, worker *jobs.Worker, cfg *Config) (*Server, error) {
	logger := common.Logger()
	if engine == nil {
		return nil, fmt.Errorf("orchestrator engine required")
	}
	if store == nil || queue == nil {
		return nil, fmt.Errorf("job store and queue required")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	providerName := "unknown"
	if provider != nil {
		providerName = provider.Name()
	}
	logger.Info("api: building server", "provider", providerName, "workers", configuration.Workers)
	srv := &Server{
		router:   chi.NewRouter(),
		provider: provider,
		engine:   engine,
		store:    store,
		queue:    queue,
		worker:   worker,
		cfg:      configuration,
	}
	srv.routes()
	logger.Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/v1/config", s.handleConfig)
	s.router.Post("/v1/evaluate", s.handleEvaluate)
	s.router.Post("/v1/jobs", s.handleJobSubmit)
	s.router.Get("/v1/jobs", s.handleJobList)
	s.router.Get("/v1/jobs/{jobID}/status", s.handleJobStatus)
	s.router.Get("/v1/jobs/{jobID}/results", s.handleJobResults)
	s.router.Post("/v1/jobs/{jobID}/cancel", s.handleJobCancel)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// jobErrorStatus maps job store sentinels onto HTTP statuses.
func jobErrorStatus(err error) int {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
