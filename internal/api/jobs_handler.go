// File path: internal/api/jobs_handler.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/jobs"
)

// jobStatusResponse is the polling view of a job, without its result payload.
type jobStatusResponse struct {
	ID         string      `json:"id"`
	Status     jobs.Status `json:"status"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  string      `json:"created_at"`
	StartedAt  string      `json:"started_at,omitempty"`
	FinishedAt string      `json:"finished_at,omitempty"`
}

func statusView(job jobs.Job) jobStatusResponse {
	resp := jobStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(timeLayout),
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(timeLayout)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(timeLayout)
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// handleJobSubmit accepts an evaluation request, persists it as a pending
// job, and enqueues it for the worker pool.
func (s *Server) handleJobSubmit(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("encode job request: %w", err))
		return
	}
	job := jobs.NewJob(encoded)
	if err := s.store.Create(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), job.ID); err != nil {
		// The pending record must not linger once admission fails.
		if failErr := s.store.Fail(r.Context(), job.ID, "enqueue failed: "+err.Error()); failErr != nil {
			logger.Error("api: mark unqueued job failed", "job", job.ID, "error", failErr)
		}
		writeError(w, jobErrorStatus(err), err)
		return
	}
	logger.Info("api: job submitted", "job", job.ID, "control", req.ControlID, "evidence", len(req.Evidence))
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": string(job.Status)})
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = value
	}
	list, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]jobStatusResponse, 0, len(list))
	for _, job := range list {
		views = append(views, statusView(job))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, jobErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(job))
}

// handleJobResults returns the stored result once the job completed. Pending
// and running jobs answer 409, canceled jobs 410, failed jobs carry the error.
func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, jobErrorStatus(err), err)
		return
	}
	switch job.Status {
	case jobs.StatusPending, jobs.StatusRunning:
		writeError(w, http.StatusConflict, fmt.Errorf("job %s still %s", job.ID, job.Status))
	case jobs.StatusCanceled:
		writeError(w, http.StatusGone, fmt.Errorf("job %s was canceled", job.ID))
	case jobs.StatusFailed:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     job.ID,
			"status": job.Status,
			"error":  job.Error,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     job.ID,
			"status": job.Status,
			"result": json.RawMessage(job.Result),
		})
	}
}

// handleJobCancel marks the job canceled and interrupts it when it is
// already executing. Canceling a canceled job is idempotent.
func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	id := chi.URLParam(r, "jobID")
	if err := s.store.Cancel(r.Context(), id); err != nil {
		writeError(w, jobErrorStatus(err), err)
		return
	}
	interrupted := false
	if s.worker != nil {
		interrupted = s.worker.Cancel(id)
	}
	logger.Info("api: job canceled", "job", id, "interrupted", interrupted)
	job, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, jobErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(job))
}
