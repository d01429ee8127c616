// File path: internal/api/evaluate_handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/evidence"
	"github.com/auditlens/auditlens/internal/highlight"
	"github.com/auditlens/auditlens/internal/jobs"
	"github.com/auditlens/auditlens/internal/orchestrator"
)

// handleEvaluate runs one evaluation synchronously and returns the judgment.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req evaluateRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger.Info("api: evaluate requested", "control", req.ControlID, "evidence", len(req.Evidence))
	resp, err := runEvaluation(r.Context(), s.engine, req)
	if err != nil {
		// Undecodable evidence is the client's mistake, not ours.
		if errors.Is(err, evidence.ErrInvalidPayload) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runEvaluation executes the workflow for one request. It backs both the
// synchronous endpoint and the job runner.
func runEvaluation(ctx context.Context, engine *orchestrator.Engine, req evaluateRequest) (*evaluateResponse, error) {
	result, err := engine.Evaluate(ctx, req.auditContext())
	if err != nil {
		return nil, err
	}
	resp := &evaluateResponse{
		ControlID:   req.ControlID,
		Judgment:    result.Judgment,
		Plan:        result.Plan,
		TaskResults: result.TaskResults,
		Trace:       result.Trace,
		Provider:    result.Provider,
	}
	if req.Highlight {
		matches := highlight.FindCitations(result.Documents, result.Judgment.Citations)
		applied := highlight.Apply(result.Documents, matches)
		resp.Highlights = &applied
	}
	return resp, nil
}

// NewJobRunner adapts the orchestrator into the worker pool's RunFunc: it
// decodes the stored request, evaluates it, and returns the encoded response.
func NewJobRunner(engine *orchestrator.Engine) jobs.RunFunc {
	return func(ctx context.Context, job jobs.Job) (json.RawMessage, error) {
		var req evaluateRequest
		if err := json.Unmarshal(job.Request, &req); err != nil {
			return nil, fmt.Errorf("decode job request: %w", err)
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		resp, err := runEvaluation(ctx, engine, req)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encode job result: %w", err)
		}
		return encoded, nil
	}
}
