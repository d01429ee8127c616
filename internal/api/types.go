// File path: internal/api/types.go
package api

import (
	"fmt"
	"strings"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/highlight"
	"github.com/auditlens/auditlens/internal/orchestrator"
)

// evaluateRequest is the payload of POST /v1/evaluate and POST /v1/jobs.
type evaluateRequest struct {
	ControlID          string               `json:"control_id,omitempty"`
	ControlDescription string               `json:"control_description"`
	TestProcedure      string               `json:"test_procedure"`
	Period             string               `json:"period,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	Evidence           []audit.EvidenceFile `json:"evidence"`
	// Highlight asks the service to locate citation quotes in the evidence
	// and annotate spreadsheet evidence.
	Highlight bool `json:"highlight,omitempty"`
}

func (req evaluateRequest) validate() error {
	if strings.TrimSpace(req.ControlDescription) == "" {
		return fmt.Errorf("control_description required")
	}
	if strings.TrimSpace(req.TestProcedure) == "" {
		return fmt.Errorf("test_procedure required")
	}
	if len(req.Evidence) == 0 {
		return fmt.Errorf("at least one evidence file required")
	}
	for i, file := range req.Evidence {
		if strings.TrimSpace(file.Name) == "" {
			return fmt.Errorf("evidence[%d]: name required", i)
		}
		if strings.TrimSpace(file.Data) == "" {
			return fmt.Errorf("evidence[%d]: data required", i)
		}
	}
	return nil
}

func (req evaluateRequest) auditContext() audit.Context {
	return audit.Context{
		ControlID:          strings.TrimSpace(req.ControlID),
		ControlDescription: strings.TrimSpace(req.ControlDescription),
		TestProcedure:      strings.TrimSpace(req.TestProcedure),
		Period:             strings.TrimSpace(req.Period),
		Notes:              strings.TrimSpace(req.Notes),
		Evidence:           req.Evidence,
	}
}

// evaluateResponse is returned by the synchronous endpoint and stored as the
// result of an asynchronous job.
type evaluateResponse struct {
	ControlID   string             `json:"control_id,omitempty"`
	Judgment    audit.Judgment     `json:"judgment"`
	Plan        audit.Plan         `json:"plan"`
	TaskResults []audit.TaskResult `json:"task_results"`
	Highlights  *highlight.Result  `json:"highlights,omitempty"`
	Trace       orchestrator.Trace `json:"trace"`
	Provider    string             `json:"provider"`
}
