// File path: internal/audit/types.go

// Package audit holds the domain types exchanged between the API, the
// evaluation orchestrator, and the evidence post-processors: the control
// context under test, the submitted evidence, and the judgment produced for it.
package audit

import "strings"

// Conclusion is the outcome of an evidence evaluation.
type Conclusion string

const (
	ConclusionPass         Conclusion = "pass"
	ConclusionFail         Conclusion = "fail"
	ConclusionInconclusive Conclusion = "inconclusive"
)

// NormalizeConclusion maps free-form LLM output onto a known conclusion.
// Anything unrecognized degrades to inconclusive rather than erroring.
func NormalizeConclusion(value string) Conclusion {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(ConclusionPass), "passed", "effective":
		return ConclusionPass
	case string(ConclusionFail), "failed", "ineffective", "exception":
		return ConclusionFail
	default:
		return ConclusionInconclusive
	}
}

// EvidenceFile is a single Base64-encoded document submitted as proof that a
// control was performed.
type EvidenceFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// Context carries everything the orchestrator needs to evaluate one control:
// the control description, the test procedure, and the evidence files.
type Context struct {
	ControlID          string         `json:"control_id,omitempty"`
	ControlDescription string         `json:"control_description"`
	TestProcedure      string         `json:"test_procedure"`
	Period             string         `json:"period,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	Evidence           []EvidenceFile `json:"evidence"`
}

// PlannedTask is one task the planner selected, with its reason.
type PlannedTask struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// Plan is the planner's selection of evaluation tasks for a control.
type Plan struct {
	Tasks     []PlannedTask `json:"tasks"`
	Rationale string        `json:"rationale,omitempty"`
}

// TaskIDs returns the selected task identifiers in plan order.
func (p Plan) TaskIDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, task := range p.Tasks {
		if trimmed := strings.TrimSpace(task.ID); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// Citation points a judgment back at a passage of the submitted evidence.
type Citation struct {
	File    string `json:"file"`
	Quote   string `json:"quote"`
	Locator string `json:"locator,omitempty"`
}

// TaskResult is the outcome of one executed evaluation task.
type TaskResult struct {
	TaskID    string     `json:"task_id"`
	Summary   string     `json:"summary,omitempty"`
	Findings  string     `json:"findings,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Judgment is the aggregated pass/fail decision with cited reasoning.
type Judgment struct {
	Conclusion Conclusion `json:"conclusion"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Citations  []Citation `json:"citations,omitempty"`
	Caveats    []string   `json:"caveats,omitempty"`
}
