// File path: internal/tasks/tasks.go

// Package tasks defines the eight LLM-driven evaluation strategies the planner
// can select among. Each task is a prompt template plus the metadata the
// planner needs to decide whether the task applies to a control.
package tasks

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// Task is one evaluation strategy. The description is what the planner sees;
// the template is what the executor renders against the control context and
// extracted evidence.
type Task struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	RequiresImages bool   `json:"requires_images,omitempty"`

	template prompts.PromptTemplate
}

// Eligible reports whether the task can run with the inputs at hand.
func (t Task) Eligible(hasImages bool) bool {
	if t.RequiresImages && !hasImages {
		return false
	}
	return true
}

// Render produces the executor prompt for this task.
func (t Task) Render(control, procedure, period, notes, evidence string) (string, error) {
	return t.template.Format(map[string]any{
		"control":   control,
		"procedure": procedure,
		"period":    period,
		"notes":     notes,
		"evidence":  evidence,
	})
}

var taskInputs = []string{"control", "procedure", "period", "notes", "evidence"}

const taskPreamble = `You are an internal-control audit assistant examining evidence for one control.

Control description:
{{.control}}

Test procedure:
{{.procedure}}

Control period: {{.period}}
Additional notes: {{.notes}}

Extracted evidence:
{{.evidence}}

`

const taskEpilogue = `

Rules:
- Quote evidence verbatim; never paraphrase inside a quote.
- Name the evidence file every quote comes from.
- If the evidence is insufficient for this task, say so explicitly.
Answer with a short summary paragraph followed by your detailed findings.`

func newTask(id, name, description, instruction string, requiresImages bool) Task {
	return Task{
		ID:             id,
		Name:           name,
		Description:    description,
		RequiresImages: requiresImages,
		template:       prompts.NewPromptTemplate(taskPreamble+instruction+taskEpilogue, taskInputs),
	}
}

var catalog = []Task{
	newTask("A1", "Semantic evidence search",
		"Locate the passages of the evidence most relevant to the test procedure and assess whether they demonstrate the control was performed.",
		`Task: search the evidence for the passages that speak to the test procedure. For each relevant passage, quote it, name its file, and explain what it demonstrates or fails to demonstrate.`,
		false),
	newTask("A2", "Image recognition",
		"Describe screenshot or photographic evidence and assess whether it shows the control being performed. Only applicable when image evidence is attached.",
		`Task: the attached images are screenshot or photographic evidence. Describe what each image shows, then assess whether it demonstrates the control activity described above.`,
		true),
	newTask("A3", "Stepwise calculation verification",
		"Recompute figures, totals, and reconciliations cited in the evidence step by step and flag any discrepancies.",
		`Task: identify every calculation, total, or reconciliation in the evidence. Recompute each one step by step, show your arithmetic, and flag any figure that does not recompute.`,
		false),
	newTask("A4", "Segregation-of-duties conflict detection",
		"Check that conflicting responsibilities, such as approving and executing the same transaction, are not held by one person.",
		`Task: list every person named in the evidence together with the actions they performed (prepared, approved, executed, reviewed, posted). Flag any single person holding conflicting duties for the same item, approving their own work included.`,
		false),
	newTask("A5", "Completeness check",
		"Verify that every step of the test procedure is covered by at least one piece of evidence, and list uncovered steps.",
		`Task: break the test procedure into its individual steps. For each step, state which evidence covers it (with a quote) or mark it uncovered. Finish with the list of uncovered steps.`,
		false),
	newTask("A6", "Date and period consistency",
		"Confirm that dates in the evidence fall within the control period and occur in a plausible order.",
		`Task: extract every date in the evidence with its context. Check that each falls within the control period and that the sequence of events is plausible (preparation before approval, approval before posting). Flag anything outside the period or out of order.`,
		false),
	newTask("A7", "Approval trail verification",
		"Verify that the required signatures or approvals are present, attributable, and happened in the right order.",
		`Task: reconstruct the approval trail from the evidence. For each required approval, identify who gave it, when, and in what form (signature, system approval, email). Flag missing, undated, or unattributable approvals.`,
		false),
	newTask("A8", "Anomaly scan",
		"Scan the evidence for alterations, gaps, contradictions between documents, or other signs the evidence may not be reliable.",
		`Task: scan the evidence for anomalies: contradictions between files, suspicious gaps in sequences, figures that disagree across documents, or signs of alteration. Report each anomaly with the quotes that reveal it.`,
		false),
}

// Catalog returns the ordered task list.
func Catalog() []Task {
	out := make([]Task, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a task by its identifier, case-insensitively.
func Lookup(id string) (Task, bool) {
	needle := strings.ToUpper(strings.TrimSpace(id))
	for _, task := range catalog {
		if task.ID == needle {
			return task, true
		}
	}
	return Task{}, false
}

// CatalogPrompt renders the planner-facing summary of the available tasks.
func CatalogPrompt() string {
	var b strings.Builder
	b.WriteString("Available tasks:\n")
	for _, task := range catalog {
		b.WriteString(fmt.Sprintf("- %s (%s): %s", task.ID, task.Name, task.Description))
		if task.RequiresImages {
			b.WriteString(" Requires image evidence.")
		}
		b.WriteString("\n")
	}
	return b.String()
}
