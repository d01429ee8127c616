// File path: internal/orchestrator/prompts.go
package orchestrator

import "github.com/tmc/langchaingo/prompts"

const plannerSystemPrompt = "You are the planning component of an internal-control audit evidence evaluation service. You select which evaluation tasks to run; you never evaluate evidence yourself."

const reviewerSystemPrompt = "You are the review component of an internal-control audit evidence evaluation service. You check the work of other components and respond only with the requested JSON."

const executorSystemPrompt = "You are an internal-control audit assistant. Be precise, quote evidence verbatim, and state limitations openly."

const aggregatorSystemPrompt = "You are the judgment component of an internal-control audit evidence evaluation service. You merge task findings into one decision and respond only with the requested JSON."

var plannerTemplate = prompts.NewPromptTemplate(`Select the evaluation tasks for the control below.

Control description:
{{.control}}

Test procedure:
{{.procedure}}

Control period: {{.period}}

Submitted evidence:
{{.inventory}}

{{.catalog}}
{{.feedback}}
Pick only tasks that materially help decide whether this control operated. Prefer few, relevant tasks over many. Skip tasks whose required inputs are missing.

Respond only with JSON in this exact shape:
{"tasks": [{"id": "A1", "reason": "why this task"}], "rationale": "overall reasoning"}`,
	[]string{"control", "procedure", "period", "inventory", "catalog", "feedback"})

var planReviewTemplate = prompts.NewPromptTemplate(`Review this evaluation plan for the control below.

Control description:
{{.control}}

Test procedure:
{{.procedure}}

Submitted evidence:
{{.inventory}}

{{.catalog}}
Proposed plan:
{{.plan}}

Approve the plan when the selected tasks can decide the control and nothing essential is missing. Reject it when a clearly needed task is absent or a selected task cannot run on this evidence.

Respond only with JSON: {"approved": true or false, "feedback": "what to change, empty when approved"}`,
	[]string{"control", "procedure", "inventory", "catalog", "plan"})

var aggregateTemplate = prompts.NewPromptTemplate(`Form the final judgment for the control below from the task findings.

Control description:
{{.control}}

Test procedure:
{{.procedure}}

Control period: {{.period}}

Task findings:
{{.results}}
{{.feedback}}
Decide pass when the evidence demonstrates the control operated as described, fail when it demonstrates the control did not operate or the evidence contradicts it, and inconclusive when the evidence cannot support either. Every citation quote must appear verbatim in the extracted evidence.

Respond only with JSON in this exact shape:
{"conclusion": "pass", "confidence": 0.0, "reasoning": "...", "citations": [{"file": "evidence file name", "quote": "verbatim quote", "locator": "page or cell, optional"}]}`,
	[]string{"control", "procedure", "period", "results", "feedback"})

var judgmentReviewTemplate = prompts.NewPromptTemplate(`Review this judgment of internal-control audit evidence.

Control description:
{{.control}}

Test procedure:
{{.procedure}}

Extracted evidence:
{{.evidence}}

Proposed judgment:
{{.judgment}}

Approve when the conclusion follows from the cited evidence and the citations are verbatim quotes. Reject when reasoning and citations do not support the conclusion, citations are fabricated, or obvious exceptions were ignored.

Respond only with JSON: {"approved": true or false, "feedback": "what to fix, empty when approved"}`,
	[]string{"control", "procedure", "evidence", "judgment"})
