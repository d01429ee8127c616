// File path: internal/orchestrator/nodes.go
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/evidence"
	"github.com/auditlens/auditlens/internal/llm"
	"github.com/auditlens/auditlens/internal/tasks"
)

// evaluationRun is the mutable state threaded through the workflow nodes. The
// graph's message state carries only a breadcrumb per stage; the typed state
// lives here, captured by the node closures.
type evaluationRun struct {
	engine   *Engine
	auditCtx audit.Context

	docs          []evidence.Document
	evidenceBlock string
	inventory     string
	catalogBlock  string
	images        []llm.Attachment

	plan       audit.Plan
	planReview ReviewVerdict

	results []audit.TaskResult

	judgment       audit.Judgment
	judgmentRaw    string
	judgmentReview ReviewVerdict

	trace Trace
}

func (run *evaluationRun) createPlan(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("create_plan", func() error {
		plan, parsed, err := run.requestPlan(ctx, "")
		if err != nil {
			return err
		}
		if !parsed {
			// An unparseable plan never blocks the pipeline; the fallback
			// selection runs instead.
			common.Logger().Warn("orchestrator: plan unparseable; using fallback tasks")
			run.trace.Notes = append(run.trace.Notes, "planner output was not valid JSON; fallback tasks selected")
			plan = run.filterPlan(audit.Plan{})
		}
		run.plan = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "create_plan", strings.Join(run.plan.TaskIDs(), ",")), nil
}

func (run *evaluationRun) reviewPlan(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("review_plan", func() error {
		verdict, err := run.requestPlanReview(ctx)
		if err != nil {
			return err
		}
		run.planReview = verdict
		run.trace.PlanReview = verdict
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "review_plan", fmt.Sprintf("approved=%t", run.planReview.Approved)), nil
}

// refinePlan re-plans with the reviewer's feedback until the plan is approved
// or the refinement budget is spent. After the budget, the last plan stands.
func (run *evaluationRun) refinePlan(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("refine_plan", func() error {
		for !run.planReview.Approved && run.trace.PlanRefinements < run.engine.opts.MaxRefine {
			run.trace.PlanRefinements++
			plan, parsed, err := run.requestPlan(ctx, run.planReview.Feedback)
			if err != nil {
				return err
			}
			if parsed {
				run.plan = plan
			} else {
				// Keep the previous plan rather than losing it to a bad reply.
				common.Logger().Warn("orchestrator: refined plan unparseable; keeping previous plan")
				run.trace.Notes = append(run.trace.Notes, "plan refinement output was not valid JSON; previous plan kept")
			}
			verdict, err := run.requestPlanReview(ctx)
			if err != nil {
				return err
			}
			run.planReview = verdict
			run.trace.PlanReview = verdict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "refine_plan", fmt.Sprintf("refinements=%d", run.trace.PlanRefinements)), nil
}

func (run *evaluationRun) executeTasks(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("execute_tasks", func() error {
		logger := common.Logger()
		for _, planned := range run.plan.Tasks {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			task, ok := tasks.Lookup(planned.ID)
			if !ok {
				continue
			}
			result := audit.TaskResult{TaskID: task.ID}
			prompt, err := task.Render(
				run.auditCtx.ControlDescription,
				run.auditCtx.TestProcedure,
				orUnspecified(run.auditCtx.Period),
				orUnspecified(run.auditCtx.Notes),
				run.evidenceBlock,
			)
			if err != nil {
				result.Error = fmt.Sprintf("render prompt: %v", err)
				run.results = append(run.results, result)
				continue
			}
			var images []llm.Attachment
			if task.RequiresImages {
				images = run.images
			}
			answer, err := run.engine.chat(ctx, executorSystemPrompt, prompt, images)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("orchestrator: task failed", "task", task.ID, "error", err)
				result.Error = err.Error()
				run.results = append(run.results, result)
				continue
			}
			result.Summary = firstParagraph(answer)
			result.Findings = strings.TrimSpace(answer)
			run.results = append(run.results, result)
		}
		if len(run.results) == 0 {
			return fmt.Errorf("no tasks produced results")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "execute_tasks", fmt.Sprintf("results=%d", len(run.results))), nil
}

func (run *evaluationRun) aggregateResults(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("aggregate_results", func() error {
		judgment, raw, err := run.requestJudgment(ctx, "")
		if err != nil {
			return err
		}
		run.judgment = judgment
		run.judgmentRaw = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "aggregate_results", string(run.judgment.Conclusion)), nil
}

func (run *evaluationRun) reviewJudgment(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("review_judgment", func() error {
		verdict, err := run.requestJudgmentReview(ctx)
		if err != nil {
			return err
		}
		run.judgmentReview = verdict
		run.trace.JudgmentReview = verdict
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "review_judgment", fmt.Sprintf("approved=%t", run.judgmentReview.Approved)), nil
}

// refineJudgment mirrors refinePlan. A judgment the reviewer still rejects
// after the budget ships with the reviewer's last feedback as a caveat rather
// than failing the evaluation.
func (run *evaluationRun) refineJudgment(ctx context.Context, state []llms.MessageContent) ([]llms.MessageContent, error) {
	err := run.timed("refine_judgment", func() error {
		for !run.judgmentReview.Approved && run.trace.JudgmentRefinements < run.engine.opts.MaxRefine {
			run.trace.JudgmentRefinements++
			judgment, raw, err := run.requestJudgment(ctx, run.judgmentReview.Feedback)
			if err != nil {
				return err
			}
			run.judgment = judgment
			run.judgmentRaw = raw
			verdict, err := run.requestJudgmentReview(ctx)
			if err != nil {
				return err
			}
			run.judgmentReview = verdict
			run.trace.JudgmentReview = verdict
		}
		if !run.judgmentReview.Approved && run.judgmentReview.Feedback != "" {
			run.judgment.Caveats = append(run.judgment.Caveats,
				"reviewer did not approve the judgment: "+run.judgmentReview.Feedback)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appendBreadcrumb(state, "refine_judgment", fmt.Sprintf("refinements=%d", run.trace.JudgmentRefinements)), nil
}

// requestPlan runs one planner call. The second return reports whether the
// reply parsed as a plan; a chat or template failure is still an error, but an
// unparseable reply is not, so callers can degrade instead of aborting.
func (run *evaluationRun) requestPlan(ctx context.Context, feedback string) (audit.Plan, bool, error) {
	prompt, err := plannerTemplate.Format(map[string]any{
		"control":   run.auditCtx.ControlDescription,
		"procedure": run.auditCtx.TestProcedure,
		"period":    orUnspecified(run.auditCtx.Period),
		"inventory": run.inventory,
		"catalog":   run.catalogBlock,
		"feedback":  formatFeedback(feedback),
	})
	if err != nil {
		return audit.Plan{}, false, fmt.Errorf("render planner prompt: %w", err)
	}
	answer, err := run.engine.chat(ctx, plannerSystemPrompt, prompt, nil)
	if err != nil {
		return audit.Plan{}, false, fmt.Errorf("planner call: %w", err)
	}
	plan, err := parsePlan(answer)
	if err != nil {
		common.Logger().Warn("orchestrator: planner reply unparseable", "error", err)
		return audit.Plan{}, false, nil
	}
	return run.filterPlan(plan), true, nil
}

// filterPlan drops unknown and ineligible tasks from the planner's selection
// rather than trusting it blindly, falling back to a default selection when
// nothing survives.
func (run *evaluationRun) filterPlan(plan audit.Plan) audit.Plan {
	hasImages := len(run.images) > 0
	seen := make(map[string]struct{}, len(plan.Tasks))
	kept := plan.Tasks[:0]
	for _, planned := range plan.Tasks {
		task, ok := tasks.Lookup(planned.ID)
		if !ok || !task.Eligible(hasImages) {
			run.trace.DroppedTasks = append(run.trace.DroppedTasks, planned.ID)
			continue
		}
		if _, dup := seen[task.ID]; dup {
			continue
		}
		seen[task.ID] = struct{}{}
		planned.ID = task.ID
		kept = append(kept, planned)
	}
	plan.Tasks = kept
	if len(plan.Tasks) == 0 {
		common.Logger().Warn("orchestrator: planner selected no usable tasks; using fallback")
		for _, id := range fallbackTaskIDs {
			plan.Tasks = append(plan.Tasks, audit.PlannedTask{ID: id, Reason: "fallback selection"})
		}
	}
	return plan
}

func (run *evaluationRun) requestPlanReview(ctx context.Context) (ReviewVerdict, error) {
	planJSON, err := json.Marshal(run.plan)
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("encode plan: %w", err)
	}
	prompt, err := planReviewTemplate.Format(map[string]any{
		"control":   run.auditCtx.ControlDescription,
		"procedure": run.auditCtx.TestProcedure,
		"inventory": run.inventory,
		"catalog":   run.catalogBlock,
		"plan":      string(planJSON),
	})
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("render plan review prompt: %w", err)
	}
	answer, err := run.engine.chat(ctx, reviewerSystemPrompt, prompt, nil)
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("plan review call: %w", err)
	}
	verdict, err := parseReview(answer)
	if err != nil {
		// An unparseable review never blocks the pipeline.
		common.Logger().Warn("orchestrator: plan review unparseable; accepting plan", "error", err)
		return ReviewVerdict{Approved: true}, nil
	}
	return verdict, nil
}

func (run *evaluationRun) requestJudgment(ctx context.Context, feedback string) (audit.Judgment, string, error) {
	prompt, err := aggregateTemplate.Format(map[string]any{
		"control":   run.auditCtx.ControlDescription,
		"procedure": run.auditCtx.TestProcedure,
		"period":    orUnspecified(run.auditCtx.Period),
		"results":   formatTaskResults(run.results),
		"feedback":  formatFeedback(feedback),
	})
	if err != nil {
		return audit.Judgment{}, "", fmt.Errorf("render aggregation prompt: %w", err)
	}
	answer, err := run.engine.chat(ctx, aggregatorSystemPrompt, prompt, nil)
	if err != nil {
		return audit.Judgment{}, "", fmt.Errorf("aggregation call: %w", err)
	}
	judgment, parseErr := parseJudgment(answer)
	if parseErr != nil {
		// Preserve the raw text instead of failing the run.
		common.Logger().Warn("orchestrator: judgment unparseable", "error", parseErr)
		judgment = audit.Judgment{
			Conclusion: audit.ConclusionInconclusive,
			Reasoning:  strings.TrimSpace(answer),
			Caveats:    []string{"aggregation output was not valid JSON"},
		}
	}
	return judgment, answer, nil
}

func (run *evaluationRun) requestJudgmentReview(ctx context.Context) (ReviewVerdict, error) {
	judgmentJSON, err := json.Marshal(run.judgment)
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("encode judgment: %w", err)
	}
	prompt, err := judgmentReviewTemplate.Format(map[string]any{
		"control":   run.auditCtx.ControlDescription,
		"procedure": run.auditCtx.TestProcedure,
		"evidence":  run.evidenceBlock,
		"judgment":  string(judgmentJSON),
	})
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("render judgment review prompt: %w", err)
	}
	answer, err := run.engine.chat(ctx, reviewerSystemPrompt, prompt, nil)
	if err != nil {
		return ReviewVerdict{}, fmt.Errorf("judgment review call: %w", err)
	}
	verdict, err := parseReview(answer)
	if err != nil {
		common.Logger().Warn("orchestrator: judgment review unparseable; accepting judgment", "error", err)
		return ReviewVerdict{Approved: true}, nil
	}
	return verdict, nil
}

func formatTaskResults(results []audit.TaskResult) string {
	var b strings.Builder
	for _, result := range results {
		b.WriteString("[Task " + result.TaskID + "]\n")
		if result.Error != "" {
			b.WriteString("Failed: " + result.Error + "\n\n")
			continue
		}
		b.WriteString(result.Findings)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func formatFeedback(feedback string) string {
	trimmed := strings.TrimSpace(feedback)
	if trimmed == "" {
		return ""
	}
	return "\nReviewer feedback on the previous attempt, address it:\n" + trimmed + "\n"
}

func firstParagraph(text string) string {
	trimmed := strings.TrimSpace(text)
	if idx := strings.Index(trimmed, "\n\n"); idx > 0 {
		return strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}

func orUnspecified(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "not specified"
	}
	return trimmed
}

func appendBreadcrumb(state []llms.MessageContent, stage, detail string) []llms.MessageContent {
	return append(state, llms.TextParts(llms.ChatMessageTypeAI, stage+": "+detail))
}
