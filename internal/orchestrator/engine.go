// File path: internal/orchestrator/engine.go

// Package orchestrator runs the evaluation workflow: plan which tasks to run,
// review the plan, execute the tasks, aggregate their findings into a
// judgment, and review the judgment, with a bounded refinement loop after each
// review. The workflow is a fixed seven-node graph; every node's work is a
// single LLM call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langgraphgo/graph"

	"github.com/auditlens/auditlens/internal/audit"
	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/evidence"
	"github.com/auditlens/auditlens/internal/llm"
	"github.com/auditlens/auditlens/internal/tasks"
)

const (
	defaultMaxRefine   = 2
	defaultPerDocRunes = 6000
)

// fallbackTaskIDs runs when the planner selects nothing usable.
var fallbackTaskIDs = []string{"A1", "A5"}

// Options tune the evaluation workflow.
type Options struct {
	// MaxRefine bounds the refinement loop after each review stage.
	MaxRefine int
	// PerDocPromptRunes trims each evidence document in executor prompts.
	PerDocPromptRunes int
}

func (o Options) withDefaults() Options {
	if o.MaxRefine <= 0 {
		o.MaxRefine = defaultMaxRefine
	}
	if o.PerDocPromptRunes <= 0 {
		o.PerDocPromptRunes = defaultPerDocRunes
	}
	return o
}

// StageTiming records how long one workflow node took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// Trace records how the workflow arrived at its judgment.
type Trace struct {
	PlanReview          ReviewVerdict `json:"plan_review"`
	PlanRefinements     int           `json:"plan_refinements"`
	JudgmentReview      ReviewVerdict `json:"judgment_review"`
	JudgmentRefinements int           `json:"judgment_refinements"`
	DroppedTasks        []string      `json:"dropped_tasks,omitempty"`
	// Notes records degradations the workflow absorbed, such as planner
	// output that could not be parsed.
	Notes  []string      `json:"notes,omitempty"`
	Stages []StageTiming `json:"stages"`
}

// Result is the full outcome of one evaluation run.
type Result struct {
	Judgment    audit.Judgment      `json:"judgment"`
	Plan        audit.Plan          `json:"plan"`
	TaskResults []audit.TaskResult  `json:"task_results"`
	Documents   []evidence.Document `json:"-"`
	Trace       Trace               `json:"trace"`
	Provider    string              `json:"provider"`
}

type Engine struct {
	provider llm.Provider
	catalog  []tasks.Task
	opts     Options
}

func New(provider llm.Provider, opts Options) *Engine {
	return &Engine{provider: provider, catalog: tasks.Catalog(), opts: opts.withDefaults()}
}

// Evaluate runs the full workflow for one control.
func (e *Engine) Evaluate(ctx context.Context, auditCtx audit.Context) (*Result, error) {
	if e.provider == nil {
		return nil, errors.New("no llm provider configured")
	}
	if strings.TrimSpace(auditCtx.ControlDescription) == "" {
		return nil, errors.New("control description required")
	}
	if strings.TrimSpace(auditCtx.TestProcedure) == "" {
		return nil, errors.New("test procedure required")
	}
	if len(auditCtx.Evidence) == 0 {
		return nil, errors.New("at least one evidence file required")
	}
	docs, err := evidence.DecodeAll(auditCtx.Evidence)
	if err != nil {
		return nil, err
	}
	run := &evaluationRun{
		engine:        e,
		auditCtx:      auditCtx,
		docs:          docs,
		evidenceBlock: evidence.FormatForPrompt(docs, e.opts.PerDocPromptRunes),
		inventory:     describeInventory(docs),
		catalogBlock:  tasks.CatalogPrompt(),
		images:        collectImages(docs),
	}

	g := graph.NewMessageGraph()
	g.AddNode("create_plan", run.createPlan)
	g.AddNode("review_plan", run.reviewPlan)
	g.AddNode("refine_plan", run.refinePlan)
	g.AddNode("execute_tasks", run.executeTasks)
	g.AddNode("aggregate_results", run.aggregateResults)
	g.AddNode("review_judgment", run.reviewJudgment)
	g.AddNode("refine_judgment", run.refineJudgment)
	g.AddEdge("create_plan", "review_plan")
	g.AddEdge("review_plan", "refine_plan")
	g.AddEdge("refine_plan", "execute_tasks")
	g.AddEdge("execute_tasks", "aggregate_results")
	g.AddEdge("aggregate_results", "review_judgment")
	g.AddEdge("review_judgment", "refine_judgment")
	g.AddEdge("refine_judgment", graph.END)
	g.SetEntryPoint("create_plan")

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile evaluation graph: %w", err)
	}
	initial := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "evaluate control evidence"),
	}
	if _, err := runnable.Invoke(ctx, initial); err != nil {
		return nil, err
	}
	return &Result{
		Judgment:    run.judgment,
		Plan:        run.plan,
		TaskResults: run.results,
		Documents:   run.docs,
		Trace:       run.trace,
		Provider:    e.provider.Name(),
	}, nil
}

func describeInventory(docs []evidence.Document) string {
	var b strings.Builder
	for idx, doc := range docs {
		b.WriteString(fmt.Sprintf("%d. %s (%s", idx+1, doc.File, doc.Kind))
		switch {
		case len(doc.Pages) > 0:
			b.WriteString(fmt.Sprintf(", %d pages", len(doc.Pages)))
		case len(doc.Sheets) > 0:
			b.WriteString(fmt.Sprintf(", %d sheets", len(doc.Sheets)))
		}
		b.WriteString(")")
		if len(doc.Warnings) > 0 {
			b.WriteString(" [extraction degraded]")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func collectImages(docs []evidence.Document) []llm.Attachment {
	var images []llm.Attachment
	for _, doc := range docs {
		if doc.Kind != evidence.KindImage {
			continue
		}
		mime := doc.MimeType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, llm.Attachment{MimeType: mime, Data: doc.Raw})
	}
	return images
}

// chat is the single LLM entry point for all nodes.
func (e *Engine) chat(ctx context.Context, system, user string, images []llm.Attachment) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user, Images: images},
	}
	return e.provider.Chat(ctx, messages)
}

func (run *evaluationRun) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	run.trace.Stages = append(run.trace.Stages, StageTiming{Stage: stage, Duration: time.Since(start)})
	logger := common.Logger()
	if err != nil {
		logger.Error("orchestrator: stage failed", "stage", stage, "error", err, "duration", time.Since(start))
	} else {
		logger.Debug("orchestrator: stage complete", "stage", stage, "duration", time.Since(start))
	}
	return err
}
