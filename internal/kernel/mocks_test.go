package kernel

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cogito/internal/adaptive"
	"cogito/internal/config"
	"cogito/internal/contract"
	"cogito/internal/converge"
	"cogito/internal/planner"
	"cogito/internal/synthesis"
	"cogito/internal/tools"
	"cogito/internal/validate"
)

// routedClient dispatches canned responses by recognizing which prompt the
// kernel sent. The hit counter per route lets a test vary responses across
// passes.
type routedClient struct {
	mu    sync.Mutex
	hits  map[string]int
	route func(kind string, hit int, prompt string) (string, error)
}

func newRoutedClient(route func(kind string, hit int, prompt string) (string, error)) *routedClient {
	return &routedClient{hits: make(map[string]int), route: route}
}

func (c *routedClient) dispatch(ctx context.Context, prompt string) (string, error) {
	kind := classifyPrompt(prompt)
	c.mu.Lock()
	c.hits[kind]++
	hit := c.hits[kind]
	c.mu.Unlock()
	return c.route(kind, hit, prompt)
}

func (c *routedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.dispatch(ctx, prompt)
}

func (c *routedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.dispatch(ctx, userPrompt)
}

func (c *routedClient) hitCount(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[kind]
}

func classifyPrompt(prompt string) string {
	switch {
	case strings.Contains(prompt, "profile the reasoning effort"):
		return "profile"
	case strings.Contains(prompt, "Break this objective"):
		return "plan"
	case strings.Contains(prompt, "focused subplan"):
		return "subplan"
	case strings.Contains(prompt, "smallest set of edits"):
		return "refine"
	case strings.Contains(prompt, "declarative plan whose steps"):
		return "validate_plan"
	case strings.Contains(prompt, "Judge whether this output"):
		return "validate"
	case strings.Contains(prompt, "has converged"):
		return "converge"
	case strings.Contains(prompt, "Compose the final answer"):
		return "synthesize"
	case strings.Contains(prompt, "executing one step"):
		return "execute"
	default:
		return "unknown"
	}
}

// Canned responses shared by the scenarios.
const (
	profileJSON  = `{"reasoning_depth": 2, "information_sufficiency": 0.9, "rationale": "two stage task"}`
	cleanJSON    = `{"issues": [], "overall_severity": "INFO"}`
	blockedJSON  = `{"issues": [{"kind": "unmet_requirement", "severity": "BLOCKED", "message": "output does not cover the step"}], "overall_severity": "BLOCKED"}`
	yesJSON      = `{"converged": true, "scores": {"completeness": 0.97, "consistency": 0.95, "coherence": 0.93}, "explanation": "done"}`
	noJSON       = `{"converged": false, "scores": {"completeness": 0.60, "consistency": 0.95, "coherence": 0.93}, "reason_codes": ["incomplete_coverage"]}`
	answerJSON   = `{"answer_text": "The task is complete.", "confidence": 0.9, "used_step_ids": ["step-1", "step-2"]}`
	twoStepJSON  = `{"summary": "gather then report", "steps": [{"id": "step-1", "description": "gather inputs"}, {"id": "step-2", "description": "write the report", "dependencies": ["step-1"]}]}`
	oneStepJSON  = `{"summary": "single", "steps": [{"id": "step-1", "description": "analyze the system"}]}`
	subStepsJSON = `{"summary": "split", "steps": [{"id": "step-1", "description": "inspect part a"}, {"id": "step-2", "description": "inspect part b"}]}`
)

func newTestOrchestrator(t *testing.T, client *routedClient) *Orchestrator {
	t.Helper()
	return newTestOrchestratorNesting(t, client, 0)
}

func newTestOrchestratorNesting(t *testing.T, client *routedClient, maxNesting int) *Orchestrator {
	t.Helper()
	registry, err := contract.NewRegistry()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Kernel.BaseTTL = 2
	cfg.Kernel.MaxTTL = 8
	cfg.Kernel.SnapshotDir = t.TempDir()
	if maxNesting > 0 {
		cfg.Kernel.MaxNestingDepth = maxNesting
	}

	invoker := contract.NewInvoker(registry, client, nil)
	toolReg := tools.NewStaticRegistry(cfg.Tools)

	return NewOrchestrator(Options{
		Config:    cfg,
		Adaptive:  adaptive.NewController(invoker),
		Planner:   planner.New(invoker, toolReg, cfg.Kernel.MaxNestingDepth),
		Validator: validate.NewValidator(invoker, toolReg),
		Engine:    converge.NewEngine(invoker),
		Stage:     synthesis.NewStage(invoker),
		Executor:  NewOracleExecutor(client),
		Snapshots: NewSnapshotStore(cfg.Kernel.SnapshotDir),
	})
}
