// Package planner turns objectives into declarative plans, expands coarse
// steps into bounded subplans, and applies delta refinements without ever
// touching completed work.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cogito/internal/adaptive"
	"cogito/internal/contract"
	"cogito/internal/logging"
	"cogito/internal/plan"
	"cogito/internal/tools"
)

// Planner generates and maintains plans through oracle contracts.
type Planner struct {
	invoker    *contract.Invoker
	tools      tools.Registry
	maxNesting int
}

func New(invoker *contract.Invoker, reg tools.Registry, maxNesting int) *Planner {
	if maxNesting < 1 {
		maxNesting = 1
	}
	return &Planner{invoker: invoker, tools: reg, maxNesting: maxNesting}
}

// planPayload is the decoded shape shared by plan and subplan contracts.
type planPayload struct {
	Summary string `json:"summary"`
	Steps   []struct {
		ID              string   `json:"id"`
		Description     string   `json:"description"`
		Dependencies    []string `json:"dependencies"`
		Provides        []string `json:"provides"`
		Tools           []string `json:"tools"`
		IncomingContext string   `json:"incoming_context"`
		HandoffToNext   string   `json:"handoff_to_next"`
	} `json:"steps"`
}

// GeneratePlan produces the root plan for an objective. Structural defects
// in the oracle's plan surface as *plan.Error.
func (pl *Planner) GeneratePlan(ctx context.Context, objective string, profile adaptive.TaskProfile) (*plan.Plan, error) {
	var decoded planPayload
	err := pl.invoker.InvokeInto(ctx, contract.IDGeneratePlan, map[string]any{
		"objective": objective,
		"tools":     pl.tools.ListToolNames(),
		"profile":   profile,
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}

	p, err := pl.assemble(objective, decoded, 0, "")
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryPlanner).Infow("plan generated",
		"plan", p.ID, "steps", len(p.Steps))
	return p, nil
}

// CreateSubplan expands one coarse step into a child plan. The nesting bound
// is enforced before any oracle call. On any failure the parent plan is left
// untouched; the caller decides whether the step still warrants a retry or
// manual handling.
func (pl *Planner) CreateSubplan(ctx context.Context, parent *plan.Plan, stepID string) (*plan.Plan, error) {
	step := parent.Step(stepID)
	if step == nil {
		return nil, plan.Errorf(plan.KindBadAction, stepID, "subplan target not in plan")
	}
	if parent.Depth+1 >= pl.maxNesting {
		return nil, plan.Errorf(plan.KindDepthExceeded, stepID,
			"expanding would exceed nesting depth %d", pl.maxNesting)
	}

	var decoded planPayload
	err := pl.invoker.InvokeInto(ctx, contract.IDCreateSubplan, map[string]any{
		"objective":        parent.Objective,
		"parent_step":      step,
		"incoming_context": step.IncomingContext,
		"tools":            pl.tools.ListToolNames(),
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("creating subplan for %s: %w", stepID, err)
	}

	sub, err := pl.assemble(step.Description, decoded, parent.Depth+1, stepID)
	if err != nil {
		return nil, err
	}
	step.SubplanID = sub.ID
	logging.Get(logging.CategoryPlanner).Infow("subplan created",
		"parent", parent.ID, "step", stepID, "subplan", sub.ID, "depth", sub.Depth)
	return sub, nil
}

// CreateSubplans expands several sibling steps concurrently. Each step's
// failure is isolated: the other expansions proceed. Returns the subplans
// that succeeded keyed by step id, plus the first error encountered.
func (pl *Planner) CreateSubplans(ctx context.Context, parent *plan.Plan, stepIDs []string) (map[string]*plan.Plan, error) {
	var mu sync.Mutex
	subs := make(map[string]*plan.Plan, len(stepIDs))
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range stepIDs {
		g.Go(func() error {
			sub, err := pl.CreateSubplan(gctx, parent, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			subs[id] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return subs, err
	}
	return subs, firstErr
}

// Findings is the evidence a refinement reacts to: validation reports, the
// reason codes from a failed convergence assessment, and the ids of steps
// still blocked.
type Findings struct {
	Reports      any
	ReasonCodes  []string
	BlockedSteps []string
}

// RefinePlan asks the oracle for delta edits against the findings and
// applies them. Actions targeting executed steps are dropped before
// application, never rejected as errors.
func (pl *Planner) RefinePlan(ctx context.Context, p *plan.Plan, f Findings, executed map[string]bool) (*plan.Plan, error) {
	executedIDs := make([]string, 0, len(executed))
	for id := range executed {
		executedIDs = append(executedIDs, id)
	}
	sort.Strings(executedIDs)

	reports := f.Reports
	if reports == nil {
		reports = []string{}
	}
	reasons := f.ReasonCodes
	if reasons == nil {
		reasons = []string{}
	}
	blocked := f.BlockedSteps
	if blocked == nil {
		blocked = []string{}
	}

	var decoded struct {
		Summary string `json:"summary"`
		Actions []struct {
			Action      string     `json:"action"`
			TargetID    string     `json:"target_id"`
			Step        *plan.Step `json:"step"`
			InsertAfter string     `json:"insert_after"`
			Reason      string     `json:"reason"`
		} `json:"actions"`
	}
	err := pl.invoker.InvokeInto(ctx, contract.IDRefinePlan, map[string]any{
		"objective":    p.Objective,
		"plan":         p,
		"findings":     reports,
		"reason_codes": reasons,
		"blocked":      blocked,
		"executed":     executedIDs,
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("refining plan: %w", err)
	}

	batch := make([]plan.RefinementAction, 0, len(decoded.Actions))
	for _, a := range decoded.Actions {
		batch = append(batch, plan.RefinementAction{
			Kind:        plan.ActionKind(strings.ToUpper(strings.TrimSpace(a.Action))),
			TargetID:    a.TargetID,
			Step:        a.Step,
			InsertAfter: a.InsertAfter,
			Reason:      a.Reason,
		})
	}

	kept, dropped := plan.FilterExecuted(batch, executed)
	if len(dropped) > 0 {
		logging.Get(logging.CategoryPlanner).Warnw("dropped refinements against executed steps",
			"plan", p.ID, "dropped", len(dropped))
	}
	refined, err := plan.ApplyRefinements(p, kept, executed)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryPlanner).Infow("plan refined",
		"plan", p.ID, "applied", len(kept), "steps", len(refined.Steps))
	return refined, nil
}

// assemble converts a decoded payload into a checked plan. Missing ids are
// generated; duplicates, forward or dangling dependencies, and empty
// descriptions are *plan.Error.
func (pl *Planner) assemble(objective string, decoded planPayload, depth int, parentStepID string) (*plan.Plan, error) {
	if len(decoded.Steps) == 0 {
		return nil, plan.Errorf(plan.KindNotDeclarative, "", "plan has no steps")
	}

	p := &plan.Plan{
		ID:           plan.NewID(),
		Objective:    objective,
		Summary:      decoded.Summary,
		Depth:        depth,
		ParentStepID: parentStepID,
		CreatedAt:    time.Now(),
	}
	for _, s := range decoded.Steps {
		if strings.TrimSpace(s.Description) == "" {
			return nil, plan.Errorf(plan.KindNotDeclarative, s.ID, "step has no description")
		}
		id := s.ID
		if id == "" {
			id = plan.NewStepID()
		}
		p.Steps = append(p.Steps, plan.Step{
			ID:              id,
			Description:     s.Description,
			Dependencies:    s.Dependencies,
			Provides:        s.Provides,
			Tools:           s.Tools,
			IncomingContext: s.IncomingContext,
			HandoffToNext:   s.HandoffToNext,
			Status:          plan.StatusPending,
			Clarity:         plan.ClarityClear,
		})
	}
	p.Renumber()

	if dup := p.DuplicateIDs(); len(dup) > 0 {
		return nil, plan.Errorf(plan.KindBadAction, dup[0], "duplicate step id")
	}
	if dangling := p.DanglingDependencies(); len(dangling) > 0 {
		for id, deps := range dangling {
			return nil, plan.Errorf(plan.KindDependencyBreak, id,
				"dependency %q references unknown step", deps[0])
		}
	}
	return p, nil
}
