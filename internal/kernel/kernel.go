// Package kernel drives the execution loop: profile the task, plan it,
// execute and validate passes under a TTL budget, gate on convergence, and
// always end with synthesis. No phase failure escapes as an error; every run
// terminates with a final answer, degraded if necessary.
package kernel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cogito/internal/adaptive"
	"cogito/internal/config"
	"cogito/internal/converge"
	"cogito/internal/logging"
	"cogito/internal/plan"
	"cogito/internal/planner"
	"cogito/internal/synthesis"
	"cogito/internal/validate"
)

// PassRecord summarizes one loop iteration for the snapshot and any
// post-mortem.
type PassRecord struct {
	Number       int  `json:"number"`
	TTLBefore    int  `json:"ttl_before"`
	TTLAfter     int  `json:"ttl_after"`
	StepsRun     int  `json:"steps_run"`
	BlockedSteps int  `json:"blocked_steps"`
	Refined      bool `json:"refined"`
	Converged    bool `json:"converged"`
	IssueCount   int  `json:"issue_count"`
}

// ExecutionResult is the full observable state of a run.
type ExecutionResult struct {
	CorrelationID string                 `json:"correlation_id"`
	Objective     string                 `json:"objective"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    time.Time              `json:"finished_at"`
	Profile       *adaptive.TaskProfile  `json:"task_profile,omitempty"`
	Plan          *plan.Plan             `json:"plan,omitempty"`
	Subplans      map[string]*plan.Plan  `json:"subplans,omitempty"`
	Outputs       map[string]string      `json:"outputs,omitempty"`
	Reports       []*validate.Report     `json:"validation_reports,omitempty"`
	Assessment    *converge.Assessment   `json:"convergence_assessment,omitempty"`
	Passes        []PassRecord           `json:"passes,omitempty"`
	TTLAllocated  int                    `json:"ttl_allocated"`
	TTLRemaining  int                    `json:"ttl_remaining"`
	Answer        *synthesis.FinalAnswer `json:"answer"`
}

// Orchestrator wires the stages together for one or more executions.
type Orchestrator struct {
	cfg       *config.Config
	adaptive  *adaptive.Controller
	planner   *planner.Planner
	validator *validate.Validator
	engine    *converge.Engine
	stage     *synthesis.Stage
	executor  StepExecutor
	snapshots *SnapshotStore
	events    chan Event
}

// Options carries the orchestrator's collaborators.
type Options struct {
	Config    *config.Config
	Adaptive  *adaptive.Controller
	Planner   *planner.Planner
	Validator *validate.Validator
	Engine    *converge.Engine
	Stage     *synthesis.Stage
	Executor  StepExecutor
	Snapshots *SnapshotStore

	// EventBuffer > 0 enables the event stream.
	EventBuffer int
}

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:       opts.Config,
		adaptive:  opts.Adaptive,
		planner:   opts.Planner,
		validator: opts.Validator,
		engine:    opts.Engine,
		stage:     opts.Stage,
		executor:  opts.Executor,
		snapshots: opts.Snapshots,
	}
	if opts.EventBuffer > 0 {
		o.events = make(chan Event, opts.EventBuffer)
	}
	return o
}

// Events exposes the event stream, nil when disabled. The stream is closed
// when the run finishes, so consumers ranging over it terminate with the run.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// closeEvents ends the stream for consumers; further emits are no-ops.
func (o *Orchestrator) closeEvents() {
	if o.events != nil {
		close(o.events)
		o.events = nil
	}
}

// RunTaskExecution drives one objective through the full loop. It never
// returns an error: whatever survives the run reaches synthesis, and the
// result always carries a final answer.
func (o *Orchestrator) RunTaskExecution(ctx context.Context, objective string, criteria []converge.Criterion) *ExecutionResult {
	log := logging.WithRun(logging.CategoryKernel, "")
	result := &ExecutionResult{
		CorrelationID: uuid.New().String(),
		Objective:     objective,
		StartedAt:     time.Now(),
		Outputs:       map[string]string{},
		Subplans:      map[string]*plan.Plan{},
	}
	log = logging.WithRun(logging.CategoryKernel, result.CorrelationID)
	log.Infow("execution started", "objective", objective)

	// Phase A: profile the task. One retry, then a degraded run with the
	// default profile.
	o.emit(PhaseProfile, "start", objective, 0)
	profile, err := o.adaptive.InferTaskProfile(ctx, objective)
	if err != nil {
		log.Warnw("profile inference failed, retrying", "error", err)
		profile, err = o.adaptive.InferTaskProfile(ctx, objective)
	}
	if err != nil {
		log.Errorw("profile inference failed twice, synthesizing degraded answer", "error", err)
		o.emit(PhaseProfile, "failed", err.Error(), 0)
		return o.finish(ctx, result)
	}
	result.Profile = &profile
	result.TTLAllocated = adaptive.AllocateTTL(profile, o.cfg.Kernel.BaseTTL, o.cfg.Kernel.MaxTTL)
	result.TTLRemaining = result.TTLAllocated
	o.emit(PhaseProfile, "done", profile.Rationale, 0)

	// Phase B: generate the plan. One retry on a structural plan defect.
	o.emit(PhasePlan, "start", "", 0)
	p, err := o.planner.GeneratePlan(ctx, objective, profile)
	if err != nil {
		var pErr *plan.Error
		if errors.As(err, &pErr) {
			log.Warnw("generated plan was defective, regenerating once", "kind", pErr.Kind)
			p, err = o.planner.GeneratePlan(ctx, objective, profile)
		}
	}
	if err != nil {
		log.Errorw("planning failed, synthesizing degraded answer", "error", err)
		o.emit(PhasePlan, "failed", err.Error(), 0)
		return o.finish(ctx, result)
	}
	result.Plan = p
	o.emit(PhasePlan, "done", p.Summary, 0)

	// The fresh plan gets one validation round before execution: non-trivial
	// findings earn a single refinement and one re-validation.
	if report, verr := o.validator.ValidatePlan(ctx, objective, p); verr != nil {
		log.Warnw("plan validation errored, executing the plan as generated", "error", verr)
	} else if report.OverallSeverity != validate.SeverityInfo {
		log.Infow("plan validation found issues, refining before execution",
			"issues", len(report.Issues), "severity", report.OverallSeverity)
		refined, rerr := o.planner.RefinePlan(ctx, p,
			planner.Findings{Reports: []*validate.Report{report}}, p.ExecutedStepIDs())
		if rerr != nil {
			log.Warnw("pre-execution refinement failed, keeping the generated plan", "error", rerr)
		} else {
			result.Plan = refined
			o.emit(PhasePlan, "refined", "", 0)
			if recheck, rverr := o.validator.ValidatePlan(ctx, objective, refined); rverr == nil && recheck.HasBlocking() {
				log.Warnw("plan still carries blocking findings after refinement",
					"issues", len(recheck.Issues))
			}
		}
	}

	// Phase C/D: execute passes until convergence or budget exhaustion.
	var lastRefineKind plan.ErrorKind
	for pass := 1; result.TTLRemaining > 0; pass++ {
		if ctx.Err() != nil {
			log.Warnw("context canceled, aborting passes", "pass", pass)
			break
		}
		record := PassRecord{Number: pass, TTLBefore: result.TTLRemaining}
		o.emit(PhaseExecute, "pass_start", "", pass)

		ran, blocked := o.runPass(ctx, result, pass)
		record.StepsRun = ran
		record.BlockedSteps = blocked

		assessment, aerr := o.engine.Assess(ctx, converge.Input{
			Objective: objective,
			Plan:      result.Plan,
			Outputs:   result.Outputs,
			Reports:   result.Reports,
			Criteria:  criteria,
		})
		if aerr != nil {
			log.Warnw("convergence assessment failed, treating pass as not converged", "error", aerr)
			assessment = &converge.Assessment{Converged: false, Scores: map[string]float64{}}
		}
		result.Assessment = assessment
		record.Converged = assessment.Converged
		record.IssueCount = issueCount(result.Reports)
		o.emit(PhaseConverge, "assessed", assessment.Explanation, pass)

		cost := 1
		terminal := false
		if !assessment.Converged && result.TTLRemaining > cost {
			if revised, ok := o.adaptive.UpdateTaskProfile(ctx, objective, adaptive.Signals{
				ConvergenceFailed:    true,
				ValidationIssueCount: record.IssueCount,
				BlockedSteps:         blocked,
			}); ok {
				result.Profile = &revised
			}
			refined, rerr := o.refine(ctx, result, pass)
			if refined {
				record.Refined = true
				cost++
				lastRefineKind = ""
			}
			if rerr != nil {
				var pErr *plan.Error
				if errors.As(rerr, &pErr) {
					if pErr.Kind == lastRefineKind {
						log.Warnw("refinement failed with the same defect twice, exiting to synthesis",
							"kind", pErr.Kind)
						terminal = true
					}
					lastRefineKind = pErr.Kind
				}
			}
		}

		result.TTLRemaining -= cost
		if result.TTLRemaining < 0 {
			result.TTLRemaining = 0
		}
		record.TTLAfter = result.TTLRemaining
		result.Passes = append(result.Passes, record)
		o.snapshot(result)

		if assessment.Converged {
			log.Infow("converged", "pass", pass, "ttl_remaining", result.TTLRemaining)
			break
		}
		if terminal {
			break
		}
		if record.StepsRun == 0 && !record.Refined {
			log.Warnw("pass made no progress and applied no refinement, exiting to synthesis", "pass", pass)
			break
		}
		if result.TTLRemaining == 0 {
			log.Warnw("budget exhausted without convergence", "passes", pass)
		}
	}

	return o.finish(ctx, result)
}

// runPass executes every ready pending step once and validates each output.
// Returns how many steps ran and how many validation left blocked.
func (o *Orchestrator) runPass(ctx context.Context, result *ExecutionResult, pass int) (int, int) {
	log := logging.WithRun(logging.CategoryKernel, result.CorrelationID)
	ran, blocked := 0, 0

	progress := true
	for progress {
		progress = false
		for i := range result.Plan.Steps {
			step := &result.Plan.Steps[i]
			if step.Status != plan.StatusPending || step.NeedsManual {
				continue
			}
			if !result.Plan.DependencyReady(*step) {
				continue
			}
			if ctx.Err() != nil {
				return ran, blocked
			}

			ran++
			output, err := o.executor.ExecuteStep(ctx, result.Plan, step, result.Outputs)
			if err != nil {
				log.Warnw("step execution failed", "step", step.ID, "error", err)
				o.emit(PhaseExecute, "step_failed", step.ID, pass)
				step.Status = plan.StatusFailed
				continue
			}

			report, verr := o.validator.ValidateStepOutput(ctx, step, output)
			if verr != nil {
				log.Warnw("validation errored, accepting output unvalidated", "step", step.ID, "error", verr)
				report = &validate.Report{StepID: step.ID, OverallSeverity: validate.SeverityInfo}
			}
			upsertReport(result, report)

			if report.HasBlocking() {
				blocked++
				step.Clarity = plan.ClarityBlocked
				o.emit(PhaseExecute, "step_blocked", step.ID, pass)
				if o.expandBlocked(ctx, result, step, pass) {
					blocked--
					progress = true
				}
				continue
			}

			result.Outputs[step.ID] = output
			step.Status = plan.StatusComplete
			step.Clarity = plan.ClarityClear
			progress = true
			o.emit(PhaseExecute, "step_complete", step.ID, pass)
		}
	}
	return ran, blocked
}

// expandBlocked tries a subplan for a blocked step. Subplan steps execute
// inline; if all complete, their outputs merge into the parent step's output
// and the step completes. Hitting the nesting bound marks the step for
// manual handling; any other failure leaves the step pending so a later pass
// can retry the expansion.
func (o *Orchestrator) expandBlocked(ctx context.Context, result *ExecutionResult, step *plan.Step, pass int) bool {
	log := logging.WithRun(logging.CategoryKernel, result.CorrelationID)
	if step.SubplanID != "" {
		return false // already tried
	}

	sub, err := o.planner.CreateSubplan(ctx, result.Plan, step.ID)
	if err != nil {
		var pErr *plan.Error
		if errors.As(err, &pErr) && pErr.Kind == plan.KindDepthExceeded {
			step.NeedsManual = true
			log.Warnw("nesting bound reached, step needs manual handling", "step", step.ID)
			o.emit(PhaseExecute, "step_needs_manual", step.ID, pass)
			return false
		}
		log.Warnw("subplan unavailable, step stays pending", "step", step.ID, "error", err)
		return false
	}
	result.Subplans[step.ID] = sub
	o.emit(PhaseExecute, "subplan_created", sub.ID, pass)

	merged := ""
	for i := range sub.Steps {
		sstep := &sub.Steps[i]
		if !sub.DependencyReady(*sstep) {
			continue
		}
		out, err := o.executor.ExecuteStep(ctx, sub, sstep, result.Outputs)
		if err != nil {
			log.Warnw("subplan step failed", "step", sstep.ID, "error", err)
			sstep.Status = plan.StatusFailed
			return false
		}
		sstep.Status = plan.StatusComplete
		// Subplan outputs are namespaced by plan so a child step id can never
		// shadow a parent step's output.
		result.Outputs[sub.ID+"/"+sstep.ID] = out
		merged += out + "\n"
	}

	result.Outputs[step.ID] = merged
	step.Status = plan.StatusComplete
	step.Clarity = plan.ClarityClear
	// The decomposition superseded whatever finding blocked the step.
	upsertReport(result, &validate.Report{StepID: step.ID, OverallSeverity: validate.SeverityInfo})
	o.emit(PhaseExecute, "step_complete", step.ID, pass)
	return true
}

// upsertReport keeps one report per step: the latest pass owns the verdict.
func upsertReport(result *ExecutionResult, report *validate.Report) {
	for i, r := range result.Reports {
		if r != nil && r.StepID == report.StepID {
			result.Reports[i] = report
			return
		}
	}
	result.Reports = append(result.Reports, report)
}

// refine applies one delta refinement for the pass, driven by the validation
// reports, the reason codes of the failed assessment, and the steps still
// blocked. On failure the current plan stays authoritative and the error is
// returned so the caller can spot a repeating defect.
func (o *Orchestrator) refine(ctx context.Context, result *ExecutionResult, pass int) (bool, error) {
	log := logging.WithRun(logging.CategoryKernel, result.CorrelationID)

	findings := planner.Findings{
		Reports:      result.Reports,
		BlockedSteps: blockedStepIDs(result.Plan),
	}
	if result.Assessment != nil {
		findings.ReasonCodes = result.Assessment.ReasonCodes
	}
	refined, err := o.planner.RefinePlan(ctx, result.Plan, findings, result.Plan.ExecutedStepIDs())
	if err != nil {
		log.Warnw("refinement failed, keeping current plan", "error", err)
		return false, err
	}
	result.Plan = refined
	o.emit(PhasePlan, "refined", "", pass)
	return true, nil
}

// blockedStepIDs lists the pending steps whose last validation blocked them.
func blockedStepIDs(p *plan.Plan) []string {
	var ids []string
	for _, st := range p.Steps {
		if st.Status == plan.StatusPending && st.Clarity == plan.ClarityBlocked {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

// finish runs synthesis on whatever state exists, persists the snapshot, and
// closes the event stream.
func (o *Orchestrator) finish(ctx context.Context, result *ExecutionResult) *ExecutionResult {
	o.emit(PhaseSynthesize, "start", "", len(result.Passes))

	refinements := 0
	for _, rec := range result.Passes {
		if rec.Refined {
			refinements++
		}
	}
	snap := synthesis.Snapshot{
		Objective:     result.Objective,
		CorrelationID: result.CorrelationID,
		StartedAt:     result.StartedAt,
		Passes:        len(result.Passes),
		Refinements:   refinements,
		Converged:     result.Assessment != nil && result.Assessment.Converged,
		Plan:          result.Plan,
		Outputs:       result.Outputs,
		Assessment:    result.Assessment,
		Reports:       result.Reports,
		Profile:       result.Profile,
		TTLRemaining:  result.TTLRemaining,
	}
	result.Answer = o.stage.Synthesize(ctx, snap)
	result.FinishedAt = time.Now()
	o.snapshot(result)
	o.emit(PhaseSynthesize, "done", "", len(result.Passes))
	o.closeEvents()

	logging.WithRun(logging.CategoryKernel, result.CorrelationID).Infow("execution finished",
		"degraded", result.Answer.Degraded,
		"passes", len(result.Passes),
		"ttl_remaining", result.TTLRemaining)
	return result
}

func (o *Orchestrator) snapshot(result *ExecutionResult) {
	if o.snapshots == nil {
		return
	}
	if err := o.snapshots.Save(result.CorrelationID, result); err != nil {
		logging.Get(logging.CategoryKernel).Warnw("snapshot save failed",
			"run", result.CorrelationID, "error", err)
	}
}

func issueCount(reports []*validate.Report) int {
	n := 0
	for _, r := range reports {
		if r != nil {
			n += len(r.Issues)
		}
	}
	return n
}
