// Package validate judges execution artifacts: step outputs and whole plans.
// Cheap deterministic checks run locally first; the oracle is consulted
// exactly once per artifact for the semantic judgment it is actually needed
// for.
package validate

import (
	"context"
	"fmt"
	"strings"

	"cogito/internal/contract"
	"cogito/internal/logging"
	"cogito/internal/plan"
	"cogito/internal/tools"
)

// Severity orders issue impact. BLOCKED issues gate convergence.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarn    Severity = "WARN"
	SeverityBlocked Severity = "BLOCKED"
)

func (s Severity) rank() int {
	switch s {
	case SeverityBlocked:
		return 2
	case SeverityWarn:
		return 1
	default:
		return 0
	}
}

// Issue is one finding against a step's output.
type Issue struct {
	Kind       string   `json:"kind"`
	Severity   Severity `json:"severity"`
	Target     string   `json:"target,omitempty"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Report collects the findings for one artifact: a step's output, or a whole
// plan when StepID carries the plan id.
type Report struct {
	StepID          string         `json:"step_id"`
	Issues          []Issue        `json:"issues"`
	OverallSeverity Severity       `json:"overall_severity"`
	KindCounts      map[string]int `json:"kind_counts,omitempty"`
}

// HasBlocking reports whether any issue blocks the step.
func (r *Report) HasBlocking() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityBlocked {
			return true
		}
	}
	return false
}

func (r *Report) recompute() {
	worst := SeverityInfo
	counts := make(map[string]int, len(r.Issues))
	for _, is := range r.Issues {
		if is.Severity.rank() > worst.rank() {
			worst = is.Severity
		}
		counts[is.Kind]++
	}
	if len(r.Issues) == 0 {
		worst = SeverityInfo
		counts = nil
	}
	r.OverallSeverity = worst
	r.KindCounts = counts
}

// Validator runs the structural checks and the single oracle judgment.
type Validator struct {
	invoker *contract.Invoker
	tools   tools.Registry
}

func NewValidator(invoker *contract.Invoker, reg tools.Registry) *Validator {
	return &Validator{invoker: invoker, tools: reg}
}

// ValidateStepOutput checks a step's output and returns the findings. The
// oracle call is skipped when structural checks already block the step, and
// an oracle failure is tolerated (logged, structural findings returned) so a
// flaky judge never loses deterministic findings.
func (v *Validator) ValidateStepOutput(ctx context.Context, step *plan.Step, output string) (*Report, error) {
	report := &Report{StepID: step.ID}

	report.Issues = append(report.Issues, v.structuralIssues(step, output)...)
	if report.HasBlocking() {
		report.recompute()
		logging.Get(logging.CategoryValidate).Infow("structural checks blocked step, skipping oracle judgment",
			"step", step.ID, "issues", len(report.Issues))
		return report, nil
	}

	judged, err := v.oracleJudgment(ctx, step, output)
	if err != nil {
		if len(report.Issues) == 0 {
			return nil, fmt.Errorf("validating step %s: %w", step.ID, err)
		}
		logging.Get(logging.CategoryValidate).Warnw("oracle judgment failed, keeping structural findings",
			"step", step.ID, "error", err)
	} else {
		report.Issues = append(report.Issues, judged...)
	}

	report.recompute()
	return report, nil
}

// ValidatePlan checks a plan artifact before any of its steps execute.
// Duplicate ids, dangling dependencies, unregistered tools, and empty
// descriptions are found locally; when none block, one oracle judgment
// reviews the plan against the objective. An oracle failure with no
// structural findings surfaces as an error, same as the step path.
func (v *Validator) ValidatePlan(ctx context.Context, objective string, p *plan.Plan) (*Report, error) {
	report := &Report{StepID: p.ID}

	report.Issues = append(report.Issues, v.planStructuralIssues(p)...)
	if report.HasBlocking() {
		report.recompute()
		logging.Get(logging.CategoryValidate).Infow("structural checks blocked plan, skipping oracle judgment",
			"plan", p.ID, "issues", len(report.Issues))
		return report, nil
	}

	judged, err := v.planJudgment(ctx, objective, p)
	if err != nil {
		if len(report.Issues) == 0 {
			return nil, fmt.Errorf("validating plan %s: %w", p.ID, err)
		}
		logging.Get(logging.CategoryValidate).Warnw("oracle judgment failed, keeping structural findings",
			"plan", p.ID, "error", err)
	} else {
		report.Issues = append(report.Issues, judged...)
	}

	report.recompute()
	return report, nil
}

// planStructuralIssues runs the deterministic plan checks.
func (v *Validator) planStructuralIssues(p *plan.Plan) []Issue {
	var issues []Issue

	for _, id := range p.DuplicateIDs() {
		issues = append(issues, Issue{
			Kind:     "duplicate_step",
			Severity: SeverityBlocked,
			Target:   id,
			Message:  fmt.Sprintf("step id %q appears more than once", id),
		})
	}
	for id, deps := range p.DanglingDependencies() {
		for _, dep := range deps {
			issues = append(issues, Issue{
				Kind:       "dangling_dependency",
				Severity:   SeverityBlocked,
				Target:     id,
				Message:    fmt.Sprintf("dependency %q names no step in the plan", dep),
				Suggestion: "remove the dependency or add the missing step",
			})
		}
	}
	for _, st := range p.Steps {
		if strings.TrimSpace(st.Description) == "" {
			issues = append(issues, Issue{
				Kind:     "empty_description",
				Severity: SeverityBlocked,
				Target:   st.ID,
				Message:  "step has no description",
			})
		}
		for _, name := range st.Tools {
			if !v.tools.Has(name) {
				issues = append(issues, Issue{
					Kind:       "unknown_tool",
					Severity:   SeverityBlocked,
					Target:     st.ID,
					Message:    fmt.Sprintf("step names tool %q which is not registered", name),
					Suggestion: "restrict the step to registered tools",
				})
			}
		}
	}
	return issues
}

// structuralIssues runs the deterministic checks: empty output, tool
// membership, and declared artifacts never mentioned.
func (v *Validator) structuralIssues(step *plan.Step, output string) []Issue {
	var issues []Issue

	if strings.TrimSpace(output) == "" {
		issues = append(issues, Issue{
			Kind:     "empty_output",
			Severity: SeverityBlocked,
			Target:   step.ID,
			Message:  "step produced no output",
		})
		return issues
	}

	for _, name := range step.Tools {
		if !v.tools.Has(name) {
			issues = append(issues, Issue{
				Kind:       "unknown_tool",
				Severity:   SeverityBlocked,
				Target:     step.ID,
				Message:    fmt.Sprintf("step names tool %q which is not registered", name),
				Suggestion: "restrict the step to registered tools",
			})
		}
	}

	for _, artifact := range step.Provides {
		if artifact != "" && !strings.Contains(output, artifact) {
			issues = append(issues, Issue{
				Kind:     "missing_artifact",
				Severity: SeverityWarn,
				Target:   step.ID,
				Message:  fmt.Sprintf("output never mentions declared artifact %q", artifact),
			})
		}
	}
	return issues
}

// oracleJudgment makes the single semantic judgment call for the step.
func (v *Validator) oracleJudgment(ctx context.Context, step *plan.Step, output string) ([]Issue, error) {
	return v.decodeJudgment(ctx, map[string]any{
		"step":   step,
		"output": output,
		"tools":  v.tools.ListToolNames(),
	}, step.ID)
}

// planJudgment reviews the plan as one artifact: the objective stands in as
// the requirement and the step list as the output under judgment.
func (v *Validator) planJudgment(ctx context.Context, objective string, p *plan.Plan) ([]Issue, error) {
	requirement := map[string]any{
		"id":          p.ID,
		"description": "a declarative plan whose steps, once executed, satisfy: " + objective,
	}
	return v.decodeJudgment(ctx, map[string]any{
		"step":   requirement,
		"output": p.Steps,
		"tools":  v.tools.ListToolNames(),
	}, p.ID)
}

func (v *Validator) decodeJudgment(ctx context.Context, input map[string]any, defaultTarget string) ([]Issue, error) {
	var decoded struct {
		Issues []struct {
			Kind       string `json:"kind"`
			Severity   string `json:"severity"`
			Target     string `json:"target"`
			Message    string `json:"message"`
			Suggestion string `json:"suggestion"`
		} `json:"issues"`
		OverallSeverity string `json:"overall_severity"`
	}
	if err := v.invoker.InvokeInto(ctx, contract.IDSemanticValidate, input, &decoded); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0, len(decoded.Issues))
	for _, is := range decoded.Issues {
		issues = append(issues, Issue{
			Kind:       is.Kind,
			Severity:   normalizeSeverity(is.Severity),
			Target:     firstNonEmpty(is.Target, defaultTarget),
			Message:    is.Message,
			Suggestion: is.Suggestion,
		})
	}
	return issues, nil
}

// normalizeSeverity maps free-form oracle severities onto the closed set.
// Unknown labels become WARN.
func normalizeSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityInfo:
		return SeverityInfo
	case SeverityBlocked:
		return SeverityBlocked
	default:
		return SeverityWarn
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
