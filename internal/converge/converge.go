// Package converge decides whether an execution pass actually finished the
// job. The oracle scores the work; the engine enforces thresholds and gates,
// so an optimistic judge can never declare premature victory on its own.
package converge

import (
	"context"
	"fmt"

	"cogito/internal/contract"
	"cogito/internal/logging"
	"cogito/internal/plan"
	"cogito/internal/validate"
)

// Default thresholds per scored dimension.
const (
	DefaultCompleteness = 0.95
	DefaultConsistency  = 0.90
	DefaultCoherence    = 0.90
)

// Reason codes emitted in assessments.
const (
	ReasonCriteriaConflict   = "criteria_conflict"
	ReasonPendingSteps       = "pending_steps"
	ReasonBlockingIssues     = "blocking_issues"
	ReasonBelowThreshold     = "below_threshold"
	ReasonOracleNotConverged = "oracle_not_converged"
)

// Criterion is one caller-supplied threshold override. Criteria are a list,
// not a map, so a contradictory pair naming the same dimension twice is
// representable and detectable.
type Criterion struct {
	Dimension string  `json:"dimension"`
	Threshold float64 `json:"threshold"`
}

// Assessment is the engine's verdict for one pass.
type Assessment struct {
	Converged      bool               `json:"converged"`
	Scores         map[string]float64 `json:"scores"`
	ReasonCodes    []string           `json:"reason_codes,omitempty"`
	DetectedIssues []string           `json:"detected_issues,omitempty"`
	Explanation    string             `json:"explanation,omitempty"`
}

// Engine assesses convergence through the oracle and local gates.
type Engine struct {
	invoker *contract.Invoker
}

func NewEngine(invoker *contract.Invoker) *Engine {
	return &Engine{invoker: invoker}
}

// Input bundles everything one assessment looks at.
type Input struct {
	Objective string
	Plan      *plan.Plan
	Outputs   map[string]string
	Reports   []*validate.Report
	Criteria  []Criterion
}

// Assess runs one convergence check. Contradictory criteria short-circuit to
// a non-converged verdict without consulting the oracle.
func (e *Engine) Assess(ctx context.Context, in Input) (*Assessment, error) {
	log := logging.Get(logging.CategoryConverge)

	if conflict := findConflict(in.Criteria); conflict != "" {
		log.Warnw("contradictory convergence criteria", "detail", conflict)
		return &Assessment{
			Converged:   false,
			Scores:      map[string]float64{},
			ReasonCodes: []string{ReasonCriteriaConflict},
			Explanation: conflict,
		}, nil
	}

	var decoded struct {
		Converged      bool               `json:"converged"`
		Scores         map[string]float64 `json:"scores"`
		ReasonCodes    []string           `json:"reason_codes"`
		DetectedIssues []string           `json:"detected_issues"`
		Explanation    string             `json:"explanation"`
	}
	err := e.invoker.InvokeInto(ctx, contract.IDAssessConvergence, map[string]any{
		"objective": in.Objective,
		"plan":      in.Plan,
		"outputs":   in.Outputs,
		"findings":  in.Reports,
		"criteria":  in.Criteria,
	}, &decoded)
	if err != nil {
		return nil, fmt.Errorf("assessing convergence: %w", err)
	}

	out := &Assessment{
		Converged:      decoded.Converged,
		Scores:         decoded.Scores,
		ReasonCodes:    decoded.ReasonCodes,
		DetectedIssues: decoded.DetectedIssues,
		Explanation:    decoded.Explanation,
	}
	if out.Scores == nil {
		out.Scores = map[string]float64{}
	}

	// Local gates run after the oracle verdict and can only veto.
	if !decoded.Converged {
		appendCode(out, ReasonOracleNotConverged)
	}
	if in.Plan != nil && len(in.Plan.PendingSteps()) > 0 {
		out.Converged = false
		appendCode(out, ReasonPendingSteps)
	}
	for _, r := range in.Reports {
		if r != nil && r.HasBlocking() {
			out.Converged = false
			appendCode(out, ReasonBlockingIssues)
			break
		}
	}
	for dim, threshold := range thresholds(in.Criteria) {
		if out.Scores[dim] < threshold {
			out.Converged = false
			appendCode(out, ReasonBelowThreshold)
			out.DetectedIssues = append(out.DetectedIssues,
				fmt.Sprintf("%s %.2f below threshold %.2f", dim, out.Scores[dim], threshold))
		}
	}

	log.Infow("convergence assessed",
		"converged", out.Converged,
		"scores", out.Scores,
		"reasons", out.ReasonCodes)
	return out, nil
}

// thresholds merges custom criteria over the defaults.
func thresholds(criteria []Criterion) map[string]float64 {
	t := map[string]float64{
		"completeness": DefaultCompleteness,
		"consistency":  DefaultConsistency,
		"coherence":    DefaultCoherence,
	}
	for _, c := range criteria {
		t[c.Dimension] = c.Threshold
	}
	return t
}

// findConflict reports the first contradiction in the criteria list: a
// dimension bound twice to different thresholds, or a threshold outside
// [0, 1]. Returns "" when the criteria are coherent.
func findConflict(criteria []Criterion) string {
	seen := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		if c.Dimension == "" {
			return "criterion with empty dimension"
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Sprintf("criterion %q threshold %.2f outside [0,1]", c.Dimension, c.Threshold)
		}
		if prev, dup := seen[c.Dimension]; dup && prev != c.Threshold {
			return fmt.Sprintf("criterion %q bound to both %.2f and %.2f", c.Dimension, prev, c.Threshold)
		}
		seen[c.Dimension] = c.Threshold
	}
	return ""
}

func appendCode(a *Assessment, code string) {
	for _, c := range a.ReasonCodes {
		if c == code {
			return
		}
	}
	a.ReasonCodes = append(a.ReasonCodes, code)
}
