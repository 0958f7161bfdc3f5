// Package adaptive profiles a task before execution and tunes the execution
// budget from that profile. The profile is inferred once up front and only
// revised when the run itself produces hard evidence that the initial read
// was wrong.
package adaptive

import (
	"context"
	"fmt"
	"time"

	"cogito/internal/contract"
	"cogito/internal/logging"
)

// Depth tier bounds.
const (
	MinDepth = 1
	MaxDepth = 5
)

// TaskProfile captures the controller's current read of a task.
type TaskProfile struct {
	Version                int       `json:"version"`
	ReasoningDepth         int       `json:"reasoning_depth"`
	InformationSufficiency float64   `json:"information_sufficiency"`
	ExpectedToolUsage      string    `json:"expected_tool_usage"`
	OutputBreadth          string    `json:"output_breadth"`
	ConfidenceRequirement  float64   `json:"confidence_requirement"`
	Rationale              string    `json:"rationale"`
	InferredAt             time.Time `json:"inferred_at"`
}

// Signals are the per-pass observations that can justify a profile revision.
type Signals struct {
	ConvergenceFailed    bool
	ValidationIssueCount int
	BlockedSteps         int
}

// Controller owns the profile and its revision history for one execution.
type Controller struct {
	invoker *contract.Invoker
	profile TaskProfile
	history []TaskProfile
}

func NewController(invoker *contract.Invoker) *Controller {
	return &Controller{invoker: invoker}
}

// Profile returns the current profile.
func (c *Controller) Profile() TaskProfile { return c.profile }

// History returns every profile version in order, newest last.
func (c *Controller) History() []TaskProfile {
	out := make([]TaskProfile, len(c.history))
	copy(out, c.history)
	return out
}

// InferTaskProfile asks the oracle to profile the objective and clamps the
// result into valid ranges. The first profile is version 1. When a prior
// profile exists, the inferred depth is smoothed to move at most one tier
// from the previous one, so repeated inference cannot oscillate.
func (c *Controller) InferTaskProfile(ctx context.Context, objective string) (TaskProfile, error) {
	var decoded struct {
		ReasoningDepth         int     `json:"reasoning_depth"`
		InformationSufficiency float64 `json:"information_sufficiency"`
		ExpectedToolUsage      string  `json:"expected_tool_usage"`
		OutputBreadth          string  `json:"output_breadth"`
		ConfidenceRequirement  float64 `json:"confidence_requirement"`
		Rationale              string  `json:"rationale"`
	}
	err := c.invoker.InvokeInto(ctx, contract.IDInferProfile, map[string]any{
		"objective": objective,
	}, &decoded)
	if err != nil {
		return TaskProfile{}, fmt.Errorf("inferring task profile: %w", err)
	}

	depth := clampDepth(decoded.ReasoningDepth)
	version := 1
	if n := len(c.history); n > 0 {
		prev := c.history[n-1]
		depth = smoothTier(prev.ReasoningDepth, depth)
		version = prev.Version + 1
	}

	p := TaskProfile{
		Version:                version,
		ReasoningDepth:         depth,
		InformationSufficiency: clampUnit(decoded.InformationSufficiency),
		ExpectedToolUsage:      decoded.ExpectedToolUsage,
		OutputBreadth:          decoded.OutputBreadth,
		ConfidenceRequirement:  clampUnit(decoded.ConfidenceRequirement),
		Rationale:              decoded.Rationale,
		InferredAt:             time.Now(),
	}
	c.profile = p
	c.history = append(c.history, p)

	logging.Get(logging.CategoryAdaptive).Infow("task profile inferred",
		"depth", p.ReasoningDepth,
		"sufficiency", p.InformationSufficiency)
	return p, nil
}

// UpdateTaskProfile revises the profile mid-run. Revision requires the full
// conjunction of convergence failure, a non-empty validation report, and at
// least one blocked step; anything less keeps the profile stable. When the
// conjunction holds the profile is recomputed through one new oracle
// inference carrying the pass evidence, with the tier smoothing and version
// bump that inference already applies. An oracle failure keeps the current
// profile. Returns the current profile and whether a revision happened.
func (c *Controller) UpdateTaskProfile(ctx context.Context, objective string, sig Signals) (TaskProfile, bool) {
	if !sig.ConvergenceFailed || sig.ValidationIssueCount == 0 || sig.BlockedSteps == 0 {
		return c.profile, false
	}

	evidence := fmt.Sprintf(
		"%s\n\nExecution evidence: a pass failed to converge with %d validation issue(s) and %d blocked step(s).",
		objective, sig.ValidationIssueCount, sig.BlockedSteps)
	revised, err := c.InferTaskProfile(ctx, evidence)
	if err != nil {
		logging.Get(logging.CategoryAdaptive).Warnw("profile recompute failed, keeping current profile",
			"error", err)
		return c.profile, false
	}

	logging.Get(logging.CategoryAdaptive).Infow("task profile revised",
		"version", revised.Version,
		"depth", revised.ReasoningDepth,
		"sufficiency", revised.InformationSufficiency)
	return revised, true
}

// AllocateTTL derives a pass budget from a profile. Pure and monotonic in
// reasoning depth: a deeper profile never yields a smaller budget. The result
// is clamped to [1, maxTTL].
func AllocateTTL(p TaskProfile, baseTTL, maxTTL int) int {
	if baseTTL < 1 {
		baseTTL = 1
	}
	ttl := baseTTL * clampDepth(p.ReasoningDepth)
	if p.InformationSufficiency < 0.5 {
		ttl += baseTTL
	}
	if maxTTL > 0 && ttl > maxTTL {
		ttl = maxTTL
	}
	if ttl < 1 {
		ttl = 1
	}
	return ttl
}

// smoothTier steps from the previous depth toward the inferred one, moving at
// most one tier.
func smoothTier(prev, inferred int) int {
	if inferred > prev+1 {
		return prev + 1
	}
	if inferred < prev-1 {
		return prev - 1
	}
	return inferred
}

func clampDepth(d int) int {
	if d < MinDepth {
		return MinDepth
	}
	if d > MaxDepth {
		return MaxDepth
	}
	return d
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
