// Package plan defines the declarative plan data model: ordered steps with
// stable identifiers, dependency declarations, and bounded-depth subplans.
// Plans are pure data. No step ever carries procedural logic; mutation after
// initial generation happens only through refinement action batches.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StepStatus tracks a step through its lifecycle. Steps are immutable once
// they leave pending.
type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusComplete StepStatus = "complete"
	StatusFailed   StepStatus = "failed"
)

// IsTerminal reports whether the step can no longer change.
func (s StepStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Clarity describes how actionable a pending step currently is.
type Clarity string

const (
	ClarityClear     Clarity = "clear"
	ClarityAmbiguous Clarity = "ambiguous"
	ClarityBlocked   Clarity = "blocked"
)

// Step is one unit of a declarative plan.
type Step struct {
	// ID uniquely identifies this step within the plan forest.
	ID string `json:"id"`

	// Index is the 1-based position of the step within its plan.
	Index int `json:"step_index"`

	// TotalSteps is the number of steps in the owning plan at the time
	// the step was last (re)written.
	TotalSteps int `json:"total_steps"`

	// Description tells the executing collaborator what to do. It must be
	// self-contained: declarative intent, not instructions for the kernel.
	Description string `json:"description"`

	// Dependencies lists step IDs that must complete before this step.
	Dependencies []string `json:"dependencies,omitempty"`

	// Provides names the artifacts or facts this step contributes.
	Provides []string `json:"provides,omitempty"`

	// IncomingContext and HandoffToNext carry optional inter-step context.
	IncomingContext string `json:"incoming_context,omitempty"`
	HandoffToNext   string `json:"handoff_to_next,omitempty"`

	// Tools lists tool names the step expects to invoke. Validated against
	// the tool registry for hallucinated references.
	Tools []string `json:"tools,omitempty"`

	Status  StepStatus `json:"status"`
	Clarity Clarity    `json:"clarity,omitempty"`

	// NeedsManual marks a fragment that exceeded nesting depth and needs
	// manual intervention instead of further automatic decomposition.
	NeedsManual bool `json:"needs_manual,omitempty"`

	// SubplanID references the child plan decomposing this step, if any.
	SubplanID string `json:"subplan_id,omitempty"`
}

// Plan is an ordered sequence of steps. A plan with Depth > 0 is a subplan
// scoped to the parent step named by ParentStepID.
type Plan struct {
	ID           string    `json:"id"`
	Objective    string    `json:"objective"`
	Summary      string    `json:"summary,omitempty"`
	Steps        []Step    `json:"steps"`
	Depth        int       `json:"depth"`
	ParentStepID string    `json:"parent_step_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewID returns a fresh plan identifier.
func NewID() string {
	return "plan-" + uuid.New().String()[:8]
}

// NewStepID returns a fresh step identifier.
func NewStepID() string {
	return "step-" + uuid.New().String()[:8]
}

// Index returns the step arena: steps indexed by stable ID. The returned
// pointers alias the plan's slice; callers treating the plan as read-only
// must not write through them.
func (p *Plan) Index() map[string]*Step {
	arena := make(map[string]*Step, len(p.Steps))
	for i := range p.Steps {
		arena[p.Steps[i].ID] = &p.Steps[i]
	}
	return arena
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// PendingSteps returns steps that have not reached a terminal status.
func (p *Plan) PendingSteps() []Step {
	var pending []Step
	for _, s := range p.Steps {
		if !s.Status.IsTerminal() {
			pending = append(pending, s)
		}
	}
	return pending
}

// ExecutedStepIDs returns the set of step IDs with terminal status.
func (p *Plan) ExecutedStepIDs() map[string]bool {
	done := make(map[string]bool)
	for _, s := range p.Steps {
		if s.Status.IsTerminal() {
			done[s.ID] = true
		}
	}
	return done
}

// Clone returns a deep copy. Refinement always operates on a clone so a
// failed batch leaves the original untouched.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		cp.Steps[i] = s
		cp.Steps[i].Dependencies = append([]string(nil), s.Dependencies...)
		cp.Steps[i].Provides = append([]string(nil), s.Provides...)
		cp.Steps[i].Tools = append([]string(nil), s.Tools...)
	}
	return &cp
}

// Renumber rewrites Index and TotalSteps after structural changes.
func (p *Plan) Renumber() {
	for i := range p.Steps {
		p.Steps[i].Index = i + 1
		p.Steps[i].TotalSteps = len(p.Steps)
	}
}

// DuplicateIDs returns step IDs that occur more than once.
func (p *Plan) DuplicateIDs() []string {
	seen := make(map[string]int)
	for _, s := range p.Steps {
		seen[s.ID]++
	}
	var dups []string
	for _, s := range p.Steps {
		if seen[s.ID] > 1 {
			dups = append(dups, s.ID)
			seen[s.ID] = 0 // report each duplicate once
		}
	}
	return dups
}

// DanglingDependencies maps step IDs to dependency references that name no
// step in the plan.
func (p *Plan) DanglingDependencies() map[string][]string {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	dangling := make(map[string][]string)
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if !ids[dep] {
				dangling[s.ID] = append(dangling[s.ID], dep)
			}
		}
	}
	return dangling
}

// DependencyReady reports whether every dependency of the step is complete.
func (p *Plan) DependencyReady(s Step) bool {
	arena := p.Index()
	for _, dep := range s.Dependencies {
		d, ok := arena[dep]
		if !ok || d.Status != StatusComplete {
			return false
		}
	}
	return true
}

// String renders a short human-readable summary.
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s depth=%d steps=%d", p.ID, p.Depth, len(p.Steps))
	return sb.String()
}
