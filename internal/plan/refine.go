package plan

// ActionKind is the delta-refinement verb set. Batches of these are the only
// way plan state changes after initial generation.
type ActionKind string

const (
	ActionAdd     ActionKind = "ADD"
	ActionModify  ActionKind = "MODIFY"
	ActionRemove  ActionKind = "REMOVE"
	ActionReplace ActionKind = "REPLACE"
)

// IsValid reports whether the kind is one of the four refinement verbs.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionAdd, ActionModify, ActionRemove, ActionReplace:
		return true
	default:
		return false
	}
}

// RefinementAction is one delta against a plan. For ADD the target is the
// new step's ID and Step carries the payload; for MODIFY/REPLACE Step carries
// the new content; REMOVE needs only the target.
type RefinementAction struct {
	Kind     ActionKind `json:"action"`
	TargetID string     `json:"target_id"`
	Step     *Step      `json:"step,omitempty"`

	// InsertAfter optionally names the step an ADD should follow. Empty
	// appends to the end.
	InsertAfter string `json:"insert_after,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// FilterExecuted splits a batch into applicable actions and violations:
// actions whose target is in executed are never applied. The batch order is
// preserved for the survivors.
func FilterExecuted(batch []RefinementAction, executed map[string]bool) (kept, dropped []RefinementAction) {
	for _, a := range batch {
		if executed[a.TargetID] {
			dropped = append(dropped, a)
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

// ApplyRefinements applies a batch to a plan and returns a new plan value;
// the input plan is never mutated. Guarantees:
//
//   - actions targeting executed (terminal) steps are rejected outright
//   - ADD is idempotent: a target ID that already exists is a no-op, and
//     duplicate ADDs within one batch collapse to the first
//   - REMOVE that would orphan a dependency of a pending step is rejected
//   - MODIFY/REPLACE of a non-pending step is rejected
//
// On any rejection the returned error is a *Error and the original plan is
// left untouched.
func ApplyRefinements(p *Plan, batch []RefinementAction, executed map[string]bool) (*Plan, error) {
	next := p.Clone()
	seenAdds := make(map[string]bool)

	for _, a := range batch {
		if !a.Kind.IsValid() {
			return nil, Errorf(KindBadAction, a.TargetID, "unknown action kind %q", a.Kind)
		}
		if executed[a.TargetID] {
			return nil, Errorf(KindExecutedTarget, a.TargetID, "action %s targets an executed step", a.Kind)
		}

		switch a.Kind {
		case ActionAdd:
			if a.Step == nil {
				return nil, Errorf(KindBadAction, a.TargetID, "ADD without step payload")
			}
			id := a.TargetID
			if id == "" {
				id = a.Step.ID
			}
			if id == "" {
				id = NewStepID()
			}
			if seenAdds[id] || next.Step(id) != nil {
				continue // idempotent ADD
			}
			seenAdds[id] = true

			step := *a.Step
			step.ID = id
			step.Status = StatusPending
			if step.Clarity == "" {
				step.Clarity = ClarityClear
			}
			if a.InsertAfter != "" {
				inserted := false
				for i := range next.Steps {
					if next.Steps[i].ID == a.InsertAfter {
						rest := append([]Step{step}, next.Steps[i+1:]...)
						next.Steps = append(next.Steps[:i+1], rest...)
						inserted = true
						break
					}
				}
				if !inserted {
					next.Steps = append(next.Steps, step)
				}
			} else {
				next.Steps = append(next.Steps, step)
			}

		case ActionRemove:
			target := next.Step(a.TargetID)
			if target == nil {
				return nil, Errorf(KindBadAction, a.TargetID, "REMOVE targets unknown step")
			}
			if target.Status != StatusPending {
				return nil, Errorf(KindImmutableTarget, a.TargetID, "REMOVE targets a %s step", target.Status)
			}
			if dependents := pendingDependents(next, a.TargetID); len(dependents) > 0 {
				return nil, Errorf(KindDependencyBreak, a.TargetID,
					"REMOVE would orphan dependency of pending steps %v", dependents)
			}
			for i := range next.Steps {
				if next.Steps[i].ID == a.TargetID {
					next.Steps = append(next.Steps[:i], next.Steps[i+1:]...)
					break
				}
			}

		case ActionModify, ActionReplace:
			if a.Step == nil {
				return nil, Errorf(KindBadAction, a.TargetID, "%s without step payload", a.Kind)
			}
			target := next.Step(a.TargetID)
			if target == nil {
				return nil, Errorf(KindBadAction, a.TargetID, "%s targets unknown step", a.Kind)
			}
			if target.Status != StatusPending {
				return nil, Errorf(KindImmutableTarget, a.TargetID, "%s targets a %s step", a.Kind, target.Status)
			}
			if a.Kind == ActionReplace {
				replacement := *a.Step
				replacement.ID = a.TargetID
				replacement.Status = StatusPending
				if replacement.Clarity == "" {
					replacement.Clarity = ClarityClear
				}
				if narrowed := narrowedProvides(target.Provides, replacement.Provides); len(narrowed) > 0 {
					if dependents := pendingDependents(next, a.TargetID); len(dependents) > 0 {
						return nil, Errorf(KindDependencyBreak, a.TargetID,
							"REPLACE drops provides %v still needed by %v", narrowed, dependents)
					}
				}
				*target = replacement
			} else {
				// MODIFY patches non-zero fields only.
				if a.Step.Description != "" {
					target.Description = a.Step.Description
				}
				if a.Step.Dependencies != nil {
					target.Dependencies = append([]string(nil), a.Step.Dependencies...)
				}
				if a.Step.Provides != nil {
					target.Provides = append([]string(nil), a.Step.Provides...)
				}
				if a.Step.Tools != nil {
					target.Tools = append([]string(nil), a.Step.Tools...)
				}
				if a.Step.IncomingContext != "" {
					target.IncomingContext = a.Step.IncomingContext
				}
				if a.Step.HandoffToNext != "" {
					target.HandoffToNext = a.Step.HandoffToNext
				}
				if a.Step.Clarity != "" {
					target.Clarity = a.Step.Clarity
				}
			}
		}
	}

	next.Renumber()
	return next, nil
}

// pendingDependents lists pending steps that still declare id as a dependency.
func pendingDependents(p *Plan, id string) []string {
	var dependents []string
	for _, s := range p.Steps {
		if s.ID == id || s.Status != StatusPending {
			continue
		}
		for _, dep := range s.Dependencies {
			if dep == id {
				dependents = append(dependents, s.ID)
				break
			}
		}
	}
	return dependents
}

// narrowedProvides returns entries in old that the replacement no longer
// provides.
func narrowedProvides(old, replacement []string) []string {
	has := make(map[string]bool, len(replacement))
	for _, p := range replacement {
		has[p] = true
	}
	var narrowed []string
	for _, p := range old {
		if !has[p] {
			narrowed = append(narrowed, p)
		}
	}
	return narrowed
}
