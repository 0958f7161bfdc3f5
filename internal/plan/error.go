package plan

import "fmt"

// ErrorKind classifies plan failures so callers can degrade the right way:
// every kind is caught at the orchestrator and never escapes the process.
type ErrorKind string

const (
	// KindDepthExceeded: a subplan was requested past max_nesting_depth.
	KindDepthExceeded ErrorKind = "depth_exceeded"

	// KindExecutedTarget: a refinement action targeted a step that already
	// reached a terminal status.
	KindExecutedTarget ErrorKind = "executed_target"

	// KindImmutableTarget: an action targeted a non-pending step.
	KindImmutableTarget ErrorKind = "immutable_target"

	// KindDependencyBreak: a REMOVE (or narrowing REPLACE) would orphan a
	// dependency still declared by a pending step.
	KindDependencyBreak ErrorKind = "dependency_break"

	// KindNotDeclarative: generated plan content embeds procedural logic.
	KindNotDeclarative ErrorKind = "not_declarative"

	// KindBadAction: an action is structurally invalid (unknown kind,
	// missing payload, unknown target).
	KindBadAction ErrorKind = "bad_action"
)

// Error is the typed plan failure. It degrades the affected fragment; it is
// never allowed to abort a whole task execution.
type Error struct {
	Kind   ErrorKind
	Target string // offending step ID, when applicable
	Msg    string
}

func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("plan error (%s) on %s: %s", e.Kind, e.Target, e.Msg)
	}
	return fmt.Sprintf("plan error (%s): %s", e.Kind, e.Msg)
}

// Errorf builds a plan error with a formatted message.
func Errorf(kind ErrorKind, target, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Target: target, Msg: fmt.Sprintf(format, args...)}
}
