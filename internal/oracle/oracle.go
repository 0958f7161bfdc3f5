// Package oracle defines the reasoning-oracle seam: the single interface
// through which all nondeterministic judgment enters the kernel. Everything
// behind it is an untrusted collaborator; everything in front of it must
// tolerate failure and malformed output.
package oracle

import (
	"context"
	"fmt"
)

// Client is the oracle contract. One request in, one response out. The
// response is free text; structure is the contract layer's problem.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Repairer is the repair collaborator: given output that failed schema
// validation, it gets exactly one chance to fix it before the caller gives up.
type Repairer interface {
	Repair(ctx context.Context, malformed string, targetSchema string) (string, error)
}

// Error wraps a transport or availability failure from the oracle.
type Error struct {
	Op        string // operation that failed, e.g. "complete"
	Retryable bool   // true for rate limits and transient transport faults
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a non-retryable oracle error.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
