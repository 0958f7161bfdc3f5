package kernel

import (
	"context"
	"fmt"
	"strings"

	"cogito/internal/oracle"
	"cogito/internal/plan"
)

// StepExecutor performs the actual work a step describes. The kernel owns
// ordering, validation, and budgets; the executor owns only the step itself.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, p *plan.Plan, step *plan.Step, priorOutputs map[string]string) (string, error)
}

// OracleExecutor executes steps by asking the oracle to perform them
// directly. It is the default executor when no tool-backed one is wired.
type OracleExecutor struct {
	client oracle.Client
}

func NewOracleExecutor(client oracle.Client) *OracleExecutor {
	return &OracleExecutor{client: client}
}

// ExecuteStep prompts the oracle with the step and the outputs of its
// dependencies.
func (e *OracleExecutor) ExecuteStep(ctx context.Context, p *plan.Plan, step *plan.Step, priorOutputs map[string]string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are executing one step of a larger plan.\n\n")
	fmt.Fprintf(&b, "Overall objective: %s\n\n", p.Objective)
	fmt.Fprintf(&b, "Step %d of %d: %s\n", step.Index, step.TotalSteps, step.Description)
	if step.IncomingContext != "" {
		fmt.Fprintf(&b, "\nContext: %s\n", step.IncomingContext)
	}
	if len(step.Dependencies) > 0 {
		b.WriteString("\nResults from earlier steps:\n")
		for _, dep := range step.Dependencies {
			if out, ok := priorOutputs[dep]; ok {
				fmt.Fprintf(&b, "--- %s ---\n%s\n", dep, out)
			}
		}
	}
	if step.HandoffToNext != "" {
		fmt.Fprintf(&b, "\nThe next step expects: %s\n", step.HandoffToNext)
	}
	b.WriteString("\nProduce the step's result. Be concrete and complete.")

	out, err := e.client.Complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("executing step %s: %w", step.ID, err)
	}
	return out, nil
}
