package contract

import (
	"context"

	"cogito/internal/logging"
	"cogito/internal/oracle"
)

// ClientRepairer implements oracle.Repairer through the repair contract:
// one extra round-trip, with the repaired text going back through the same
// extraction pipeline that rejected the original. The caller owns the
// single-attempt policy.
type ClientRepairer struct {
	registry *Registry
	client   oracle.Client
}

func NewClientRepairer(registry *Registry, client oracle.Client) *ClientRepairer {
	return &ClientRepairer{registry: registry, client: client}
}

// Repair asks the oracle to fix output that failed schema validation.
func (r *ClientRepairer) Repair(ctx context.Context, malformed string, targetSchema string) (string, error) {
	prompt, err := r.registry.Render(IDRepairJSON, map[string]any{
		"malformed": malformed,
		"schema":    targetSchema,
	})
	if err != nil {
		return "", err
	}

	logging.Get(logging.CategoryOracle).Debugw("attempting schema repair",
		"malformed_len", len(malformed))

	return r.client.Complete(ctx, prompt)
}
