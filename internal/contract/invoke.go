package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cogito/internal/logging"
	"cogito/internal/oracle"
)

// Invoker drives one contract round-trip: render, ask the oracle, extract and
// validate, and on a schema violation make exactly one repair attempt before
// surfacing the typed error.
type Invoker struct {
	registry *Registry
	client   oracle.Client
	repairer oracle.Repairer
}

// NewInvoker wires an invoker. repairer may be nil, in which case schema
// violations surface immediately.
func NewInvoker(registry *Registry, client oracle.Client, repairer oracle.Repairer) *Invoker {
	return &Invoker{registry: registry, client: client, repairer: repairer}
}

// Invoke executes the contract and returns the validated payload
// (map[string]any for schema-bearing contracts, raw text otherwise).
func (inv *Invoker) Invoke(ctx context.Context, id ID, input map[string]any) (any, error) {
	log := logging.Get(logging.CategoryContract)

	prompt, err := inv.registry.Render(id, input)
	if err != nil {
		return nil, err
	}

	response, err := inv.complete(ctx, id, prompt)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", id, err)
	}

	out, err := inv.registry.ExtractAndValidate(id, response)
	if err == nil {
		return out, nil
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) || inv.repairer == nil {
		return nil, err
	}

	log.Warnw("schema violation, attempting repair", "contract", id, "cause", vErr.Err)
	repaired, rerr := inv.repairer.Repair(ctx, vErr.Raw, inv.registry.SchemaJSON(id))
	if rerr != nil {
		log.Warnw("repair call failed", "contract", id, "error", rerr)
		return nil, err
	}
	out, rerr = inv.registry.ExtractAndValidate(id, repaired)
	if rerr != nil {
		return nil, rerr
	}
	log.Infow("repair succeeded", "contract", id)
	return out, nil
}

// InvokeInto invokes the contract and decodes the payload into target, which
// must be a pointer to a struct with json tags.
func (inv *Invoker) InvokeInto(ctx context.Context, id ID, input map[string]any, target any) error {
	out, err := inv.Invoke(ctx, id, input)
	if err != nil {
		return err
	}
	return Decode(out, target)
}

// complete sends the prompt, retrying once on a transport failure.
func (inv *Invoker) complete(ctx context.Context, id ID, prompt string) (string, error) {
	system := inv.registry.System(id)
	call := func() (string, error) {
		if system != "" {
			return inv.client.CompleteWithSystem(ctx, system, prompt)
		}
		return inv.client.Complete(ctx, prompt)
	}

	response, err := call()
	if err == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	logging.Get(logging.CategoryContract).Warnw("oracle call failed, retrying once", "contract", id, "error", err)
	return call()
}

// Decode round-trips a decoded payload into a typed struct.
func Decode(payload any, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
