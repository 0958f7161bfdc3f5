// Package contract is the prompt-contract layer: a closed registry mapping
// contract identifiers to an input-checked rendering template and, where the
// oracle must return structure, a JSON output schema. Rendering failures,
// extraction failures, and schema failures are distinct typed errors; the
// pipeline that digs JSON out of free-form oracle output lives in extract.go.
package contract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ID names one oracle contract. The set is closed: every identifier the
// kernel can invoke is enumerated here and registered at construction, so
// "does every contract have schemas" is a startup check, not a runtime search.
type ID string

const (
	IDInferProfile      ID = "infer_profile"
	IDGeneratePlan      ID = "generate_plan"
	IDCreateSubplan     ID = "create_subplan"
	IDRefinePlan        ID = "refine_plan"
	IDSemanticValidate  ID = "semantic_validate"
	IDAssessConvergence ID = "assess_convergence"
	IDSynthesize        ID = "synthesize"
	IDRepairJSON        ID = "repair_json"
)

// AllIDs lists every registered contract identifier.
func AllIDs() []ID {
	return []ID{
		IDInferProfile,
		IDGeneratePlan,
		IDCreateSubplan,
		IDRefinePlan,
		IDSemanticValidate,
		IDAssessConvergence,
		IDSynthesize,
		IDRepairJSON,
	}
}

// Contract binds a template to its input requirements and optional output
// schema.
type Contract struct {
	ID       ID
	System   string   // optional system prompt
	Template string   // prompt body with {{field}} placeholders
	Required []string // input fields that must be present and non-empty

	// Output is nil for contracts whose response is consumed as raw text.
	Output *jsonschema.Schema

	resolved   *jsonschema.Resolved
	schemaJSON string
}

// Registry is the immutable contract table. Built once, safe for concurrent
// reads.
type Registry struct {
	contracts map[ID]*Contract
}

// NewRegistry builds the closed contract set and resolves every output
// schema. Any unresolvable schema is a construction error: the process must
// not start with a half-valid contract table.
func NewRegistry() (*Registry, error) {
	r := &Registry{contracts: make(map[ID]*Contract)}
	for _, c := range builtinContracts() {
		if c.Output != nil {
			resolved, err := c.Output.Resolve(nil)
			if err != nil {
				return nil, fmt.Errorf("contract %s: resolving output schema: %w", c.ID, err)
			}
			c.resolved = resolved
			raw, err := json.Marshal(c.Output)
			if err != nil {
				return nil, fmt.Errorf("contract %s: marshaling output schema: %w", c.ID, err)
			}
			c.schemaJSON = string(raw)
		}
		r.contracts[c.ID] = c
	}
	return r, nil
}

// Get returns the contract for an identifier.
func (r *Registry) Get(id ID) (*Contract, bool) {
	c, ok := r.contracts[id]
	return c, ok
}

// SchemaJSON returns the serialized output schema for a contract, or "" when
// the contract has none. Used by the repair collaborator prompt.
func (r *Registry) SchemaJSON(id ID) string {
	if c, ok := r.contracts[id]; ok {
		return c.schemaJSON
	}
	return ""
}

// System returns the contract's system prompt, or "".
func (r *Registry) System(id ID) string {
	if c, ok := r.contracts[id]; ok {
		return c.System
	}
	return ""
}

var placeholderRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Render validates the input against the contract's requirements and
// substitutes every placeholder. A required field that is missing, or a
// placeholder left with no value, is a *RenderingError.
func (r *Registry) Render(id ID, input map[string]any) (string, error) {
	c, ok := r.contracts[id]
	if !ok {
		return "", &RenderingError{ContractID: id, Msg: "unknown contract"}
	}

	for _, field := range c.Required {
		v, present := input[field]
		if !present || renderValue(v) == "" {
			return "", &RenderingError{ContractID: id, Field: field, Msg: "required field missing or empty"}
		}
	}

	var missing string
	rendered := placeholderRe.ReplaceAllStringFunc(c.Template, func(m string) string {
		field := placeholderRe.FindStringSubmatch(m)[1]
		v, present := input[field]
		if !present {
			if missing == "" {
				missing = field
			}
			return m
		}
		return renderValue(v)
	})
	if missing != "" {
		return "", &RenderingError{ContractID: id, Field: missing, Msg: "no value for template field"}
	}
	return rendered, nil
}

// renderValue stringifies an input value for substitution. Strings pass
// through; everything else renders as JSON so structured context stays
// machine-readable inside the prompt.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
