package contract

import "fmt"

// RenderingError reports a contract invocation that never reached the oracle
// because its input did not satisfy the template.
type RenderingError struct {
	ContractID ID
	Field      string
	Msg        string
}

func (e *RenderingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("contract %s: render: field %q: %s", e.ContractID, e.Field, e.Msg)
	}
	return fmt.Sprintf("contract %s: render: %s", e.ContractID, e.Msg)
}

// JSONExtractionError means no tier of the extraction pipeline found
// parseable JSON in the oracle's output. Tiers records every tier that was
// attempted, in order.
type JSONExtractionError struct {
	ContractID ID
	Tiers      []string
	Raw        string
}

func (e *JSONExtractionError) Error() string {
	return fmt.Sprintf("contract %s: no parseable JSON after tiers %v", e.ContractID, e.Tiers)
}

// ValidationError means JSON was extracted but the payload does not conform
// to the contract's output schema. Raw holds the extracted JSON so a repair
// attempt can be made against it.
type ValidationError struct {
	ContractID ID
	Raw        string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("contract %s: output schema violation: %v", e.ContractID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
