// Package tools holds the registry of tool names a plan is allowed to
// reference. Planner prompts advertise the list and the validator treats any
// name outside it as a hallucination.
package tools

import "sort"

// Registry exposes the closed set of tool names available to an execution.
type Registry interface {
	ListToolNames() []string
	Has(name string) bool
}

// StaticRegistry is a fixed tool set configured at startup.
type StaticRegistry struct {
	names map[string]struct{}
}

// NewStaticRegistry builds a registry from a name list, dropping duplicates.
func NewStaticRegistry(names []string) *StaticRegistry {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return &StaticRegistry{names: set}
}

// ListToolNames returns the tool names in sorted order.
func (r *StaticRegistry) ListToolNames() []string {
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is a registered tool.
func (r *StaticRegistry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}
