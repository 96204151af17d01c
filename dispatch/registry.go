package dispatch

import (
	"fmt"
	"sort"

	"github.com/peakform/coachcore/core"
)

// Registry is the immutable set of callable functions, built once at startup
// and injected into the dispatcher / orchestrator. No runtime registration
// exists, which removes the need for any lock on lookup.
type Registry struct {
	defs  map[string]Definition
	names []string
}

// NewRegistry validates and freezes a set of definitions. A duplicate name,
// empty name or nil handler is a ConfigurationError: the process should fail
// before serving any request.
func NewRegistry(defs ...Definition) (*Registry, error) {
	byName := make(map[string]Definition, len(defs))
	names := make([]string, 0, len(defs))

	for _, def := range defs {
		if def.Name == "" {
			return nil, &core.ConfigurationError{Field: "function.name", Message: "empty function name"}
		}
		if def.Handler == nil {
			return nil, &core.ConfigurationError{Field: def.Name, Message: "nil handler"}
		}
		if _, exists := byName[def.Name]; exists {
			return nil, &core.ConfigurationError{
				Field:   def.Name,
				Message: fmt.Sprintf("duplicate function name %q", def.Name),
			}
		}
		if def.Parameters == nil {
			def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		byName[def.Name] = def
		names = append(names, def.Name)
	}

	sort.Strings(names)
	return &Registry{defs: byName, names: names}, nil
}

// Lookup returns the definition for a name. Lock-free: the registry never
// changes after construction.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns all registered function names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Definitions returns all definitions in name order, for building the
// function list advertised to the model.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.defs[n])
	}
	return out
}

// Len returns the number of registered functions.
func (r *Registry) Len() int { return len(r.defs) }
