package workflow

import (
	"github.com/bakeops/bakeops/pkg/schema"
)

// Registry holds the compiled workflow definition for each entity type.
// It is built once at process start and never mutated afterwards, so it
// may be shared read-only across all concurrent callers.
type Registry struct {
	defs map[schema.EntityType]*Definition
}

// NewRegistry compiles the given specs into a registry. Later specs for
// the same entity type replace earlier ones, which is how overlays
// loaded from a definitions file override the built-in defaults.
func NewRegistry(specs []schema.DefinitionSpec) (*Registry, error) {
	r := &Registry{defs: make(map[schema.EntityType]*Definition, len(specs))}
	for _, spec := range specs {
		if _, err := schema.ParseEntityType(string(spec.EntityType)); err != nil {
			return nil, err
		}
		def := Compile(spec)
		if !def.HasState(def.InitialState) {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"definition for %s: initial state %q not in state set", spec.EntityType, spec.InitialState)
		}
		r.defs[spec.EntityType] = def
	}
	return r, nil
}

// DefaultRegistry builds a registry from the built-in definitions.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs())
	if err != nil {
		// The built-in specs are compile-time constants; a failure here is
		// a programming error.
		panic(err)
	}
	return r
}

// Get returns the definition for an entity type.
func (r *Registry) Get(et schema.EntityType) (*Definition, error) {
	def, ok := r.defs[et]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no workflow definition for entity type %q", et)
	}
	return def, nil
}

// EntityTypes returns the entity types with a registered definition,
// in schema.EntityTypes order.
func (r *Registry) EntityTypes() []schema.EntityType {
	var types []schema.EntityType
	for _, et := range schema.EntityTypes {
		if _, ok := r.defs[et]; ok {
			types = append(types, et)
		}
	}
	return types
}
