package validation

import (
	"encoding/json"
	"os"

	"github.com/bakeops/bakeops/pkg/schema"
)

// DefinitionValidator orchestrates the three-stage validation pipeline
// for workflow definition overlays:
//  1. Structural (JSON Schema)
//  2. Semantic (state references, terminal leaves, hook expressions)
//  3. Reachability (every state reachable from the initial state)
type DefinitionValidator struct {
	jsonSchema *JSONSchemaValidator
	hooks      HookCompiler
}

// NewDefinitionValidator creates a DefinitionValidator.
// hooks may be nil to skip hook expression compilation checks.
func NewDefinitionValidator(hooks HookCompiler) (*DefinitionValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &DefinitionValidator{
		jsonSchema: jsv,
		hooks:      hooks,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and reachability stages are
// skipped because the document shape cannot be trusted.
func (dv *DefinitionValidator) Validate(specs []schema.DefinitionSpec) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := dv.jsonSchema.ValidateSpecs(specs); err != nil {
		appendStructural(result, err)
		return result
	}

	for _, spec := range specs {
		result.Merge(validateSemantic(spec, dv.hooks))
	}
	if !result.Valid() {
		return result
	}

	for _, spec := range specs {
		result.Merge(validateReachability(spec))
	}
	return result
}

// LoadOverlayFile reads, validates, and decodes a definitions overlay
// file. An invalid overlay is a startup failure, never a silent fallback.
func (dv *DefinitionValidator) LoadOverlayFile(path string) ([]schema.DefinitionSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"read definitions overlay %q: %s", path, err.Error()).WithCause(err)
	}

	if err := dv.jsonSchema.ValidateDocument(raw); err != nil {
		return nil, err
	}

	var specs []schema.DefinitionSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode definitions overlay").WithCause(err)
	}

	if err := dv.Validate(specs).ToError(); err != nil {
		return nil, err
	}
	return specs, nil
}

// appendStructural converts a structural validation error into result issues.
func appendStructural(result *schema.ValidationResult, err error) {
	opErr, ok := err.(*schema.OpsError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	if opErr.Details != nil {
		if violations, ok := opErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return
		}
	}
	result.AddError("/", schema.ErrCodeValidation, opErr.Message)
}
