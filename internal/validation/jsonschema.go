package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bakeops/bakeops/pkg/schema"
)

// definitionSchemaJSON is the JSON Schema for a definitions overlay file:
// an array of DefinitionSpec objects. Embedded as a constant to avoid
// filesystem dependencies.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://bakeops.dev/schemas/definitions.json",
  "type": "array",
  "items": { "$ref": "#/$defs/definition" },
  "$defs": {
    "definition": {
      "type": "object",
      "required": ["entity_type", "states", "initial_state", "terminal_states", "transitions"],
      "properties": {
        "entity_type": {
          "type": "string",
          "enum": ["order", "inventory_alert", "customer_feedback", "staff_feedback"]
        },
        "states": {
          "type": "array",
          "minItems": 1,
          "items": { "type": "string", "minLength": 1 }
        },
        "initial_state": { "type": "string", "minLength": 1 },
        "terminal_states": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        },
        "transitions": {
          "type": "object",
          "additionalProperties": {
            "type": "array",
            "items": { "type": "string", "minLength": 1 }
          }
        },
        "escalation": {
          "type": "array",
          "items": { "$ref": "#/$defs/escalation_rule" }
        },
        "mirror_priority": { "type": "boolean" },
        "tabs": {
          "type": "array",
          "items": { "$ref": "#/$defs/tab" }
        },
        "hooks": {
          "type": "array",
          "items": { "$ref": "#/$defs/hook" }
        },
        "force_priority": {
          "type": "array",
          "items": { "$ref": "#/$defs/force_priority_rule" }
        }
      },
      "additionalProperties": false
    },
    "escalation_rule": {
      "type": "object",
      "required": ["state", "after_minutes"],
      "properties": {
        "state": { "type": "string", "minLength": 1 },
        "after_minutes": { "type": "integer", "minimum": 1 }
      },
      "additionalProperties": false
    },
    "tab": {
      "type": "object",
      "required": ["id", "label", "states"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "label": { "type": "string", "minLength": 1 },
        "states": {
          "type": "array",
          "minItems": 1,
          "items": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    },
    "hook": {
      "type": "object",
      "required": ["on", "expr", "message"],
      "properties": {
        "on": { "type": "string", "minLength": 1 },
        "expr": { "type": "string", "minLength": 1 },
        "message": { "type": "string", "minLength": 1 },
        "field": { "type": "string" }
      },
      "additionalProperties": false
    },
    "force_priority_rule": {
      "type": "object",
      "required": ["category", "priority"],
      "properties": {
        "category": { "type": "string", "minLength": 1 },
        "priority": {
          "type": "string",
          "enum": ["low", "medium", "high", "urgent"]
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates definition overlay documents against the
// embedded JSON Schema. Safe for concurrent use.
type JSONSchemaValidator struct {
	definitionSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the
// definitions schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definitions schema: %w", err)
	}
	if err := c.AddResource("https://bakeops.dev/schemas/definitions.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add definitions schema resource: %w", err)
	}

	compiled, err := c.Compile("https://bakeops.dev/schemas/definitions.json")
	if err != nil {
		return nil, fmt.Errorf("compile definitions schema: %w", err)
	}

	return &JSONSchemaValidator{definitionSchema: compiled}, nil
}

// ValidateDocument validates a raw overlay document against the schema.
func (v *JSONSchemaValidator) ValidateDocument(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "definitions file is not valid JSON").WithCause(err)
	}
	if err := v.definitionSchema.Validate(doc); err != nil {
		return toOpsError(err)
	}
	return nil
}

// ValidateSpecs validates already-decoded specs by round-tripping them
// through JSON, so numeric values become json.Number as the jsonschema
// library requires.
func (v *JSONSchemaValidator) ValidateSpecs(specs []schema.DefinitionSpec) error {
	b, err := json.Marshal(specs)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize definitions").WithCause(err)
	}
	return v.ValidateDocument(b)
}

// toOpsError converts a jsonschema.ValidationError into an OpsError with
// clear, actionable messages.
func toOpsError(err error) *schema.OpsError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
