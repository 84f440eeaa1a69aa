package workflow

import (
	"encoding/json"

	"github.com/bakeops/bakeops/internal/expressions"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/pkg/schema"
)

// HookRunner evaluates payload precondition hooks against the CEL engine.
type HookRunner struct {
	engine *expressions.CELEngine
}

// NewHookRunner creates a HookRunner backed by the given CEL engine.
func NewHookRunner(engine *expressions.CELEngine) *HookRunner {
	return &HookRunner{engine: engine}
}

// Run evaluates every hook registered for the given target state (or
// schema.HookOnCreate for creation-time hooks). The first failing hook
// rejects the request with PRECONDITION_FAILED, naming the missing field.
func (h *HookRunner) Run(def *Definition, on string, payload schema.Payload, entity *store.Entity) error {
	hooks := def.Hooks[on]
	if len(hooks) == 0 {
		return nil
	}

	entityVars := entityActivation(entity)
	for _, hook := range hooks {
		ok, err := h.engine.EvaluateBool(hook.Expr, payload, entityVars)
		if err != nil {
			return err
		}
		if !ok {
			e := schema.NewError(schema.ErrCodePreconditionFailed, hook.Message)
			if hook.Field != "" {
				e = e.WithDetails(map[string]any{"field": hook.Field})
			}
			return e
		}
	}
	return nil
}

// ApplyForcedPriority applies the definition's force_priority rules to an
// entity's priority based on its category. Returns the (possibly
// rewritten) priority.
func ApplyForcedPriority(def *Definition, category string, priority schema.Priority) schema.Priority {
	for _, rule := range def.ForcePriority {
		if rule.Category == category {
			return rule.Priority
		}
	}
	return priority
}

// entityActivation flattens entity fields into the CEL `entity` variable.
func entityActivation(e *store.Entity) map[string]any {
	if e == nil {
		return nil
	}
	vars := map[string]any{
		"id":            e.ID,
		"current_state": e.CurrentState,
		"priority":      string(e.Priority),
		"category":      e.Category,
		"location":      e.Location,
		"summary":       e.Summary,
	}
	if len(e.Attributes) > 0 {
		var attrs map[string]any
		if err := json.Unmarshal(e.Attributes, &attrs); err == nil {
			vars["attributes"] = attrs
		}
	}
	return vars
}
