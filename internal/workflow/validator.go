package workflow

import (
	"github.com/bakeops/bakeops/pkg/schema"
)

// ValidateTransition accepts or rejects a requested state change against
// the definition's graph. Pure and deterministic; safe to call
// concurrently. Payload preconditions are layered separately (see hooks.go).
func ValidateTransition(def *Definition, from, to string) error {
	if !def.HasState(from) {
		return schema.NewErrorf(schema.ErrCodeUnknownState,
			"state %q is not part of the %s workflow", from, def.EntityType)
	}
	if !def.HasState(to) {
		return schema.NewErrorf(schema.ErrCodeUnknownState,
			"state %q is not part of the %s workflow", to, def.EntityType)
	}
	if def.IsTerminal(from) {
		return schema.NewErrorf(schema.ErrCodeTerminalState,
			"%q is a terminal state; no transitions leave it", from).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	if _, ok := def.Transitions[from][to]; !ok {
		return schema.NewErrorf(schema.ErrCodeIllegalTransition,
			"cannot move from %q to %q", from, to).
			WithDetails(map[string]any{"from": from, "to": to, "allowed": def.AllowedNext(from)})
	}
	return nil
}
