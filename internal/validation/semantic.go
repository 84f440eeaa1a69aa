package validation

import (
	"fmt"

	"github.com/bakeops/bakeops/pkg/schema"
)

// HookCompiler is satisfied by the CEL engine; used to check that hook
// expressions compile without evaluating them.
type HookCompiler interface {
	Compile(expression string) error
}

// validateSemantic checks the cross-references JSON Schema cannot express:
// every state mentioned anywhere must belong to the spec's state set,
// terminal states must not have outgoing edges, and hook expressions must
// compile.
func validateSemantic(spec schema.DefinitionSpec, hooks HookCompiler) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	path := fmt.Sprintf("/%s", spec.EntityType)

	states := make(map[string]struct{}, len(spec.States))
	for _, s := range spec.States {
		if _, dup := states[s]; dup {
			result.AddError(path+"/states", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate state %q", s))
		}
		states[s] = struct{}{}
	}

	known := func(s string) bool {
		_, ok := states[s]
		return ok
	}

	if !known(spec.InitialState) {
		result.AddError(path+"/initial_state", schema.ErrCodeValidation,
			fmt.Sprintf("initial state %q not in state set", spec.InitialState))
	}

	terminals := make(map[string]struct{}, len(spec.TerminalStates))
	for _, s := range spec.TerminalStates {
		terminals[s] = struct{}{}
		if !known(s) {
			result.AddError(path+"/terminal_states", schema.ErrCodeValidation,
				fmt.Sprintf("terminal state %q not in state set", s))
		}
	}
	if _, ok := terminals[spec.InitialState]; ok {
		result.AddError(path+"/terminal_states", schema.ErrCodeValidation,
			fmt.Sprintf("initial state %q cannot be terminal", spec.InitialState))
	}

	for from, tos := range spec.Transitions {
		if !known(from) {
			result.AddError(path+"/transitions", schema.ErrCodeValidation,
				fmt.Sprintf("transition source %q not in state set", from))
			continue
		}
		if _, terminal := terminals[from]; terminal && len(tos) > 0 {
			result.AddError(path+"/transitions", schema.ErrCodeValidation,
				fmt.Sprintf("terminal state %q must not have outgoing transitions", from))
		}
		for _, to := range tos {
			if !known(to) {
				result.AddError(path+"/transitions", schema.ErrCodeValidation,
					fmt.Sprintf("transition target %q (from %q) not in state set", to, from))
			}
			if to == from {
				result.AddError(path+"/transitions", schema.ErrCodeValidation,
					fmt.Sprintf("self-loop on %q is not allowed", from))
			}
		}
	}

	for i, rule := range spec.Escalation {
		if !known(rule.State) {
			result.AddError(fmt.Sprintf("%s/escalation/%d", path, i), schema.ErrCodeValidation,
				fmt.Sprintf("escalation state %q not in state set", rule.State))
		}
	}
	if spec.MirrorPriority && len(spec.Escalation) > 0 {
		result.AddWarning(path+"/escalation", schema.ErrCodeValidation,
			"mirror_priority definitions ignore time-based escalation rules")
	}

	for i, tab := range spec.Tabs {
		for _, s := range tab.States {
			if !known(s) {
				result.AddError(fmt.Sprintf("%s/tabs/%d", path, i), schema.ErrCodeValidation,
					fmt.Sprintf("tab %q references unknown state %q", tab.ID, s))
			}
		}
	}

	for i, hook := range spec.Hooks {
		hookPath := fmt.Sprintf("%s/hooks/%d", path, i)
		if hook.On != schema.HookOnCreate && !known(hook.On) {
			result.AddError(hookPath, schema.ErrCodeValidation,
				fmt.Sprintf("hook target %q is neither a state nor %q", hook.On, schema.HookOnCreate))
		}
		if hooks != nil {
			if err := hooks.Compile(hook.Expr); err != nil {
				result.AddError(hookPath, schema.ErrCodeValidation,
					fmt.Sprintf("hook expression does not compile: %v", err))
			}
		}
	}

	return result
}

// validateReachability checks that every state can be reached from the
// initial state by following transition edges. Unreachable states are
// dead table entries, almost always a typo in an overlay.
func validateReachability(spec schema.DefinitionSpec) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	path := fmt.Sprintf("/%s/states", spec.EntityType)

	reached := map[string]struct{}{spec.InitialState: {}}
	frontier := []string{spec.InitialState}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, to := range spec.Transitions[current] {
			if _, seen := reached[to]; seen {
				continue
			}
			reached[to] = struct{}{}
			frontier = append(frontier, to)
		}
	}

	for _, s := range spec.States {
		if _, ok := reached[s]; !ok {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("state %q is unreachable from initial state %q", s, spec.InitialState))
		}
	}
	return result
}
