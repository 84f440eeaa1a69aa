package schema

// DefinitionSpec is the JSON-serializable workflow definition format.
// The built-in definitions are expressed in this shape, and operators may
// supply an overlay file that adjusts them at process start. Definitions
// are immutable once compiled into the registry.
type DefinitionSpec struct {
	EntityType     EntityType          `json:"entity_type"`
	States         []string            `json:"states"`
	InitialState   string              `json:"initial_state"`
	TerminalStates []string            `json:"terminal_states"`
	Transitions    map[string][]string `json:"transitions"`
	Escalation     []EscalationRule    `json:"escalation,omitempty"`
	MirrorPriority bool                `json:"mirror_priority,omitempty"`
	Tabs           []TabSpec           `json:"tabs,omitempty"`
	Hooks          []HookSpec          `json:"hooks,omitempty"`
	ForcePriority  []ForcePriorityRule `json:"force_priority,omitempty"`
}

// ForcePriorityRule pins the priority of entities created with a given
// category (e.g. safety_concern staff feedback is always urgent).
type ForcePriorityRule struct {
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
}

// EscalationRule marks a state as late once strictly more than
// AfterMinutes have elapsed since the state was entered.
type EscalationRule struct {
	State        string `json:"state"`
	AfterMinutes int    `json:"after_minutes"`
}

// TabSpec is a presentation-level grouping of states into one UI tab.
// It never affects the transition graph.
type TabSpec struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	States []string `json:"states"`
}

// HookSpec is a payload precondition attached to a target state (or to
// entity creation when On is "create"). Expr is a CEL expression over the
// variables `payload` and `entity`; it must evaluate to true for the
// transition to proceed. Message is the user-facing rejection reason.
type HookSpec struct {
	On      string `json:"on"`
	Expr    string `json:"expr"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// HookOnCreate is the sentinel value for hooks that run at entity creation.
const HookOnCreate = "create"
