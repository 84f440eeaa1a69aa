package workflow

import (
	"time"

	"github.com/bakeops/bakeops/pkg/schema"
)

// Definition is the compiled, immutable form of a schema.DefinitionSpec.
// Built once at process start and shared read-only across all callers.
type Definition struct {
	EntityType     schema.EntityType
	States         map[string]struct{}
	InitialState   string
	TerminalStates map[string]struct{}
	Transitions    map[string]map[string]struct{}
	Escalation     map[string]time.Duration
	MirrorPriority bool
	Tabs           []schema.TabSpec
	Hooks          map[string][]schema.HookSpec
	ForcePriority  []schema.ForcePriorityRule
}

// Compile builds a Definition from its serializable spec. Outgoing edges
// from terminal states are stripped: terminal states are always leaves,
// even if an overlay constructed a table without that safeguard.
func Compile(spec schema.DefinitionSpec) *Definition {
	def := &Definition{
		EntityType:     spec.EntityType,
		States:         make(map[string]struct{}, len(spec.States)),
		InitialState:   spec.InitialState,
		TerminalStates: make(map[string]struct{}, len(spec.TerminalStates)),
		Transitions:    make(map[string]map[string]struct{}, len(spec.Transitions)),
		Escalation:     make(map[string]time.Duration, len(spec.Escalation)),
		MirrorPriority: spec.MirrorPriority,
		Tabs:           spec.Tabs,
		Hooks:          make(map[string][]schema.HookSpec),
		ForcePriority:  spec.ForcePriority,
	}
	for _, s := range spec.States {
		def.States[s] = struct{}{}
	}
	for _, s := range spec.TerminalStates {
		def.TerminalStates[s] = struct{}{}
	}
	for from, tos := range spec.Transitions {
		if _, terminal := def.TerminalStates[from]; terminal {
			continue
		}
		set := make(map[string]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		def.Transitions[from] = set
	}
	for _, rule := range spec.Escalation {
		def.Escalation[rule.State] = time.Duration(rule.AfterMinutes) * time.Minute
	}
	for _, h := range spec.Hooks {
		def.Hooks[h.On] = append(def.Hooks[h.On], h)
	}
	return def
}

// IsTerminal reports whether the state has no outgoing transitions.
func (d *Definition) IsTerminal(state string) bool {
	_, ok := d.TerminalStates[state]
	return ok
}

// HasState reports whether the state belongs to this definition.
func (d *Definition) HasState(state string) bool {
	_, ok := d.States[state]
	return ok
}

// AllowedNext returns the states reachable from the given state, in
// unspecified order. Empty for terminal or unknown states.
func (d *Definition) AllowedNext(state string) []string {
	set, ok := d.Transitions[state]
	if !ok {
		return nil
	}
	next := make([]string, 0, len(set))
	for to := range set {
		next = append(next, to)
	}
	return next
}

// DefaultSpecs returns the built-in workflow definitions for the four
// entity types of the operations console.
func DefaultSpecs() []schema.DefinitionSpec {
	return []schema.DefinitionSpec{
		{
			EntityType: schema.EntityOrder,
			States: []string{
				schema.OrderPaymentConfirmed,
				schema.OrderPreparing,
				schema.OrderReadyForCollection,
				schema.OrderOutForDelivery,
				schema.OrderCompleted,
				schema.OrderCancelled,
				schema.OrderFailedDelivery,
			},
			InitialState: schema.OrderPaymentConfirmed,
			TerminalStates: []string{
				schema.OrderCompleted,
				schema.OrderCancelled,
				schema.OrderFailedDelivery,
			},
			Transitions: map[string][]string{
				schema.OrderPaymentConfirmed:   {schema.OrderPreparing, schema.OrderCancelled},
				schema.OrderPreparing:          {schema.OrderReadyForCollection, schema.OrderOutForDelivery, schema.OrderCancelled},
				schema.OrderReadyForCollection: {schema.OrderCompleted, schema.OrderCancelled},
				schema.OrderOutForDelivery:     {schema.OrderCompleted, schema.OrderFailedDelivery, schema.OrderCancelled},
				schema.OrderCompleted:          {},
				schema.OrderCancelled:          {},
				schema.OrderFailedDelivery:     {},
			},
			Escalation: []schema.EscalationRule{
				{State: schema.OrderPaymentConfirmed, AfterMinutes: 15},
				{State: schema.OrderPreparing, AfterMinutes: 30},
			},
			Tabs: []schema.TabSpec{
				{ID: "new", Label: "New", States: []string{schema.OrderPaymentConfirmed}},
				{ID: "preparing", Label: "Preparing", States: []string{schema.OrderPreparing}},
				{ID: "ready_out", Label: "Ready/Out", States: []string{schema.OrderReadyForCollection, schema.OrderOutForDelivery}},
				{ID: "completed", Label: "Completed", States: []string{schema.OrderCompleted}},
				{ID: "issues", Label: "Cancelled/Failed", States: []string{schema.OrderCancelled, schema.OrderFailedDelivery}},
			},
		},
		{
			EntityType: schema.EntityInventoryAlert,
			States: []string{
				schema.AlertPending,
				schema.AlertAcknowledged,
				schema.AlertInProgress,
				schema.AlertResolved,
			},
			InitialState:   schema.AlertPending,
			TerminalStates: []string{schema.AlertResolved},
			Transitions: map[string][]string{
				schema.AlertPending:      {schema.AlertAcknowledged, schema.AlertResolved},
				schema.AlertAcknowledged: {schema.AlertInProgress, schema.AlertResolved},
				schema.AlertInProgress:   {schema.AlertResolved},
				schema.AlertResolved:     {},
			},
			MirrorPriority: true,
			Tabs: []schema.TabSpec{
				{ID: "pending", Label: "Pending", States: []string{schema.AlertPending}},
				{ID: "acknowledged", Label: "Acknowledged", States: []string{schema.AlertAcknowledged}},
				{ID: "in_progress", Label: "In Progress", States: []string{schema.AlertInProgress}},
				{ID: "resolved", Label: "Resolved", States: []string{schema.AlertResolved}},
			},
			Hooks: []schema.HookSpec{
				{
					On:      schema.AlertResolved,
					Expr:    `'resolution_notes' in payload && payload['resolution_notes'] != ''`,
					Message: "resolution_notes required",
					Field:   "resolution_notes",
				},
			},
		},
		{
			EntityType: schema.EntityCustomerFeedback,
			States: []string{
				schema.FeedbackPendingReview,
				schema.FeedbackReviewed,
				schema.FeedbackRequiresAttention,
			},
			InitialState: schema.FeedbackPendingReview,
			TerminalStates: []string{
				schema.FeedbackReviewed,
				schema.FeedbackRequiresAttention,
			},
			Transitions: map[string][]string{
				schema.FeedbackPendingReview:     {schema.FeedbackReviewed, schema.FeedbackRequiresAttention},
				schema.FeedbackReviewed:          {},
				schema.FeedbackRequiresAttention: {},
			},
			Tabs: []schema.TabSpec{
				{ID: "pending_review", Label: "Pending Review", States: []string{schema.FeedbackPendingReview}},
				{ID: "reviewed", Label: "Reviewed", States: []string{schema.FeedbackReviewed}},
				{ID: "requires_attention", Label: "Requires Attention", States: []string{schema.FeedbackRequiresAttention}},
			},
		},
		{
			EntityType: schema.EntityStaffFeedback,
			States: []string{
				schema.StaffFeedbackPendingReview,
				schema.StaffFeedbackUnderReview,
				schema.StaffFeedbackInProgress,
				schema.StaffFeedbackResolved,
				schema.StaffFeedbackClosed,
			},
			InitialState: schema.StaffFeedbackPendingReview,
			TerminalStates: []string{
				schema.StaffFeedbackResolved,
				schema.StaffFeedbackClosed,
			},
			Transitions: map[string][]string{
				schema.StaffFeedbackPendingReview: {schema.StaffFeedbackUnderReview},
				schema.StaffFeedbackUnderReview:   {schema.StaffFeedbackInProgress},
				schema.StaffFeedbackInProgress:    {schema.StaffFeedbackResolved, schema.StaffFeedbackClosed},
				schema.StaffFeedbackResolved:      {},
				schema.StaffFeedbackClosed:        {},
			},
			MirrorPriority: true,
			Tabs: []schema.TabSpec{
				{ID: "pending_review", Label: "Pending Review", States: []string{schema.StaffFeedbackPendingReview}},
				{ID: "under_review", Label: "Under Review", States: []string{schema.StaffFeedbackUnderReview}},
				{ID: "in_progress", Label: "In Progress", States: []string{schema.StaffFeedbackInProgress}},
				{ID: "closed", Label: "Resolved/Closed", States: []string{schema.StaffFeedbackResolved, schema.StaffFeedbackClosed}},
			},
			ForcePriority: []schema.ForcePriorityRule{
				{Category: schema.StaffFeedbackSafetyConcern, Priority: schema.PriorityUrgent},
			},
		},
	}
}
