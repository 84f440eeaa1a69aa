package store

import (
	"encoding/json"
	"time"

	"github.com/bakeops/bakeops/pkg/schema"
)

// Entity is the persisted representation of a workflowed record. The
// workflow fields (CurrentState, StateEnteredAt, Version) are written only
// through ApplyTransition; everything else is set at creation.
type Entity struct {
	ID             string            `json:"id"`
	Type           schema.EntityType `json:"entity_type"`
	CurrentState   string            `json:"current_state"`
	StateEnteredAt time.Time         `json:"state_entered_at"`
	Priority       schema.Priority   `json:"priority,omitempty"`
	Category       string            `json:"category,omitempty"`
	Location       string            `json:"location,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Attributes     json.RawMessage   `json:"attributes,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TransitionRecord is an immutable entry in the append-only history log.
// Sequence is monotonically increasing per entity; the newest record's
// ToState always equals the entity's CurrentState.
type TransitionRecord struct {
	ID         string            `json:"id"`
	EntityType schema.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	FromState  string            `json:"from_state"`
	ToState    string            `json:"to_state"`
	ChangedAt  time.Time         `json:"changed_at"`
	ChangedBy  string            `json:"changed_by,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Sequence   int64             `json:"sequence"`
}

// TransitionApply is the unit of work handed to ApplyTransition. The store
// commits the state mutation and the history append atomically, guarded by
// a compare-and-swap on ExpectedVersion.
type TransitionApply struct {
	EntityID        string
	ExpectedVersion int64
	ToState         string
	ChangedBy       string
	Notes           string
	ChangedAt       time.Time
}

// AuditEvent is an immutable record of a system-observed condition, such
// as an order crossing its lateness threshold.
type AuditEvent struct {
	ID         int64             `json:"id"`
	EntityType schema.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Type       string            `json:"event_type"`
	Details    json.RawMessage   `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Audit event types.
const (
	AuditEscalationLate   = "escalation_late"
	AuditEscalationUrgent = "escalation_urgent"
)

// EntityFilter specifies criteria for listing entities. Zero values mean
// "no filter" for their field; they are never matched as empty strings.
type EntityFilter struct {
	Type        schema.EntityType `json:"entity_type,omitempty"`
	Status      string            `json:"status,omitempty"`
	CreatedFrom *time.Time        `json:"created_from,omitempty"`
	CreatedTo   *time.Time        `json:"created_to,omitempty"`
	Category    string            `json:"category,omitempty"`
	Location    string            `json:"location,omitempty"`
	Priority    schema.Priority   `json:"priority,omitempty"`
	Search      string            `json:"search,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// AuditFilter specifies criteria for listing audit events.
type AuditFilter struct {
	EntityType schema.EntityType `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Type       string            `json:"event_type,omitempty"`
	Since      *time.Time        `json:"since,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}
