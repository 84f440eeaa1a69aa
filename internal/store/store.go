package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string) (*Entity, error)
	ListEntities(ctx context.Context, filter EntityFilter) ([]*Entity, error)

	// ApplyTransition atomically mutates the entity's workflow fields and
	// appends a TransitionRecord in a single transaction. The mutation is
	// guarded by a compare-and-swap on apply.ExpectedVersion; a version
	// mismatch returns a CONFLICT error and commits nothing.
	ApplyTransition(ctx context.Context, apply TransitionApply) (*Entity, error)

	// Transition history (append-only)
	ListTransitions(ctx context.Context, entityID string) ([]*TransitionRecord, error)

	// Audit log (append-only)
	AppendAudit(ctx context.Context, event *AuditEvent) error
	ListAudits(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
