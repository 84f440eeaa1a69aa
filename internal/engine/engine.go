package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bakeops/bakeops/internal/logging"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

// Engine orchestrates workflow transitions for single entity instances.
// It is the only writer of an entity's workflow fields; everything it
// calls below the store boundary commits as one unit of work, so a failed
// history append never leaves a state mutation visible.
type Engine struct {
	registry *workflow.Registry
	store    store.Store
	hooks    *workflow.HookRunner
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine. now may be nil to use the wall clock.
func NewEngine(registry *workflow.Registry, s store.Store, hooks *workflow.HookRunner, logger *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		registry: registry,
		store:    s,
		hooks:    hooks,
		logger:   logger,
		now:      now,
	}
}

// TransitionRequest describes one requested state change.
type TransitionRequest struct {
	To      string         `json:"to_state"`
	ActorID string         `json:"-"`
	Notes   string         `json:"notes,omitempty"`
	Payload schema.Payload `json:"payload,omitempty"`
}

// CreateRequest describes a new entity. The entity always starts in the
// definition's initial state; force_priority rules may rewrite Priority.
type CreateRequest struct {
	Priority   schema.Priority `json:"priority,omitempty"`
	Category   string          `json:"category,omitempty"`
	Location   string          `json:"location,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	Payload    schema.Payload  `json:"payload,omitempty"`
}

// Transition validates and applies a state change for one entity.
// Failures map to exactly one taxonomy code: UNKNOWN_STATE,
// ILLEGAL_TRANSITION, TERMINAL_STATE, PRECONDITION_FAILED, CONFLICT,
// NOT_FOUND, or STORE_ERROR. On any failure nothing is mutated.
func (e *Engine) Transition(ctx context.Context, entityType schema.EntityType, entityID string, req TransitionRequest) (*store.Entity, error) {
	def, err := e.registry.Get(entityType)
	if err != nil {
		return nil, err
	}

	entity, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if entity.Type != entityType {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"entity %q is not a %s", entityID, entityType).WithEntity(entityID)
	}

	if err := workflow.ValidateTransition(def, entity.CurrentState, req.To); err != nil {
		return nil, err
	}
	if err := e.hooks.Run(def, req.To, req.Payload, entity); err != nil {
		return nil, err
	}

	notes := req.Notes
	if notes == "" {
		// Hook payload fields (e.g. resolution_notes) double as the audit
		// note when no explicit note was given.
		for _, hk := range def.Hooks[req.To] {
			if hk.Field == "" {
				continue
			}
			if v := req.Payload.StringField(hk.Field); v != "" {
				notes = v
				break
			}
		}
	}

	updated, err := e.store.ApplyTransition(ctx, store.TransitionApply{
		EntityID:        entityID,
		ExpectedVersion: entity.Version,
		ToState:         req.To,
		ChangedBy:       req.ActorID,
		Notes:           notes,
		ChangedAt:       e.now(),
	})
	if err != nil {
		return nil, err
	}

	logging.LogWith(ctx, e.logger).Info("transition applied",
		slog.String("entity_type", string(entityType)),
		slog.String("entity_id", entityID),
		slog.String("from", entity.CurrentState),
		slog.String("to", req.To),
	)
	return updated, nil
}

// Create inserts a new entity in the definition's initial state, applying
// force_priority rules and creation-time hooks.
func (e *Engine) Create(ctx context.Context, entityType schema.EntityType, req CreateRequest) (*store.Entity, error) {
	def, err := e.registry.Get(entityType)
	if err != nil {
		return nil, err
	}

	if req.Priority != "" && !schema.ValidPriority(req.Priority) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown priority %q", req.Priority)
	}

	if err := e.hooks.Run(def, schema.HookOnCreate, req.Payload, nil); err != nil {
		return nil, err
	}

	now := e.now()
	entity := &store.Entity{
		ID:             uuid.New().String(),
		Type:           entityType,
		CurrentState:   def.InitialState,
		StateEnteredAt: now,
		Priority:       workflow.ApplyForcedPriority(def, req.Category, req.Priority),
		Category:       req.Category,
		Location:       req.Location,
		Summary:        req.Summary,
		Attributes:     req.Attributes,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.CreateEntity(ctx, entity); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "create entity: %s", err.Error()).WithCause(err)
	}

	logging.LogWith(ctx, e.logger).Info("entity created",
		slog.String("entity_type", string(entityType)),
		slog.String("entity_id", entity.ID),
		slog.String("state", entity.CurrentState),
	)
	return entity, nil
}

// History returns the entity's transition records in application order.
func (e *Engine) History(ctx context.Context, entityID string) ([]*store.TransitionRecord, error) {
	return e.store.ListTransitions(ctx, entityID)
}
