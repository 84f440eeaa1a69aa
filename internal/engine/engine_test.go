package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/internal/expressions"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

// memStore is an in-memory Store with the same compare-and-swap semantics
// as the libSQL implementation, sufficient for engine tests.
type memStore struct {
	store.Store

	mu          sync.Mutex
	entities    map[string]*store.Entity
	transitions map[string][]*store.TransitionRecord
}

func newMemStore() *memStore {
	return &memStore{
		entities:    make(map[string]*store.Entity),
		transitions: make(map[string][]*store.TransitionRecord),
	}
}

func (m *memStore) CreateEntity(_ context.Context, e *store.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entities[e.ID] = &cp
	return nil
}

func (m *memStore) GetEntity(_ context.Context, id string) (*store.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "entity %q not found", id).WithEntity(id)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ApplyTransition(_ context.Context, apply store.TransitionApply) (*store.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[apply.EntityID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "entity %q not found", apply.EntityID).WithEntity(apply.EntityID)
	}
	if e.Version != apply.ExpectedVersion {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"entity %q was modified concurrently", apply.EntityID).WithEntity(apply.EntityID)
	}

	rec := &store.TransitionRecord{
		EntityType: e.Type,
		EntityID:   e.ID,
		FromState:  e.CurrentState,
		ToState:    apply.ToState,
		ChangedAt:  apply.ChangedAt,
		ChangedBy:  apply.ChangedBy,
		Notes:      apply.Notes,
		Sequence:   int64(len(m.transitions[e.ID]) + 1),
	}
	m.transitions[e.ID] = append(m.transitions[e.ID], rec)

	e.CurrentState = apply.ToState
	e.StateEnteredAt = apply.ChangedAt
	e.Version++
	e.UpdatedAt = apply.ChangedAt

	cp := *e
	return &cp, nil
}

func (m *memStore) ListTransitions(_ context.Context, entityID string) ([]*store.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.TransitionRecord(nil), m.transitions[entityID]...), nil
}

func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return NewEngine(workflow.DefaultRegistry(), st, workflow.NewHookRunner(cel), slog.New(slog.DiscardHandler), func() time.Time { return now })
}

func seedOrder(t *testing.T, st *memStore, state string) *store.Entity {
	t.Helper()
	e := &store.Entity{
		ID:             "ord-1",
		Type:           schema.EntityOrder,
		CurrentState:   state,
		StateEnteredAt: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Version:        1,
		CreatedAt:      time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateEntity(context.Background(), e))
	return e
}

func TestTransitionRoundTrip(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)
	seedOrder(t, st, schema.OrderPaymentConfirmed)

	updated, err := eng.Transition(context.Background(), schema.EntityOrder, "ord-1", TransitionRequest{
		To:      schema.OrderPreparing,
		ActorID: "staff-7",
		Notes:   "dough started",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderPreparing, updated.CurrentState)
	assert.Equal(t, int64(2), updated.Version)

	history, err := eng.History(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	latest := history[len(history)-1]
	assert.Equal(t, updated.CurrentState, latest.ToState)
	assert.Equal(t, schema.OrderPaymentConfirmed, latest.FromState)
	assert.Equal(t, "staff-7", latest.ChangedBy)
	assert.Equal(t, "dough started", latest.Notes)
	assert.Equal(t, int64(1), latest.Sequence)
}

func TestTransitionRejectionsLeaveEntityUntouched(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		wantCode string
	}{
		{"illegal skip", schema.OrderPaymentConfirmed, schema.OrderCompleted, schema.ErrCodeIllegalTransition},
		{"terminal source", schema.OrderCompleted, schema.OrderPreparing, schema.ErrCodeTerminalState},
		{"unknown target", schema.OrderPreparing, "baking", schema.ErrCodeUnknownState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			eng := newTestEngine(t, st)
			seedOrder(t, st, tt.from)

			_, err := eng.Transition(context.Background(), schema.EntityOrder, "ord-1", TransitionRequest{To: tt.to})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, schema.CodeOf(err))

			current, err := st.GetEntity(context.Background(), "ord-1")
			require.NoError(t, err)
			assert.Equal(t, tt.from, current.CurrentState)
			assert.Equal(t, int64(1), current.Version)

			history, err := eng.History(context.Background(), "ord-1")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestTransitionEntityTypeMismatch(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)
	seedOrder(t, st, schema.OrderPreparing)

	_, err := eng.Transition(context.Background(), schema.EntityInventoryAlert, "ord-1", TransitionRequest{
		To: schema.AlertAcknowledged,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestTransitionResolutionNotesPrecondition(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)
	alert := &store.Entity{
		ID:           "alert-1",
		Type:         schema.EntityInventoryAlert,
		CurrentState: schema.AlertInProgress,
		Priority:     schema.PriorityHigh,
		Version:      1,
	}
	require.NoError(t, st.CreateEntity(context.Background(), alert))

	// Without notes the resolve hook rejects and nothing moves.
	_, err := eng.Transition(context.Background(), schema.EntityInventoryAlert, "alert-1", TransitionRequest{
		To: schema.AlertResolved,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodePreconditionFailed, schema.CodeOf(err))

	current, err := st.GetEntity(context.Background(), "alert-1")
	require.NoError(t, err)
	assert.Equal(t, schema.AlertInProgress, current.CurrentState)

	// With notes it succeeds, and the notes land in the history record.
	updated, err := eng.Transition(context.Background(), schema.EntityInventoryAlert, "alert-1", TransitionRequest{
		To:      schema.AlertResolved,
		Payload: schema.Payload{"resolution_notes": "restocked flour"},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.AlertResolved, updated.CurrentState)

	history, err := eng.History(context.Background(), "alert-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "restocked flour", history[0].Notes)
}

func TestTransitionConcurrentWritersConflict(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)
	seedOrder(t, st, schema.OrderPreparing)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []string{schema.OrderReadyForCollection, schema.OrderCancelled}
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to string) {
			defer wg.Done()
			_, errs[i] = eng.Transition(context.Background(), schema.EntityOrder, "ord-1", TransitionRequest{To: to})
		}(i, to)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err)) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one writer wins")
	assert.Equal(t, 1, conflicts, "the loser sees a conflict")

	// Exactly one history record regardless of which writer won.
	history, err := eng.History(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreateAppliesForcedPriority(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)

	created, err := eng.Create(context.Background(), schema.EntityStaffFeedback, CreateRequest{
		Priority: schema.PriorityLow,
		Category: schema.StaffFeedbackSafetyConcern,
		Summary:  "wet floor by the proofing rack",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.PriorityUrgent, created.Priority)
	assert.Equal(t, schema.StaffFeedbackPendingReview, created.CurrentState)
	assert.Equal(t, int64(1), created.Version)
	assert.NotEmpty(t, created.ID)
}

func TestCreateRejectsUnknownPriority(t *testing.T) {
	st := newMemStore()
	eng := newTestEngine(t, st)

	_, err := eng.Create(context.Background(), schema.EntityOrder, CreateRequest{Priority: "critical"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
