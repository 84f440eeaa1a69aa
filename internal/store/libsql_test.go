package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bakeops-test.db")
	s, err := NewLibSQLStore("file:" + path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

var storeBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testOrder(id string, createdAt time.Time) *Entity {
	return &Entity{
		ID:             id,
		Type:           schema.EntityOrder,
		CurrentState:   schema.OrderPaymentConfirmed,
		StateEnteredAt: createdAt,
		Summary:        "2x sourdough, 1x rye",
		Version:        1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestEntityRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := testOrder("ord-1", storeBase)
	e.Priority = schema.PriorityHigh
	e.Category = "bread"
	e.Location = "main-street"
	e.Attributes = json.RawMessage(`{"customer":"J. Vermeer"}`)
	require.NoError(t, s.CreateEntity(ctx, e))

	got, err := s.GetEntity(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, schema.EntityOrder, got.Type)
	assert.Equal(t, schema.OrderPaymentConfirmed, got.CurrentState)
	assert.Equal(t, schema.PriorityHigh, got.Priority)
	assert.Equal(t, "bread", got.Category)
	assert.Equal(t, "main-street", got.Location)
	assert.Equal(t, "2x sourdough, 1x rye", got.Summary)
	assert.JSONEq(t, `{"customer":"J. Vermeer"}`, string(got.Attributes))
	assert.Equal(t, int64(1), got.Version)
}

func TestEntityRoundTripNullFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &Entity{
		ID:           "fb-1",
		Type:         schema.EntityCustomerFeedback,
		CurrentState: schema.FeedbackPendingReview,
		CreatedAt:    storeBase,
	}
	require.NoError(t, s.CreateEntity(ctx, e))

	got, err := s.GetEntity(ctx, "fb-1")
	require.NoError(t, err)
	assert.Empty(t, got.Priority)
	assert.Empty(t, got.Category)
	assert.Nil(t, got.Attributes)
	assert.Equal(t, int64(1), got.Version, "missing version defaults to 1")
}

func TestGetEntityNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEntity(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestListEntitiesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testOrder("ord-old", storeBase.AddDate(0, 0, -2))
	newer := testOrder("ord-new", storeBase)
	newer.CurrentState = schema.OrderPreparing
	alert := &Entity{
		ID:           "alert-1",
		Type:         schema.EntityInventoryAlert,
		CurrentState: schema.AlertPending,
		Priority:     schema.PriorityUrgent,
		Summary:      "flour below threshold",
		CreatedAt:    storeBase,
	}
	for _, e := range []*Entity{older, newer, alert} {
		require.NoError(t, s.CreateEntity(ctx, e))
	}

	t.Run("by type", func(t *testing.T) {
		got, err := s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by status", func(t *testing.T) {
		got, err := s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder, Status: schema.OrderPreparing})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ord-new", got[0].ID)
	})

	t.Run("by created range", func(t *testing.T) {
		from := storeBase.AddDate(0, 0, -1)
		got, err := s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder, CreatedFrom: &from})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ord-new", got[0].ID)

		// The upper bound is exclusive.
		to := storeBase
		got, err = s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder, CreatedTo: &to})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ord-old", got[0].ID)
	})

	t.Run("by priority", func(t *testing.T) {
		got, err := s.ListEntities(ctx, EntityFilter{Priority: schema.PriorityUrgent})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "alert-1", got[0].ID)
	})

	t.Run("search matches summary and id", func(t *testing.T) {
		got, err := s.ListEntities(ctx, EntityFilter{Search: "flour"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "alert-1", got[0].ID)

		got, err = s.ListEntities(ctx, EntityFilter{Search: "ord-old"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ord-new", got[0].ID, "newest first")

		got, err = s.ListEntities(ctx, EntityFilter{Type: schema.EntityOrder, Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ord-old", got[0].ID)
	})
}

func TestApplyTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEntity(ctx, testOrder("ord-1", storeBase)))

	changedAt := storeBase.Add(10 * time.Minute)
	updated, err := s.ApplyTransition(ctx, TransitionApply{
		EntityID:        "ord-1",
		ExpectedVersion: 1,
		ToState:         schema.OrderPreparing,
		ChangedBy:       "staff-7",
		Notes:           "dough started",
		ChangedAt:       changedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderPreparing, updated.CurrentState)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.StateEnteredAt.Equal(changedAt))

	records, err := s.ListTransitions(ctx, "ord-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, schema.OrderPaymentConfirmed, records[0].FromState)
	assert.Equal(t, schema.OrderPreparing, records[0].ToState)
	assert.Equal(t, "staff-7", records[0].ChangedBy)
	assert.Equal(t, "dough started", records[0].Notes)
	assert.Equal(t, int64(1), records[0].Sequence)
	assert.NotEmpty(t, records[0].ID)
}

func TestApplyTransitionStaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEntity(ctx, testOrder("ord-1", storeBase)))

	_, err := s.ApplyTransition(ctx, TransitionApply{
		EntityID: "ord-1", ExpectedVersion: 1, ToState: schema.OrderPreparing,
	})
	require.NoError(t, err)

	// A second writer still holding version 1 must lose.
	_, err = s.ApplyTransition(ctx, TransitionApply{
		EntityID: "ord-1", ExpectedVersion: 1, ToState: schema.OrderCancelled,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))

	// The losing write left no trace.
	got, err := s.GetEntity(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, schema.OrderPreparing, got.CurrentState)
	records, err := s.ListTransitions(ctx, "ord-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestApplyTransitionMissingEntity(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyTransition(context.Background(), TransitionApply{
		EntityID: "ghost", ExpectedVersion: 1, ToState: schema.OrderPreparing,
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestTransitionSequenceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateEntity(ctx, testOrder("ord-1", storeBase)))

	steps := []string{schema.OrderPreparing, schema.OrderReadyForCollection, schema.OrderCompleted}
	for i, to := range steps {
		_, err := s.ApplyTransition(ctx, TransitionApply{
			EntityID: "ord-1", ExpectedVersion: int64(i + 1), ToState: to,
		})
		require.NoError(t, err)
	}

	records, err := s.ListTransitions(ctx, "ord-1")
	require.NoError(t, err)
	require.Len(t, records, len(steps))
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.Sequence)
		assert.Equal(t, steps[i], r.ToState)
	}
	// Each record chains onto the previous one.
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].ToState, records[i].FromState)
	}
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &AuditEvent{
		EntityType: schema.EntityOrder,
		EntityID:   "ord-1",
		Type:       AuditEscalationLate,
		Details:    json.RawMessage(`{"state":"preparing"}`),
		Timestamp:  storeBase,
	}
	second := &AuditEvent{
		EntityType: schema.EntityOrder,
		EntityID:   "ord-2",
		Type:       AuditEscalationUrgent,
		Timestamp:  storeBase.Add(time.Minute),
	}
	require.NoError(t, s.AppendAudit(ctx, first))
	require.NoError(t, s.AppendAudit(ctx, second))

	events, err := s.ListAudits(ctx, AuditFilter{EntityType: schema.EntityOrder})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ord-2", events[0].EntityID, "newest first")

	events, err = s.ListAudits(ctx, AuditFilter{EntityID: "ord-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, AuditEscalationLate, events[0].Type)
	assert.JSONEq(t, `{"state":"preparing"}`, string(events[0].Details))

	since := storeBase.Add(30 * time.Second)
	events, err = s.ListAudits(ctx, AuditFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ord-2", events[0].EntityID)
}
