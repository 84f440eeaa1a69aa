package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

var aggNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func orderIn(state string, age time.Duration) *store.Entity {
	entered := aggNow.Add(-age)
	return &store.Entity{
		Type:           schema.EntityOrder,
		CurrentState:   state,
		StateEnteredAt: entered,
		CreatedAt:      entered,
	}
}

func orderDef(t *testing.T) *workflow.Definition {
	t.Helper()
	def, err := workflow.DefaultRegistry().Get(schema.EntityOrder)
	require.NoError(t, err)
	return def
}

func TestAggregateEmptyCollection(t *testing.T) {
	def := orderDef(t)

	sum := Aggregate(def, nil, aggNow)

	// Every defined state appears with a zero count; no tabs are emitted.
	assert.Len(t, sum.Counts, len(def.States))
	for state, n := range sum.Counts {
		assert.Zero(t, n, state)
	}
	assert.Zero(t, sum.EscalatedCount)
	assert.Empty(t, sum.Tabs)
}

func TestAggregateCountsAndTabs(t *testing.T) {
	def := orderDef(t)
	entities := []*store.Entity{
		orderIn(schema.OrderPaymentConfirmed, 5*time.Minute),
		orderIn(schema.OrderPreparing, 45*time.Minute), // late
		orderIn(schema.OrderPreparing, 10*time.Minute),
		orderIn(schema.OrderReadyForCollection, 2*time.Minute),
		orderIn(schema.OrderOutForDelivery, 8*time.Minute),
		orderIn(schema.OrderCompleted, time.Hour),
	}

	sum := Aggregate(def, entities, aggNow)

	assert.Equal(t, 1, sum.Counts[schema.OrderPaymentConfirmed])
	assert.Equal(t, 2, sum.Counts[schema.OrderPreparing])
	assert.Equal(t, 1, sum.Counts[schema.OrderReadyForCollection])
	assert.Equal(t, 1, sum.Counts[schema.OrderOutForDelivery])
	assert.Equal(t, 1, sum.Counts[schema.OrderCompleted])
	assert.Equal(t, 0, sum.Counts[schema.OrderCancelled])
	assert.Equal(t, 1, sum.EscalatedCount)

	// The merged Ready/Out tab sums both underlying states; empty tabs
	// (cancelled/failed) are dropped.
	byID := make(map[string]Tab, len(sum.Tabs))
	for _, tab := range sum.Tabs {
		byID[tab.ID] = tab
	}
	require.Contains(t, byID, "ready_out")
	assert.Equal(t, 2, byID["ready_out"].Count)
	assert.NotContains(t, byID, "issues")
	assert.Equal(t, 1, byID["new"].Count)
	assert.Equal(t, 2, byID["preparing"].Count)
}

func TestAggregateIsPureAndOrderIndependent(t *testing.T) {
	def := orderDef(t)
	a := orderIn(schema.OrderPreparing, 40*time.Minute)
	b := orderIn(schema.OrderPaymentConfirmed, time.Minute)
	c := orderIn(schema.OrderCompleted, 3*time.Hour)

	first := Aggregate(def, []*store.Entity{a, b, c}, aggNow)
	second := Aggregate(def, []*store.Entity{c, a, b}, aggNow)
	third := Aggregate(def, []*store.Entity{a, b, c}, aggNow)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
}

func TestAnnotateFlagsEntities(t *testing.T) {
	def := orderDef(t)
	entities := []*store.Entity{
		orderIn(schema.OrderPreparing, 45*time.Minute),
		orderIn(schema.OrderPreparing, 10*time.Minute),
	}

	annotated := Annotate(def, entities, aggNow)
	require.Len(t, annotated, 2)
	assert.Equal(t, schema.EscalationLate, annotated[0].Escalation)
	assert.Equal(t, schema.EscalationNone, annotated[1].Escalation)
	assert.Same(t, entities[0], annotated[0].Entity)
}
