package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/pkg/schema"
)

func TestDefaultRegistryCoversAllEntityTypes(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, schema.EntityTypes, reg.EntityTypes())

	for _, et := range schema.EntityTypes {
		def, err := reg.Get(et)
		require.NoError(t, err)
		assert.Equal(t, et, def.EntityType)
		assert.True(t, def.HasState(def.InitialState), "%s initial state", et)
	}
}

func TestRegistryGetUnknownType(t *testing.T) {
	reg, err := NewRegistry(DefaultSpecs()[:1])
	require.NoError(t, err)

	_, err = reg.Get(schema.EntityStaffFeedback)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestRegistryOverlayReplacesBuiltin(t *testing.T) {
	overlay := schema.DefinitionSpec{
		EntityType:     schema.EntityCustomerFeedback,
		States:         []string{"triage", "done"},
		InitialState:   "triage",
		TerminalStates: []string{"done"},
		Transitions: map[string][]string{
			"triage": {"done"},
			"done":   {},
		},
	}

	reg, err := NewRegistry(append(DefaultSpecs(), overlay))
	require.NoError(t, err)

	def, err := reg.Get(schema.EntityCustomerFeedback)
	require.NoError(t, err)
	assert.Equal(t, "triage", def.InitialState)
	assert.False(t, def.HasState(schema.FeedbackPendingReview))
}

func TestNewRegistryRejectsBadSpecs(t *testing.T) {
	_, err := NewRegistry([]schema.DefinitionSpec{{
		EntityType:   "delivery_route",
		States:       []string{"a"},
		InitialState: "a",
	}})
	require.Error(t, err)

	_, err = NewRegistry([]schema.DefinitionSpec{{
		EntityType:   schema.EntityOrder,
		States:       []string{"a"},
		InitialState: "missing",
	}})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCompileStripsTerminalOutgoingEdges(t *testing.T) {
	def := Compile(schema.DefinitionSpec{
		EntityType:     schema.EntityOrder,
		States:         []string{"open", "closed"},
		InitialState:   "open",
		TerminalStates: []string{"closed"},
		Transitions: map[string][]string{
			"open":   {"closed"},
			"closed": {"open"}, // must not survive compilation
		},
	})

	assert.Empty(t, def.AllowedNext("closed"))
	assert.ElementsMatch(t, []string{"closed"}, def.AllowedNext("open"))
}

func TestCompileEscalationMinutes(t *testing.T) {
	def := mustGet(t, DefaultRegistry(), schema.EntityOrder)
	assert.Equal(t, 15*time.Minute, def.Escalation[schema.OrderPaymentConfirmed])
	assert.Equal(t, 30*time.Minute, def.Escalation[schema.OrderPreparing])
	_, ok := def.Escalation[schema.OrderReadyForCollection]
	assert.False(t, ok)
}
