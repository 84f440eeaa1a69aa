package aggregate

import (
	"time"

	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

// Annotated pairs an entity with its freshly computed escalation flag.
type Annotated struct {
	*store.Entity
	Escalation schema.EscalationStatus `json:"escalation"`
}

// Tab is one dashboard filter tab. Tabs group adjacent states where the
// definition says so (orders merge ready_for_collection and
// out_for_delivery); the underlying states stay distinct in storage.
type Tab struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	States []string `json:"states"`
	Count  int      `json:"count"`
}

// Summary is the aggregation output consumed by the dashboard.
type Summary struct {
	Counts         map[string]int `json:"counts"`
	EscalatedCount int            `json:"escalated_count"`
	Tabs           []Tab          `json:"tabs"`
}

// Annotate computes the escalation flag for each entity at the given
// instant. Pure; never caches across calls because "now" advances.
func Annotate(def *workflow.Definition, entities []*store.Entity, now time.Time) []Annotated {
	annotated := make([]Annotated, len(entities))
	for i, e := range entities {
		annotated[i] = Annotated{
			Entity:     e,
			Escalation: workflow.EvaluateEscalation(def, e, now),
		}
	}
	return annotated
}

// Aggregate groups a fetched collection by state and escalation flag.
// Pure and order-independent. Counts cover every defined state, zeroes
// included; tabs list only non-empty groups, so an empty collection
// yields all-zero counts and no tabs.
func Aggregate(def *workflow.Definition, entities []*store.Entity, now time.Time) Summary {
	counts := make(map[string]int, len(def.States))
	for state := range def.States {
		counts[state] = 0
	}

	escalated := 0
	for _, e := range entities {
		counts[e.CurrentState]++
		if workflow.EvaluateEscalation(def, e, now) != schema.EscalationNone {
			escalated++
		}
	}

	var tabs []Tab
	for _, spec := range def.Tabs {
		tab := Tab{ID: spec.ID, Label: spec.Label, States: spec.States}
		for _, state := range spec.States {
			tab.Count += counts[state]
		}
		if tab.Count > 0 {
			tabs = append(tabs, tab)
		}
	}

	return Summary{
		Counts:         counts,
		EscalatedCount: escalated,
		Tabs:           tabs,
	}
}
