package workflow

import (
	"time"

	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/pkg/schema"
)

// EvaluateEscalation computes an entity's derived escalation flag at the
// given instant. Pure and idempotent; the result is never persisted
// because "now" advances continuously — callers recompute on every read.
//
// Time-driven definitions (orders) mark a state late once strictly more
// than the threshold has elapsed since the state was entered. Priority-
// mirroring definitions (inventory alerts, staff feedback) derive the
// flag from the operator-assigned priority instead.
func EvaluateEscalation(def *Definition, e *store.Entity, now time.Time) schema.EscalationStatus {
	if def.MirrorPriority {
		switch e.Priority {
		case schema.PriorityUrgent:
			return schema.EscalationUrgent
		case schema.PriorityHigh:
			return schema.EscalationLate
		default:
			return schema.EscalationNone
		}
	}

	threshold, ok := def.Escalation[e.CurrentState]
	if !ok {
		return schema.EscalationNone
	}

	entered := e.StateEnteredAt
	if entered.IsZero() {
		// Backfilled legacy rows may lack a state-entry timestamp.
		entered = e.CreatedAt
	}
	if entered.IsZero() {
		return schema.EscalationNone
	}

	if now.Sub(entered) > threshold {
		return schema.EscalationLate
	}
	return schema.EscalationNone
}
