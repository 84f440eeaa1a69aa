package schema

// EntityType identifies which workflow definition applies to a record.
type EntityType string

const (
	EntityOrder            EntityType = "order"
	EntityInventoryAlert   EntityType = "inventory_alert"
	EntityCustomerFeedback EntityType = "customer_feedback"
	EntityStaffFeedback    EntityType = "staff_feedback"
)

// EntityTypes lists all known entity types in a stable order.
var EntityTypes = []EntityType{
	EntityOrder,
	EntityInventoryAlert,
	EntityCustomerFeedback,
	EntityStaffFeedback,
}

// ParseEntityType validates a raw entity type string.
func ParseEntityType(raw string) (EntityType, error) {
	et := EntityType(raw)
	for _, known := range EntityTypes {
		if et == known {
			return et, nil
		}
	}
	return "", NewErrorf(ErrCodeValidation, "unknown entity type %q", raw)
}

// Priority is the operator-assigned urgency carried by inventory alerts
// and staff feedback. Orders and customer feedback have no priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// EscalationStatus is a derived flag, never persisted. It is recomputed
// from elapsed time (orders) or the priority field (alerts, staff
// feedback) on every read.
type EscalationStatus string

const (
	EscalationNone   EscalationStatus = "none"
	EscalationLate   EscalationStatus = "late"
	EscalationUrgent EscalationStatus = "urgent"
)

// Order workflow states.
const (
	OrderPaymentConfirmed   = "payment_confirmed"
	OrderPreparing          = "preparing"
	OrderReadyForCollection = "ready_for_collection"
	OrderOutForDelivery     = "out_for_delivery"
	OrderCompleted          = "completed"
	OrderCancelled          = "cancelled"
	OrderFailedDelivery     = "failed_delivery"
)

// Inventory alert workflow states.
const (
	AlertPending      = "pending"
	AlertAcknowledged = "acknowledged"
	AlertInProgress   = "in_progress"
	AlertResolved     = "resolved"
)

// Customer feedback workflow states.
const (
	FeedbackPendingReview     = "pending_review"
	FeedbackReviewed          = "reviewed"
	FeedbackRequiresAttention = "requires_attention"
)

// Staff feedback workflow states.
const (
	StaffFeedbackPendingReview = "pending_review"
	StaffFeedbackUnderReview   = "under_review"
	StaffFeedbackInProgress    = "in_progress"
	StaffFeedbackResolved      = "resolved"
	StaffFeedbackClosed        = "closed"
)

// StaffFeedbackSafetyConcern is the feedback category that forces
// priority=urgent at creation time.
const StaffFeedbackSafetyConcern = "safety_concern"

// Payload carries transition- or creation-scoped fields that are not part
// of the state graph itself (e.g. resolution_notes when resolving an alert).
type Payload map[string]any

// StringField returns the named payload field as a string, or "" when the
// field is absent or not a string.
func (p Payload) StringField(name string) string {
	if p == nil {
		return ""
	}
	s, _ := p[name].(string)
	return s
}
