package audit

import (
	"context"
	"time"

	id "payouts/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with financial/regulatory significance.
	// Money movement lands here and requires long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: batch runs, retries, schedule changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key payout actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	Action      string
	PayoutID    id.PayoutID
	OrganizerID id.OrganizerID
	EventID     id.EventID
	Amount      int64
	Currency    string
	TransferID  string
	Reason      string
	// ActorID is the operator who triggered the action; empty for actions
	// driven by an external scheduler.
	ActorID   string
	RequestID string
}

// AuditEvent names every action the payout engine records.
type AuditEvent string

const (
	EventPayoutCreated    AuditEvent = "payout_created"
	EventPayoutPaid       AuditEvent = "payout_paid"
	EventPayoutFailed     AuditEvent = "payout_failed"
	EventPayoutRetried    AuditEvent = "payout_retried"
	EventPayoutCancelled  AuditEvent = "payout_cancelled"
	EventPayoutMigrated   AuditEvent = "payout_migrated"
	EventManualPaid       AuditEvent = "payout_manual_paid"
	EventPayoutRecomputed AuditEvent = "payout_recomputed"
)

// eventCategories maps actions to categories; the map is the source of truth
// so stores never have to trust the category on an inbound event.
var eventCategories = map[AuditEvent]EventCategory{
	EventPayoutCreated:    CategoryCompliance,
	EventPayoutPaid:       CategoryCompliance,
	EventPayoutFailed:     CategoryOperations,
	EventPayoutRetried:    CategoryOperations,
	EventPayoutCancelled:  CategoryCompliance,
	EventPayoutMigrated:   CategoryCompliance,
	EventManualPaid:       CategoryCompliance,
	EventPayoutRecomputed: CategoryCompliance,
}

// Category returns the category for the event, defaulting to operations for
// unknown actions.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists audit events. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher is the write side handed to services.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
