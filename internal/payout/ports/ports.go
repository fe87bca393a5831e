// Package ports defines shared interfaces for the payout module.
// Interfaces live here when consumed by multiple packages to avoid duplication.
package ports

import (
	"context"
	"log/slog"
	"time"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
	"payouts/pkg/platform/audit"
	"payouts/pkg/requestcontext"
)

// PayoutStore is the single source of truth for payout records.
type PayoutStore interface {
	// Create persists a new payout, enforcing one non-cancelled payout per
	// (organizer, event) pair. Returns sentinel.ErrAlreadyUsed on duplicate.
	Create(ctx context.Context, payout *models.Payout) error

	// Get retrieves a payout by ID. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error)

	// List returns a filtered page of payouts, newest first, plus the total
	// count matching the filter.
	List(ctx context.Context, filter models.Filter, page models.Page) ([]*models.Payout, int, error)

	// ListDue returns stripe/pending payouts scheduled at or before now whose
	// organizer has a linked payable account. A non-nil eventID narrows the
	// result to one event.
	ListDue(ctx context.Context, now time.Time, eventID *id.EventID) ([]*models.Payout, error)

	// ListByOrganizer returns an organizer's payouts, optionally narrowed by
	// status and method (empty values match everything).
	ListByOrganizer(ctx context.Context, organizerID id.OrganizerID, status models.Status, method models.Method) ([]*models.Payout, error)

	// ListByEvent returns every payout tied to one event.
	ListByEvent(ctx context.Context, eventID id.EventID) ([]*models.Payout, error)

	// Stats aggregates counts and sums at query time.
	Stats(ctx context.Context) (*models.Stats, error)

	// Execute atomically runs validate then mutate on one payout while
	// holding the record's lock (mutex in memory, FOR UPDATE in Postgres).
	// A validation error aborts the call and leaves the record unchanged.
	// Every state transition in the engine goes through here; this is what
	// makes the pending-to-processing claim a compare-and-swap.
	Execute(ctx context.Context, payoutID id.PayoutID,
		validate func(*models.Payout) error,
		mutate func(*models.Payout)) (*models.Payout, error)
}

// TransferClient is the payment-processor collaborator. The engine treats it
// as a black box returning a transfer ID or an error.
type TransferClient interface {
	CreateTransfer(ctx context.Context, accountID string, amount int64, currency string) (transferID string, err error)
}

// OrganizerDirectory supplies payable-account linkage for an organizer.
type OrganizerDirectory interface {
	GetOrganizer(ctx context.Context, organizerID id.OrganizerID) (*models.OrganizerRef, error)
}

// RevenueSource supplies finalized gross ticket revenue per event.
type RevenueSource interface {
	EventRevenue(ctx context.Context, eventID id.EventID) (*models.EventRevenue, error)
}

// StatsCache is an optional read-model cache in front of PayoutStore.Stats.
// Get returns (nil, nil) on a miss.
type StatsCache interface {
	Get(ctx context.Context) (*models.Stats, error)
	Set(ctx context.Context, stats *models.Stats) error
	Invalidate(ctx context.Context) error
}

// AuditPublisher emits audit events for money-moving operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit-relevant action and emits it to the publisher if one
// is configured. Shared by the executor and orchestrator.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event.Action, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
