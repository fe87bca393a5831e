// Package executor performs the actual disbursement of a payout: the external
// transfer for stripe payouts, or the operator confirmation for manual ones.
//
// The transfer path is idempotent under concurrency. Before anything leaves
// the building the executor claims the payout by moving it pending to
// processing inside a single atomic store operation; a claim that finds the
// record no longer pending aborts without transferring, so at most one
// external transfer is ever issued per payout.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"payouts/internal/payout/models"
	"payouts/internal/payout/ports"
	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
	"payouts/pkg/platform/audit"
	"payouts/pkg/platform/sentinel"
	"payouts/pkg/requestcontext"
)

type Executor struct {
	store          ports.PayoutStore
	transfers      ports.TransferClient
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(e *Executor) { e.auditPublisher = publisher }
}

func New(store ports.PayoutStore, transfers ports.TransferClient, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("payout store is required")
	}
	if transfers == nil {
		return nil, fmt.Errorf("transfer client is required")
	}
	e := &Executor{store: store, transfers: transfers}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Transfer disburses one stripe payout: claim, call the processor, record the
// outcome. Validation failures (not due, wrong method, no account, lost
// claim) reject synchronously without mutating state. A processor rejection
// is recorded as failed with the processor's reason. An infrastructure error
// before the transfer can even be issued releases the claim back to pending.
func (e *Executor) Transfer(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	now := requestcontext.Now(ctx)

	claimed, err := e.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanClaim(now) },
		func(p *models.Payout) { p.ApplyClaim(now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "claim payout")
	}

	transferID, transferErr := e.transfers.CreateTransfer(ctx,
		claimed.Organizer.PayableAccountID, claimed.Amount, claimed.Currency)

	if transferErr != nil {
		// A transfer the processor never received is not a payout failure:
		// release the claim so the record goes back to pending instead of
		// rotting in the processing substate.
		if isNotIssued(transferErr) {
			if relErr := e.Release(ctx, payoutID); relErr != nil && e.logger != nil {
				e.logger.ErrorContext(ctx, "failed to release claim after aborted transfer",
					"payout_id", payoutID, "error", relErr)
			}
			return nil, dErrors.Wrap(transferErr, dErrors.CodeInternal, "transfer could not be issued")
		}
		return e.recordFailure(ctx, payoutID, claimed, transferErr)
	}
	return e.recordSuccess(ctx, payoutID, transferID)
}

func (e *Executor) recordSuccess(ctx context.Context, payoutID id.PayoutID, transferID string) (*models.Payout, error) {
	now := requestcontext.Now(ctx)
	paid, err := e.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanSettle(transferID) },
		func(p *models.Payout) { p.ApplySettle(transferID, now) },
	)
	if err != nil {
		// The money moved but the record did not. Surface loudly; the
		// transfer id in the log is the recovery handle.
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "transfer succeeded but settle failed",
				"payout_id", payoutID, "transfer_id", transferID, "error", err)
		}
		return nil, wrapStoreErr(err, "settle payout")
	}

	ports.LogAudit(ctx, e.logger, e.auditPublisher, paidEvent(paid),
		"payout_id", paid.ID, "transfer_id", transferID, "amount", paid.Amount)
	return paid, nil
}

func (e *Executor) recordFailure(ctx context.Context, payoutID id.PayoutID, claimed *models.Payout, transferErr error) (*models.Payout, error) {
	now := requestcontext.Now(ctx)
	reason := transferErr.Error()

	failed, err := e.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanFail() },
		func(p *models.Payout) { p.ApplyFail(reason, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "record payout failure")
	}

	ports.LogAudit(ctx, e.logger, e.auditPublisher, audit.Event{
		Action:      string(audit.EventPayoutFailed),
		PayoutID:    failed.ID,
		OrganizerID: failed.Organizer.ID,
		Amount:      failed.Amount,
		Currency:    failed.Currency,
		Reason:      reason,
	}, "payout_id", failed.ID, "reason", reason)

	return failed, dErrors.Wrap(transferErr, dErrors.CodeTransferFailed,
		"transfer rejected: "+reason)
}

// Release reverts a claim that could not proceed to a transfer attempt, e.g.
// when batch shutdown interrupts before the processor call. No-op guarded by
// the state machine: only processing payouts can be released.
func (e *Executor) Release(ctx context.Context, payoutID id.PayoutID) error {
	now := requestcontext.Now(ctx)
	_, err := e.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanRelease() },
		func(p *models.Payout) { p.ApplyRelease(now) },
	)
	if err != nil {
		return wrapStoreErr(err, "release payout claim")
	}
	return nil
}

// MarkManualPaid records an operator's confirmation that a manual payout was
// settled outside the platform. No external call is made.
func (e *Executor) MarkManualPaid(ctx context.Context, payoutID id.PayoutID, notes string) (*models.Payout, error) {
	now := requestcontext.Now(ctx)
	paid, err := e.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanMarkManualPaid() },
		func(p *models.Payout) { p.ApplyMarkManualPaid(notes, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "mark manual payout paid")
	}

	ports.LogAudit(ctx, e.logger, e.auditPublisher, audit.Event{
		Action:      string(audit.EventManualPaid),
		PayoutID:    paid.ID,
		OrganizerID: paid.Organizer.ID,
		Amount:      paid.Amount,
		Currency:    paid.Currency,
		Reason:      notes,
	}, "payout_id", paid.ID, "amount", paid.Amount)
	return paid, nil
}

func paidEvent(p *models.Payout) audit.Event {
	ev := audit.Event{
		Action:      string(audit.EventPayoutPaid),
		PayoutID:    p.ID,
		OrganizerID: p.Organizer.ID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		TransferID:  p.ExternalTransferID,
	}
	if p.Event != nil {
		ev.EventID = p.Event.ID
	}
	return ev
}

// isNotIssued distinguishes "the processor never saw the request" from a
// processor rejection. Only the former is safe to retry implicitly.
func isNotIssued(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sentinel.ErrUnavailable)
}

func wrapStoreErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "payout not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
}
