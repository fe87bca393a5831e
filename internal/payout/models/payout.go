package models

import (
	"time"

	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
)

// OrganizerRef is the payee snapshot carried on a payout. The organizer
// directory owns the canonical record; the payout stores what it needs to
// render the admin list and to route a transfer.
type OrganizerRef struct {
	ID                id.OrganizerID `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	HasPayableAccount bool           `json:"has_payable_account"`
	PayableAccountID  string         `json:"payable_account_id,omitempty"`
}

// EventRef is the originating event snapshot. Nil on payouts not tied to a
// single event (e.g. consolidated marketplace settlements).
type EventRef struct {
	ID              id.EventID `json:"id"`
	Title           string     `json:"title"`
	StartsAt        time.Time  `json:"starts_at"`
	EndsAt          time.Time  `json:"ends_at"`
	TicketPriceUnit int64      `json:"ticket_price_unit"`
}

// Payout is one disbursement obligation: the net ticket revenue owed to an
// organizer for one event.
//
// Invariants:
//   - Amount is non-negative, in minor units, fixed at creation; the service
//     fee rate used is recorded in FeeRateBps for audit
//   - Exactly one non-cancelled payout exists per (organizer, event) pair
//     (enforced by the store)
//   - A stripe payout reaches paid only with a non-empty ExternalTransferID
//   - A manual payout reaches paid only through operator confirmation
//   - ScheduledFor is never before the owning event's end date
//   - ProcessedAt is set exactly once, on the transition to paid
//   - CreatedAt is immutable after construction
type Payout struct {
	ID                 id.PayoutID  `json:"id"`
	Amount             int64        `json:"amount"`
	FeeAmount          int64        `json:"fee_amount"`
	FeeRateBps         int32        `json:"fee_rate_bps"`
	Currency           string       `json:"currency"`
	Status             Status       `json:"status"`
	Method             Method       `json:"payout_method"`
	ScheduledFor       time.Time    `json:"scheduled_for"`
	ProcessedAt        *time.Time   `json:"processed_at,omitempty"`
	FailureReason      string       `json:"failure_reason,omitempty"`
	ExternalTransferID string       `json:"external_transfer_id,omitempty"`
	ManualNotes        string       `json:"manual_notes,omitempty"`
	Organizer          OrganizerRef `json:"organizer"`
	Event              *EventRef    `json:"event,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// NewPayout constructs a pending payout. Scheduling is clamped to the event's
// end date so nothing becomes due while the event is still running.
func NewPayout(payoutID id.PayoutID, organizer OrganizerRef, event *EventRef, amount, fee int64, rateBps int32, currency string, now time.Time) (*Payout, error) {
	if amount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payout amount must not be negative")
	}
	if currency == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payout currency is required")
	}
	method := MethodManual
	if organizer.HasPayableAccount {
		method = MethodStripe
	}
	scheduledFor := now
	if event != nil && event.EndsAt.After(scheduledFor) {
		scheduledFor = event.EndsAt
	}
	return &Payout{
		ID:           payoutID,
		Amount:       amount,
		FeeAmount:    fee,
		FeeRateBps:   rateBps,
		Currency:     currency,
		Status:       StatusPending,
		Method:       method,
		ScheduledFor: scheduledFor,
		Organizer:    organizer,
		Event:        event,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsDue reports whether the payout has reached its scheduled time.
func (p *Payout) IsDue(now time.Time) bool {
	return !p.ScheduledFor.After(now)
}

func (p *Payout) canTransition(target Status) error {
	if !p.Status.CanTransitionTo(target) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"payout cannot move from "+string(p.Status)+" to "+string(target))
	}
	return nil
}

// CanClaim checks that the payout may be claimed for an automatic transfer.
// Use with ApplyClaim inside the store's Execute callback so the check and the
// mutation happen under one lock.
func (p *Payout) CanClaim(now time.Time) error {
	if p.Status != StatusPending {
		if p.Status == StatusProcessing {
			return dErrors.New(dErrors.CodeAlreadyProcessing, "payout is already being processed")
		}
		return p.canTransition(StatusProcessing)
	}
	if p.Method != MethodStripe {
		return dErrors.New(dErrors.CodeInvalidTransition, "only stripe payouts can be processed automatically")
	}
	if !p.IsDue(now) {
		return dErrors.New(dErrors.CodeNotDue, "payout is not due until "+p.ScheduledFor.Format(time.RFC3339))
	}
	if !p.Organizer.HasPayableAccount || p.Organizer.PayableAccountID == "" {
		return dErrors.New(dErrors.CodeNoPayableAccount, "organizer has no linked payable account")
	}
	return nil
}

// ApplyClaim moves the payout into the processing substate.
func (p *Payout) ApplyClaim(now time.Time) {
	p.Status = StatusProcessing
	p.UpdatedAt = now
}

// CanSettle checks that a claimed payout may record a successful transfer.
func (p *Payout) CanSettle(transferID string) error {
	if err := p.canTransition(StatusPaid); err != nil {
		return err
	}
	if p.Method == MethodStripe && transferID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "stripe payout requires an external transfer id")
	}
	return nil
}

// ApplySettle records a successful automatic transfer.
func (p *Payout) ApplySettle(transferID string, now time.Time) {
	p.Status = StatusPaid
	p.ExternalTransferID = transferID
	p.FailureReason = ""
	p.ProcessedAt = &now
	p.UpdatedAt = now
}

// CanFail checks that a claimed payout may record a processor failure.
func (p *Payout) CanFail() error {
	return p.canTransition(StatusFailed)
}

// ApplyFail records the processor error. Amount and method stay untouched so
// a retry re-attempts the identical obligation.
func (p *Payout) ApplyFail(reason string, now time.Time) {
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
}

// CanRelease checks that a claim may be reverted to pending. Used when the
// transfer could not even be issued, so the payout must not rot in the
// processing substate.
func (p *Payout) CanRelease() error {
	if p.Status != StatusProcessing {
		return dErrors.New(dErrors.CodeInvalidTransition, "only a claimed payout can be released")
	}
	return nil
}

// ApplyRelease reverts a claim back to pending.
func (p *Payout) ApplyRelease(now time.Time) {
	p.Status = StatusPending
	p.UpdatedAt = now
}

// CanMarkManualPaid checks the operator confirmation path.
func (p *Payout) CanMarkManualPaid() error {
	if p.Method != MethodManual {
		return dErrors.New(dErrors.CodeInvalidTransition, "only manual payouts can be confirmed by an operator")
	}
	if p.Status != StatusPending {
		return p.canTransition(StatusPaid)
	}
	return nil
}

// ApplyMarkManualPaid records the operator confirmation.
func (p *Payout) ApplyMarkManualPaid(notes string, now time.Time) {
	p.Status = StatusPaid
	p.ManualNotes = notes
	p.ProcessedAt = &now
	p.UpdatedAt = now
}

// CanRetry checks that a failed stripe payout may re-enter the queue.
func (p *Payout) CanRetry() error {
	if p.Method != MethodStripe {
		return dErrors.New(dErrors.CodeInvalidTransition, "only stripe payouts are retryable")
	}
	return p.canTransition(StatusPending)
}

// ApplyRetry re-queues a failed payout. ScheduledFor and Amount are untouched.
func (p *Payout) ApplyRetry(now time.Time) {
	p.Status = StatusPending
	p.FailureReason = ""
	p.UpdatedAt = now
}

// CanCancel checks the administrative cancellation path. A claimed payout
// cannot be cancelled: once the transfer is issued there is no way to recall
// it from this side.
func (p *Payout) CanCancel() error {
	return p.canTransition(StatusCancelled)
}

// ApplyCancel cancels an unclaimed pending payout.
func (p *Payout) ApplyCancel(now time.Time) {
	p.Status = StatusCancelled
	p.UpdatedAt = now
}

// CanMigrateToStripe checks the manual-to-automatic migration. Legal only
// while pending, and only once the organizer has a linked account.
func (p *Payout) CanMigrateToStripe() error {
	if p.Method != MethodManual {
		return dErrors.New(dErrors.CodeInvalidTransition, "payout is already automatic")
	}
	if p.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidTransition, "only pending payouts can be migrated")
	}
	return nil
}

// ApplyMigrateToStripe flips the method, refreshing the organizer snapshot so
// the payable account id is available at transfer time. Status and schedule
// stay unchanged.
func (p *Payout) ApplyMigrateToStripe(organizer OrganizerRef, now time.Time) {
	p.Method = MethodStripe
	p.Organizer = organizer
	p.UpdatedAt = now
}

// ApplyRecomputedAmount replaces the obligation after a revenue correction.
// Only pending payouts qualify; callers validate with CanRecomputeAmount.
func (p *Payout) ApplyRecomputedAmount(amount, fee int64, rateBps int32, now time.Time) {
	p.Amount = amount
	p.FeeAmount = fee
	p.FeeRateBps = rateBps
	p.UpdatedAt = now
}

// CanRecomputeAmount checks the explicit recompute-and-replace path.
func (p *Payout) CanRecomputeAmount() error {
	if p.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidTransition, "only pending payouts can be recomputed")
	}
	return nil
}
