package models

// Status is the lifecycle state of a payout.
type Status string

const (
	// StatusPending marks a payout waiting for disbursement.
	StatusPending Status = "pending"

	// StatusProcessing marks a payout claimed by a transfer attempt in flight.
	// This substate guarantees at most one transfer per payout under
	// concurrent batch and retry invocations. It is never serialized to API
	// responses: list and stats output reports it as pending.
	StatusProcessing Status = "processing"

	// StatusPaid is terminal: the money moved (or a manual transfer was
	// confirmed by an operator).
	StatusPaid Status = "paid"

	// StatusFailed marks a transfer that was attempted and rejected by the
	// processor. Retryable back to pending.
	StatusFailed Status = "failed"

	// StatusCancelled is terminal and administrative. Only unclaimed pending
	// payouts can be cancelled.
	StatusCancelled Status = "cancelled"
)

// transitions is the single source of truth for the payout state machine.
// Anything not listed here is an invalid transition.
var transitions = map[Status][]Status{
	StatusPending: {
		StatusProcessing, // claim by the disbursement executor
		StatusPaid,       // manual confirmation only
		StatusCancelled,
	},
	StatusProcessing: {
		StatusPaid,
		StatusFailed,
		StatusPending, // claim released: transfer could not be issued
	},
	StatusFailed: {
		StatusPending, // operator retry
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Public returns the externally visible status. The processing claim substate
// renders as pending everywhere outside the engine.
func (s Status) Public() Status {
	if s == StatusProcessing {
		return StatusPending
	}
	return s
}

// Method is how a payout gets disbursed.
type Method string

const (
	// MethodStripe disburses automatically through the processor's connected
	// account transfer API.
	MethodStripe Method = "stripe"

	// MethodManual records an obligation settled outside the platform (bank
	// transfer, cheque) and confirmed by an operator.
	MethodManual Method = "manual"
)

// IsValid reports whether m is a known method value.
func (m Method) IsValid() bool {
	return m == MethodStripe || m == MethodManual
}
