// Package domain defines typed identifiers shared across the payout engine.
//
// Each ID is a distinct uuid-backed type so the compiler rejects accidental
// cross-assignment (passing an OrganizerID where an EventID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "payouts/pkg/domain-errors"
)

type (
	// PayoutID identifies a single disbursement obligation.
	PayoutID uuid.UUID

	// OrganizerID identifies the payee of a payout.
	OrganizerID uuid.UUID

	// EventID identifies the event a payout originates from.
	EventID uuid.UUID
)

func (id PayoutID) String() string    { return uuid.UUID(id).String() }
func (id OrganizerID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string     { return uuid.UUID(id).String() }

func (id PayoutID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OrganizerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's marshaling, so each ID carries its
// own TextMarshaler pair; without these the IDs would JSON-encode as byte
// arrays.

func (id PayoutID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id OrganizerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *PayoutID) UnmarshalText(b []byte) error {
	parsed, err := ParsePayoutID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OrganizerID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrganizerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewPayoutID returns a fresh random payout identifier.
func NewPayoutID() PayoutID { return PayoutID(uuid.New()) }

// ParsePayoutID parses a payout ID from its string form.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParsePayoutID(s string) (PayoutID, error) {
	u, err := parseUUID(s, "payout_id")
	return PayoutID(u), err
}

// ParseOrganizerID parses an organizer ID from its string form.
func ParseOrganizerID(s string) (OrganizerID, error) {
	u, err := parseUUID(s, "organizer_id")
	return OrganizerID(u), err
}

// ParseEventID parses an event ID from its string form.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event_id")
	return EventID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, field+" is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be the nil UUID")
	}
	return u, nil
}
