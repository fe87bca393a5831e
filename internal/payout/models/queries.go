package models

import (
	"time"

	id "payouts/pkg/domain"
)

// Filter narrows a payout listing. Zero values mean "no constraint".
type Filter struct {
	// Search matches organizer name or email, case-insensitive substring.
	Search string
	Status Status
	Method Method
}

// Page is offset/limit pagination. Limit 0 falls back to the store default.
type Page struct {
	Offset int
	Limit  int
}

// Stats is the read model behind the admin dashboard header.
type Stats struct {
	Total         int   `json:"total"`
	Pending       int   `json:"pending"`
	Paid          int   `json:"paid"`
	Failed        int   `json:"failed"`
	Cancelled     int   `json:"cancelled"`
	PendingStripe int   `json:"pending_stripe"`
	PendingManual int   `json:"pending_manual"`
	PendingAmount int64 `json:"pending_amount"`
	PaidAmount    int64 `json:"paid_amount"`
}

// EventRevenue is what the event/ticket collaborator supplies for payout
// creation: finalized gross confirmed ticket revenue plus the event snapshot.
type EventRevenue struct {
	Event       EventRef
	OrganizerID id.OrganizerID
	Gross       int64
	Currency    string
	FinalizedAt time.Time
}
