package handler

import (
	"time"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
)

// PayoutResponse is the HTTP representation of one payout record.
type PayoutResponse struct {
	ID                 id.PayoutID        `json:"id"`
	Amount             int64              `json:"amount"`
	FeeAmount          int64              `json:"fee_amount"`
	FeeRateBps         int32              `json:"fee_rate_bps"`
	Currency           string             `json:"currency"`
	Status             string             `json:"status"`
	Method             string             `json:"payout_method"`
	ScheduledFor       time.Time          `json:"scheduled_for"`
	ProcessedAt        *time.Time         `json:"processed_at,omitempty"`
	FailureReason      string             `json:"failure_reason,omitempty"`
	ExternalTransferID string             `json:"external_transfer_id,omitempty"`
	ManualNotes        string             `json:"manual_notes,omitempty"`
	Organizer          OrganizerResponse  `json:"organizer"`
	Event              *EventRefResponse  `json:"event,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// OrganizerResponse is the payee snapshot on a payout. The payable account id
// stays internal.
type OrganizerResponse struct {
	ID                id.OrganizerID `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	HasPayableAccount bool           `json:"has_payable_account"`
}

// EventRefResponse is the originating event snapshot on a payout.
type EventRefResponse struct {
	ID       id.EventID `json:"id"`
	Title    string     `json:"title"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   time.Time  `json:"ends_at"`
}

// ListResponse is the paged admin listing.
type ListResponse struct {
	Payouts []*PayoutResponse `json:"payouts"`
	Total   int               `json:"total"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
}

// MigrateResponse reports how many payouts a migration flipped to stripe.
type MigrateResponse struct {
	Migrated int `json:"migrated"`
}

// RetryFailedResponse carries the payout state when a retried transfer was
// declined again.
type RetryFailedResponse struct {
	Payout *PayoutResponse `json:"payout"`
	Error  string          `json:"error"`
}

// NewPayoutResponse converts a domain payout to its HTTP representation. The
// claim substate renders with its public status.
func NewPayoutResponse(p *models.Payout) *PayoutResponse {
	resp := &PayoutResponse{
		ID:                 p.ID,
		Amount:             p.Amount,
		FeeAmount:          p.FeeAmount,
		FeeRateBps:         p.FeeRateBps,
		Currency:           p.Currency,
		Status:             string(p.Status.Public()),
		Method:             string(p.Method),
		ScheduledFor:       p.ScheduledFor,
		ProcessedAt:        p.ProcessedAt,
		FailureReason:      p.FailureReason,
		ExternalTransferID: p.ExternalTransferID,
		ManualNotes:        p.ManualNotes,
		Organizer: OrganizerResponse{
			ID:                p.Organizer.ID,
			Name:              p.Organizer.Name,
			Email:             p.Organizer.Email,
			HasPayableAccount: p.Organizer.HasPayableAccount,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Event != nil {
		resp.Event = &EventRefResponse{
			ID:       p.Event.ID,
			Title:    p.Event.Title,
			StartsAt: p.Event.StartsAt,
			EndsAt:   p.Event.EndsAt,
		}
	}
	return resp
}

// NewListResponse converts a listing page.
func NewListResponse(payouts []*models.Payout, total int, page models.Page) *ListResponse {
	resp := &ListResponse{
		Payouts: make([]*PayoutResponse, 0, len(payouts)),
		Total:   total,
		Offset:  page.Offset,
		Limit:   page.Limit,
	}
	for _, p := range payouts {
		resp.Payouts = append(resp.Payouts, NewPayoutResponse(p))
	}
	return resp
}

// NewRetryFailedResponse reports a retry whose new transfer attempt failed.
func NewRetryFailedResponse(p *models.Payout) *RetryFailedResponse {
	return &RetryFailedResponse{
		Payout: NewPayoutResponse(p),
		Error:  p.FailureReason,
	}
}
