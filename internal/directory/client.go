// Package directory is the HTTP client for the events platform, which owns
// organizers, events, and ticket sales. The payout engine pulls organizer
// payable-account linkage and finalized event revenue through it.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
	"payouts/pkg/platform/sentinel"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type organizerPayload struct {
	ID                id.OrganizerID `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	HasPayableAccount bool           `json:"has_payable_account"`
	PayableAccountID  string         `json:"payable_account_id"`
}

type revenuePayload struct {
	Event struct {
		ID              id.EventID `json:"id"`
		Title           string     `json:"title"`
		StartsAt        time.Time  `json:"starts_at"`
		EndsAt          time.Time  `json:"ends_at"`
		TicketPriceUnit int64      `json:"ticket_price_unit"`
	} `json:"event"`
	OrganizerID id.OrganizerID `json:"organizer_id"`
	Gross       int64          `json:"gross_revenue"`
	Currency    string         `json:"currency"`
	FinalizedAt time.Time      `json:"finalized_at"`
}

// GetOrganizer implements ports.OrganizerDirectory.
func (c *Client) GetOrganizer(ctx context.Context, organizerID id.OrganizerID) (*models.OrganizerRef, error) {
	var payload organizerPayload
	if err := c.get(ctx, "/internal/organizers/"+organizerID.String(), &payload); err != nil {
		return nil, err
	}
	return &models.OrganizerRef{
		ID:                payload.ID,
		Name:              payload.Name,
		Email:             payload.Email,
		HasPayableAccount: payload.HasPayableAccount,
		PayableAccountID:  payload.PayableAccountID,
	}, nil
}

// EventRevenue implements ports.RevenueSource.
func (c *Client) EventRevenue(ctx context.Context, eventID id.EventID) (*models.EventRevenue, error) {
	var payload revenuePayload
	if err := c.get(ctx, "/internal/events/"+eventID.String()+"/revenue", &payload); err != nil {
		return nil, err
	}
	return &models.EventRevenue{
		Event: models.EventRef{
			ID:              payload.Event.ID,
			Title:           payload.Event.Title,
			StartsAt:        payload.Event.StartsAt,
			EndsAt:          payload.Event.EndsAt,
			TicketPriceUnit: payload.Event.TicketPriceUnit,
		},
		OrganizerID: payload.OrganizerID,
		Gross:       payload.Gross,
		Currency:    payload.Currency,
		FinalizedAt: payload.FinalizedAt,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory request %s: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return sentinel.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("directory %s returned status %d: %w", path, resp.StatusCode, sentinel.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
