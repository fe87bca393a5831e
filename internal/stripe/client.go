// Package stripe implements the transfer client against the Stripe Connect
// transfers API. The engine only needs CreateTransfer; everything else about
// the processor stays behind this package.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"payouts/pkg/platform/sentinel"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	defaultTimeout = 15 * time.Second
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe api key is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type transferResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateTransfer moves funds to a connected account and returns the transfer
// ID. Each call carries a fresh idempotency key; retry semantics live with
// the caller, which claims the payout before issuing the transfer.
func (c *Client) CreateTransfer(ctx context.Context, accountID string, amount int64, currency string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("destination account is required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transfers", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request never produced a processor decision.
		return "", fmt.Errorf("stripe transfer request: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read stripe response: %w: %w", sentinel.ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("stripe unavailable, status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("stripe rejected transfer (%s): %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return "", fmt.Errorf("stripe rejected transfer, status %d", resp.StatusCode)
	}

	var transfer transferResponse
	if err := json.Unmarshal(body, &transfer); err != nil {
		return "", fmt.Errorf("decode stripe response: %w", err)
	}
	if transfer.ID == "" {
		return "", fmt.Errorf("stripe response missing transfer id")
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "stripe transfer created",
			"transfer_id", transfer.ID, "amount", amount, "currency", currency)
	}
	return transfer.ID, nil
}
