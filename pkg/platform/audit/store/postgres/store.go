// Package postgres implements the audit store using the transactional outbox
// pattern. Events are written to the outbox table and published to Kafka by
// the relay worker; Kafka is the source of truth for downstream consumers.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "payouts/pkg/platform/audit"
	txcontext "payouts/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins the caller's transaction when one is in the context, so a
// payout state change and its audit event commit atomically.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
// Field names match audit.Event for proper deserialization by consumers.
type outboxPayload struct {
	ID          string `json:"ID"`
	Category    string `json:"Category"`
	Timestamp   string `json:"Timestamp"`
	Action      string `json:"Action"`
	PayoutID    string `json:"PayoutID,omitempty"`
	OrganizerID string `json:"OrganizerID,omitempty"`
	EventID     string `json:"EventID,omitempty"`
	Amount      int64  `json:"Amount,omitempty"`
	Currency    string `json:"Currency,omitempty"`
	TransferID  string `json:"TransferID,omitempty"`
	Reason      string `json:"Reason,omitempty"`
	ActorID     string `json:"ActorID,omitempty"`
	RequestID   string `json:"RequestID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action - eventCategories map is the source of truth
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:         eventID.String(),
		Category:   string(category),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		Action:     event.Action,
		Amount:     event.Amount,
		Currency:   event.Currency,
		TransferID: event.TransferID,
		Reason:     event.Reason,
		ActorID:    event.ActorID,
		RequestID:  event.RequestID,
	}
	if !event.PayoutID.IsNil() {
		payload.PayoutID = event.PayoutID.String()
	}
	if !event.OrganizerID.IsNil() {
		payload.OrganizerID = event.OrganizerID.String()
	}
	if !event.EventID.IsNil() {
		payload.EventID = event.EventID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.PayoutID.IsNil() {
		aggregateType = "payout"
		aggregateID = event.PayoutID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		eventID, aggregateType, aggregateID, event.Action, payloadBytes, event.Timestamp,
	); err != nil {
		return fmt.Errorf("append audit event to outbox: %w", err)
	}
	return nil
}
