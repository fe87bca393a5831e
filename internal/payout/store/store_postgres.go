package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
	"payouts/pkg/platform/sentinel"
)

// Postgres persists payout records in PostgreSQL. State transitions run under
// a row lock (SELECT ... FOR UPDATE) so the validate-then-mutate sequence is
// atomic per record, matching the in-memory store's mutex semantics.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const payoutColumns = `
	id, amount, fee_amount, fee_rate_bps, currency, status, payout_method,
	scheduled_for, processed_at, failure_reason, external_transfer_id, manual_notes,
	organizer_id, organizer_name, organizer_email, has_payable_account, payable_account_id,
	event_id, event_title, event_starts_at, event_ends_at, event_ticket_price,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (*models.Payout, error) {
	var p models.Payout
	var payoutID, organizerID uuid.UUID
	var processedAt sql.NullTime
	var eventID sql.Null[string]
	var eventStarts, eventEnds sql.NullTime
	var eventTitle string
	var eventTicketPrice int64

	err := row.Scan(
		&payoutID, &p.Amount, &p.FeeAmount, &p.FeeRateBps, &p.Currency, &p.Status, &p.Method,
		&p.ScheduledFor, &processedAt, &p.FailureReason, &p.ExternalTransferID, &p.ManualNotes,
		&organizerID, &p.Organizer.Name, &p.Organizer.Email, &p.Organizer.HasPayableAccount, &p.Organizer.PayableAccountID,
		&eventID, &eventTitle, &eventStarts, &eventEnds, &eventTicketPrice,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = id.PayoutID(payoutID)
	p.Organizer.ID = id.OrganizerID(organizerID)
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	if eventID.Valid {
		evID, err := id.ParseEventID(eventID.V)
		if err != nil {
			return nil, fmt.Errorf("corrupt event id in payout row: %w", err)
		}
		p.Event = &models.EventRef{
			ID:              evID,
			Title:           eventTitle,
			StartsAt:        eventStarts.Time,
			EndsAt:          eventEnds.Time,
			TicketPriceUnit: eventTicketPrice,
		}
	}
	return &p, nil
}

func payoutArgs(p *models.Payout) []any {
	var processedAt sql.NullTime
	if p.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *p.ProcessedAt, Valid: true}
	}
	var eventID sql.Null[string]
	var eventStarts, eventEnds sql.NullTime
	var eventTitle string
	var eventTicketPrice int64
	if p.Event != nil {
		eventID = sql.Null[string]{V: p.Event.ID.String(), Valid: true}
		eventTitle = p.Event.Title
		eventStarts = sql.NullTime{Time: p.Event.StartsAt, Valid: true}
		eventEnds = sql.NullTime{Time: p.Event.EndsAt, Valid: true}
		eventTicketPrice = p.Event.TicketPriceUnit
	}
	return []any{
		p.ID.String(), p.Amount, p.FeeAmount, p.FeeRateBps, p.Currency, p.Status, p.Method,
		p.ScheduledFor, processedAt, p.FailureReason, p.ExternalTransferID, p.ManualNotes,
		p.Organizer.ID.String(), p.Organizer.Name, p.Organizer.Email, p.Organizer.HasPayableAccount, p.Organizer.PayableAccountID,
		eventID, eventTitle, eventStarts, eventEnds, eventTicketPrice,
		p.CreatedAt, p.UpdatedAt,
	}
}

func (s *Postgres) Create(ctx context.Context, payout *models.Payout) error {
	query := `INSERT INTO payouts (` + payoutColumns + `) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		 $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`

	_, err := s.db.ExecContext(ctx, query, payoutArgs(payout)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if pqErr.Constraint == "payouts_organizer_event_live" {
				return sentinel.ErrAlreadyUsed
			}
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	p, err := scanPayout(s.db.QueryRowContext(ctx, query, payoutID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

func (s *Postgres) List(ctx context.Context, filter models.Filter, page models.Page) ([]*models.Payout, int, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		if filter.Status == models.StatusPending {
			// The processing claim substate is externally pending.
			conds = append(conds, fmt.Sprintf("status IN (%s, %s)",
				arg(models.StatusPending), arg(models.StatusProcessing)))
		} else {
			conds = append(conds, "status = "+arg(filter.Status))
		}
	}
	if filter.Method != "" {
		conds = append(conds, "payout_method = "+arg(filter.Method))
	}
	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, fmt.Sprintf("(LOWER(organizer_name) LIKE %s OR LOWER(organizer_email) LIKE %s)",
			arg(needle), arg(needle)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payouts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payouts: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	query := `SELECT ` + payoutColumns + ` FROM payouts` + where +
		" ORDER BY created_at DESC, id DESC LIMIT " + arg(limit) + " OFFSET " + arg(page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var out []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payouts: %w", err)
	}
	return out, total, nil
}

func (s *Postgres) ListDue(ctx context.Context, now time.Time, eventID *id.EventID) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = 'pending'
		  AND payout_method = 'stripe'
		  AND has_payable_account
		  AND scheduled_for <= $1`
	args := []any{now}
	if eventID != nil {
		query += " AND event_id = $2"
		args = append(args, eventID.String())
	}
	query += " ORDER BY scheduled_for"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list due payouts: %w", err)
	}
	defer rows.Close()

	var out []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due payouts: %w", err)
	}
	return out, nil
}

func (s *Postgres) ListByOrganizer(ctx context.Context, organizerID id.OrganizerID, status models.Status, method models.Method) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE organizer_id = $1`
	args := []any{organizerID.String()}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if method != "" {
		args = append(args, method)
		query += fmt.Sprintf(" AND payout_method = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizer payouts: %w", err)
	}
	defer rows.Close()

	var out []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organizer payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizer payouts: %w", err)
	}
	return out, nil
}

func (s *Postgres) ListByEvent(ctx context.Context, eventID id.EventID) ([]*models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE event_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("list event payouts: %w", err)
	}
	defer rows.Close()

	var out []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event payouts: %w", err)
	}
	return out, nil
}

func (s *Postgres) Stats(ctx context.Context) (*models.Stats, error) {
	// processing counts as pending: the claim substate is internal.
	query := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
		COUNT(*) FILTER (WHERE status = 'paid'),
		COUNT(*) FILTER (WHERE status = 'failed'),
		COUNT(*) FILTER (WHERE status = 'cancelled'),
		COUNT(*) FILTER (WHERE status IN ('pending', 'processing') AND payout_method = 'stripe'),
		COUNT(*) FILTER (WHERE status IN ('pending', 'processing') AND payout_method = 'manual'),
		COALESCE(SUM(amount) FILTER (WHERE status IN ('pending', 'processing')), 0),
		COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0)
	FROM payouts`

	stats := &models.Stats{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.Pending, &stats.Paid, &stats.Failed, &stats.Cancelled,
		&stats.PendingStripe, &stats.PendingManual,
		&stats.PendingAmount, &stats.PaidAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate payout stats: %w", err)
	}
	return stats, nil
}

// Execute locks the row with FOR UPDATE, runs validate then mutate, and
// writes the result back in the same transaction. A validation failure rolls
// back, leaving the stored record untouched.
func (s *Postgres) Execute(ctx context.Context, payoutID id.PayoutID,
	validate func(*models.Payout) error,
	mutate func(*models.Payout)) (*models.Payout, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payout tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 FOR UPDATE`
	p, err := scanPayout(tx.QueryRowContext(ctx, query, payoutID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock payout: %w", err)
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	update := `UPDATE payouts SET
		amount = $2, fee_amount = $3, fee_rate_bps = $4, currency = $5, status = $6,
		payout_method = $7, scheduled_for = $8, processed_at = $9, failure_reason = $10,
		external_transfer_id = $11, manual_notes = $12,
		organizer_name = $13, organizer_email = $14, has_payable_account = $15, payable_account_id = $16,
		updated_at = $17
	WHERE id = $1`

	var processedAt sql.NullTime
	if p.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *p.ProcessedAt, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, update,
		p.ID.String(), p.Amount, p.FeeAmount, p.FeeRateBps, p.Currency, p.Status,
		p.Method, p.ScheduledFor, processedAt, p.FailureReason,
		p.ExternalTransferID, p.ManualNotes,
		p.Organizer.Name, p.Organizer.Email, p.Organizer.HasPayableAccount, p.Organizer.PayableAccountID,
		p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update payout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payout tx: %w", err)
	}
	return p, nil
}
