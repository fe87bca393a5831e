// Package service orchestrates the payout lifecycle: creation and scheduling,
// batch disbursement, retries, manual confirmation, and method migration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"payouts/internal/payout/executor"
	"payouts/internal/payout/fees"
	payoutmetrics "payouts/internal/payout/metrics"
	"payouts/internal/payout/models"
	"payouts/internal/payout/ports"
	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
	"payouts/pkg/platform/audit"
	"payouts/pkg/platform/sentinel"
	"payouts/pkg/requestcontext"
)

const defaultBatchConcurrency = 4

type Service struct {
	store          ports.PayoutStore
	executor       *executor.Executor
	directory      ports.OrganizerDirectory
	revenue        ports.RevenueSource
	auditPublisher ports.AuditPublisher
	statsCache     ports.StatsCache
	metrics        *payoutmetrics.Metrics
	logger         *slog.Logger

	feeRateBps       int32
	batchConcurrency int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *payoutmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOrganizerDirectory(d ports.OrganizerDirectory) Option {
	return func(s *Service) { s.directory = d }
}

func WithRevenueSource(r ports.RevenueSource) Option {
	return func(s *Service) { s.revenue = r }
}

func WithStatsCache(c ports.StatsCache) Option {
	return func(s *Service) { s.statsCache = c }
}

func WithFeeRate(bps int32) Option {
	return func(s *Service) { s.feeRateBps = bps }
}

func WithBatchConcurrency(n int) Option {
	return func(s *Service) { s.batchConcurrency = n }
}

func New(store ports.PayoutStore, exec *executor.Executor, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("payout store is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("disbursement executor is required")
	}
	s := &Service{
		store:            store,
		executor:         exec,
		feeRateBps:       fees.DefaultRateBps,
		batchConcurrency: defaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchConcurrency < 1 {
		s.batchConcurrency = 1
	}
	return s, nil
}

// GetPayout retrieves a payout by ID.
func (s *Service) GetPayout(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	if payoutID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout_id is required")
	}
	p, err := s.store.Get(ctx, payoutID)
	if err != nil {
		return nil, wrapStoreErr(err, "get payout")
	}
	return p, nil
}

// CreateForEvent creates and schedules the payout for an event whose revenue
// is finalized. The event must have ended; the schedule is clamped to the
// event's end date either way.
func (s *Service) CreateForEvent(ctx context.Context, eventID id.EventID) (*models.Payout, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "event_id is required")
	}
	if s.revenue == nil || s.directory == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "payout creation requires revenue and organizer collaborators")
	}
	now := requestcontext.Now(ctx)

	rev, err := s.revenue.EventRevenue(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event revenue")
	}
	if rev.Event.EndsAt.After(now) {
		return nil, dErrors.New(dErrors.CodeNotDue, "event has not ended yet")
	}

	organizer, err := s.directory.GetOrganizer(ctx, rev.OrganizerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "organizer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organizer")
	}

	breakdown, err := fees.Calculate(rev.Gross, s.feeRateBps)
	if err != nil {
		return nil, err
	}

	event := rev.Event
	payout, err := models.NewPayout(id.NewPayoutID(), *organizer, &event,
		breakdown.Net, breakdown.Fee, s.feeRateBps, rev.Currency, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, payout); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a payout already exists for this organizer and event")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create payout")
	}

	s.invalidateStats(ctx)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      string(audit.EventPayoutCreated),
		PayoutID:    payout.ID,
		OrganizerID: payout.Organizer.ID,
		EventID:     event.ID,
		Amount:      payout.Amount,
		Currency:    payout.Currency,
	}, "payout_id", payout.ID, "event_id", event.ID, "amount", payout.Amount)

	return payout, nil
}

// MarkManualPaid records an operator's confirmation for a manual payout.
func (s *Service) MarkManualPaid(ctx context.Context, payoutID id.PayoutID, notes string) (*models.Payout, error) {
	if payoutID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout_id is required")
	}
	paid, err := s.executor.MarkManualPaid(ctx, payoutID, notes)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	if s.metrics != nil {
		s.metrics.ManualConfirmations.Inc()
	}
	return paid, nil
}

// Retry re-queues a failed stripe payout and immediately re-enters the
// claim-then-transfer flow. Amount and schedule stay untouched.
func (s *Service) Retry(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	if payoutID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout_id is required")
	}
	now := requestcontext.Now(ctx)

	requeued, err := s.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanRetry() },
		func(p *models.Payout) { p.ApplyRetry(now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "retry payout")
	}

	s.invalidateStats(ctx)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      string(audit.EventPayoutRetried),
		PayoutID:    requeued.ID,
		OrganizerID: requeued.Organizer.ID,
		Amount:      requeued.Amount,
		Currency:    requeued.Currency,
	}, "payout_id", requeued.ID)

	p, err := s.transferOne(ctx, payoutID)
	if err != nil {
		return p, err
	}
	return p, nil
}

// Cancel administratively cancels an unclaimed pending payout. Terminal.
func (s *Service) Cancel(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	if payoutID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout_id is required")
	}
	now := requestcontext.Now(ctx)

	cancelled, err := s.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanCancel() },
		func(p *models.Payout) { p.ApplyCancel(now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "cancel payout")
	}

	s.invalidateStats(ctx)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      string(audit.EventPayoutCancelled),
		PayoutID:    cancelled.ID,
		OrganizerID: cancelled.Organizer.ID,
		Amount:      cancelled.Amount,
		Currency:    cancelled.Currency,
	}, "payout_id", cancelled.ID)

	return cancelled, nil
}

// MigrateOrganizerToStripe flips every pending manual payout of an organizer
// to automatic disbursement, once the organizer has linked a payable account.
// Returns the number of migrated records.
func (s *Service) MigrateOrganizerToStripe(ctx context.Context, organizerID id.OrganizerID) (int, error) {
	if organizerID.IsNil() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "organizer_id is required")
	}
	if s.directory == nil {
		return 0, dErrors.New(dErrors.CodeInternal, "migration requires the organizer directory")
	}
	now := requestcontext.Now(ctx)

	organizer, err := s.directory.GetOrganizer(ctx, organizerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.Wrap(err, dErrors.CodeNotFound, "organizer not found")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organizer")
	}
	if !organizer.HasPayableAccount || organizer.PayableAccountID == "" {
		return 0, dErrors.New(dErrors.CodeNoPayableAccount, "organizer has no linked payable account")
	}

	candidates, err := s.store.ListByOrganizer(ctx, organizerID, models.StatusPending, models.MethodManual)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizer payouts")
	}

	migrated := 0
	for _, candidate := range candidates {
		p, err := s.store.Execute(ctx, candidate.ID,
			func(p *models.Payout) error { return p.CanMigrateToStripe() },
			func(p *models.Payout) { p.ApplyMigrateToStripe(*organizer, now) },
		)
		if err != nil {
			// Another operator may have confirmed or cancelled the payout
			// since the listing; skip it and keep migrating the rest.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "skipping payout during migration",
					"payout_id", candidate.ID, "error", err)
			}
			continue
		}
		migrated++
		ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
			Action:      string(audit.EventPayoutMigrated),
			PayoutID:    p.ID,
			OrganizerID: p.Organizer.ID,
			Amount:      p.Amount,
			Currency:    p.Currency,
		}, "payout_id", p.ID)
	}

	if migrated > 0 {
		s.invalidateStats(ctx)
		if s.metrics != nil {
			s.metrics.PayoutsMigrated.Add(float64(migrated))
		}
	}
	return migrated, nil
}

// RecomputeAmount is the explicit recompute-and-replace path for a pending
// payout whose event revenue was corrected after creation.
func (s *Service) RecomputeAmount(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	if payoutID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout_id is required")
	}
	if s.revenue == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "recompute requires the revenue source")
	}
	now := requestcontext.Now(ctx)

	current, err := s.store.Get(ctx, payoutID)
	if err != nil {
		return nil, wrapStoreErr(err, "get payout")
	}
	if current.Event == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payout is not tied to a single event")
	}

	rev, err := s.revenue.EventRevenue(ctx, current.Event.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event revenue")
	}
	breakdown, err := fees.Calculate(rev.Gross, s.feeRateBps)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Execute(ctx, payoutID,
		func(p *models.Payout) error { return p.CanRecomputeAmount() },
		func(p *models.Payout) { p.ApplyRecomputedAmount(breakdown.Net, breakdown.Fee, s.feeRateBps, now) },
	)
	if err != nil {
		return nil, wrapStoreErr(err, "recompute payout amount")
	}

	s.invalidateStats(ctx)
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:      string(audit.EventPayoutRecomputed),
		PayoutID:    updated.ID,
		OrganizerID: updated.Organizer.ID,
		Amount:      updated.Amount,
		Currency:    updated.Currency,
	}, "payout_id", updated.ID, "amount", updated.Amount)

	return updated, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.statsCache == nil {
		return
	}
	if err := s.statsCache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stats cache", "error", err)
	}
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
