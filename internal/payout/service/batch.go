package service

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
	"payouts/pkg/requestcontext"
)

// Outcome describes one payout's fate within a batch run.
type Outcome struct {
	PayoutID id.PayoutID   `json:"payout_id"`
	Status   models.Status `json:"status"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// BatchResult summarizes a disbursement run. Failed counts payouts whose
// transfer was attempted and declined; Skipped counts payouts another worker
// claimed first or that were otherwise not eligible by the time we got there.
type BatchResult struct {
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// ProcessAllDueStripePayouts disburses every due automatic payout. Runs are
// safe to overlap: each payout is claimed atomically before its transfer is
// issued, so a concurrent run skips records this one is already working on.
func (s *Service) ProcessAllDueStripePayouts(ctx context.Context) (*BatchResult, error) {
	now := requestcontext.Now(ctx)
	start := now

	due, err := s.store.ListDue(ctx, now, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list due payouts")
	}

	result := s.processBatch(ctx, due)

	if s.metrics != nil {
		s.metrics.ObserveBatch(start, result.Processed)
	}
	if result.Succeeded > 0 || result.Failed > 0 {
		s.invalidateStats(ctx)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "disbursement run complete",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
			"skipped", result.Skipped)
	}
	return result, nil
}

// ProcessEventPayout disburses the due automatic payouts of a single event.
// Payouts not yet due are reported as warnings instead of silently skipped.
func (s *Service) ProcessEventPayout(ctx context.Context, eventID id.EventID) (*BatchResult, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "event_id is required")
	}
	now := requestcontext.Now(ctx)

	all, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list event payouts")
	}
	if len(all) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no payouts exist for this event")
	}

	var (
		eligible []*models.Payout
		warnings []string
	)
	for _, p := range all {
		switch {
		case p.Method != models.MethodStripe:
			warnings = append(warnings, "payout "+p.ID.String()+" is manual and must be confirmed by an operator")
		case p.Status != models.StatusPending:
			// Settled, failed or mid-claim; nothing to start here.
		case p.ScheduledFor.After(now):
			warnings = append(warnings, "payout "+p.ID.String()+" is not due until "+p.ScheduledFor.Format("2006-01-02"))
		default:
			eligible = append(eligible, p)
		}
	}

	result := s.processBatch(ctx, eligible)
	result.Warnings = warnings

	if result.Succeeded > 0 || result.Failed > 0 {
		s.invalidateStats(ctx)
	}
	return result, nil
}

func (s *Service) processBatch(ctx context.Context, payouts []*models.Payout) *BatchResult {
	result := &BatchResult{Processed: len(payouts)}
	if len(payouts) == 0 {
		return result
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)

	for _, p := range payouts {
		payoutID := p.ID
		g.Go(func() error {
			outcome := s.runTransfer(gctx, payoutID)
			mu.Lock()
			defer mu.Unlock()
			result.Outcomes = append(result.Outcomes, outcome)
			switch {
			case outcome.Skipped:
				result.Skipped++
			case outcome.Error == "":
				result.Succeeded++
			case outcome.Status == models.StatusFailed:
				result.Failed++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	// Workers never return errors; failures are recorded per payout.
	_ = g.Wait()
	return result
}

func (s *Service) runTransfer(ctx context.Context, payoutID id.PayoutID) Outcome {
	p, err := s.executor.Transfer(ctx, payoutID)
	if err != nil {
		status := models.StatusPending
		if p != nil {
			status = p.Status
		}
		if dErrors.HasCode(err, dErrors.CodeAlreadyProcessing) || dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			// Claimed or already settled by a concurrent run; not a failure
			// of this one.
			return Outcome{PayoutID: payoutID, Status: status.Public(), Skipped: true}
		}
		if s.metrics != nil && dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			s.metrics.TransfersFailed.Inc()
		}
		return Outcome{PayoutID: payoutID, Status: status.Public(), Error: dErrors.MessageOf(err)}
	}
	if s.metrics != nil {
		s.metrics.TransfersSucceeded.Inc()
	}
	return Outcome{PayoutID: payoutID, Status: p.Status}
}

// transferOne drives a single payout through the executor, translating the
// context-cancelled case so a half-finished retry reads as retriable.
func (s *Service) transferOne(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	p, err := s.executor.Transfer(ctx, payoutID)
	if err != nil {
		if s.metrics != nil && dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			s.metrics.TransfersFailed.Inc()
		}
		if errors.Is(err, context.Canceled) {
			return p, dErrors.Wrap(err, dErrors.CodeInternal, "transfer interrupted")
		}
		return p, err
	}
	if s.metrics != nil {
		s.metrics.TransfersSucceeded.Inc()
	}
	return p, nil
}
