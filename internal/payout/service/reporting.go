package service

import (
	"context"

	"payouts/internal/payout/models"
	dErrors "payouts/pkg/domain-errors"
)

// ListPayouts returns an administrative page of payout records. Claimed
// records render with their public status so the claim substate never leaks
// into reporting.
func (s *Service) ListPayouts(ctx context.Context, filter models.Filter, page models.Page) ([]*models.Payout, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "unknown status filter")
	}
	if filter.Method != "" && filter.Method != models.MethodStripe && filter.Method != models.MethodManual {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "unknown method filter")
	}
	payouts, total, err := s.store.List(ctx, filter, page)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payouts")
	}
	for _, p := range payouts {
		p.Status = p.Status.Public()
	}
	return payouts, total, nil
}

// GetStats returns the aggregate payout counters for the admin dashboard,
// served from the short-lived cache when one is configured.
func (s *Service) GetStats(ctx context.Context) (*models.Stats, error) {
	if s.statsCache != nil {
		cached, err := s.statsCache.Get(ctx)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "stats cache read failed", "error", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute payout stats")
	}

	if s.statsCache != nil {
		if err := s.statsCache.Set(ctx, stats); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "stats cache write failed", "error", err)
		}
	}
	return stats, nil
}
