// Package store persists payout records. The in-memory implementation backs
// unit tests and local runs; Postgres is the production store. Both enforce
// the same contract: one non-cancelled payout per (organizer, event) pair and
// atomic validate-then-mutate transitions.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"payouts/internal/payout/models"
	id "payouts/pkg/domain"
	"payouts/pkg/platform/sentinel"
)

const defaultPageLimit = 20

type InMemory struct {
	mu      sync.RWMutex
	payouts map[id.PayoutID]*models.Payout
}

func NewInMemory() *InMemory {
	return &InMemory{payouts: make(map[id.PayoutID]*models.Payout)}
}

// clone copies a payout so callers never share memory with the store.
// Only pointer fields need explicit copies.
func clone(p *models.Payout) *models.Payout {
	cp := *p
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		cp.ProcessedAt = &t
	}
	if p.Event != nil {
		ev := *p.Event
		cp.Event = &ev
	}
	return &cp
}

func (s *InMemory) Create(_ context.Context, payout *models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payouts[payout.ID]; exists {
		return sentinel.ErrConflict
	}
	if payout.Event != nil {
		for _, existing := range s.payouts {
			if existing.Status == models.StatusCancelled || existing.Event == nil {
				continue
			}
			if existing.Organizer.ID == payout.Organizer.ID && existing.Event.ID == payout.Event.ID {
				return sentinel.ErrAlreadyUsed
			}
		}
	}
	s.payouts[payout.ID] = clone(payout)
	return nil
}

func (s *InMemory) Get(_ context.Context, payoutID id.PayoutID) (*models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func matches(p *models.Payout, filter models.Filter) bool {
	if filter.Status != "" && p.Status.Public() != filter.Status {
		return false
	}
	if filter.Method != "" && p.Method != filter.Method {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Organizer.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Organizer.Email), needle) {
			return false
		}
	}
	return true
}

func (s *InMemory) List(_ context.Context, filter models.Filter, page models.Page) ([]*models.Payout, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Payout
	for _, p := range s.payouts {
		if matches(p, filter) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		// Stable order for records created in the same instant.
		return all[i].ID.String() > all[j].ID.String()
	})

	total := len(all)
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*models.Payout, 0, end-start)
	for _, p := range all[start:end] {
		out = append(out, clone(p))
	}
	return out, total, nil
}

func (s *InMemory) ListDue(_ context.Context, now time.Time, eventID *id.EventID) ([]*models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Payout
	for _, p := range s.payouts {
		if p.Status != models.StatusPending || p.Method != models.MethodStripe {
			continue
		}
		if !p.Organizer.HasPayableAccount {
			continue
		}
		if p.ScheduledFor.After(now) {
			continue
		}
		if eventID != nil && (p.Event == nil || p.Event.ID != *eventID) {
			continue
		}
		due = append(due, clone(p))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (s *InMemory) ListByOrganizer(_ context.Context, organizerID id.OrganizerID, status models.Status, method models.Method) ([]*models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Payout
	for _, p := range s.payouts {
		if p.Organizer.ID != organizerID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		if method != "" && p.Method != method {
			continue
		}
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) ListByEvent(_ context.Context, eventID id.EventID) ([]*models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Payout
	for _, p := range s.payouts {
		if p.Event != nil && p.Event.ID == eventID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) Stats(_ context.Context) (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.Stats{}
	for _, p := range s.payouts {
		stats.Total++
		switch p.Status.Public() {
		case models.StatusPending:
			stats.Pending++
			stats.PendingAmount += p.Amount
			switch p.Method {
			case models.MethodStripe:
				stats.PendingStripe++
			case models.MethodManual:
				stats.PendingManual++
			}
		case models.StatusPaid:
			stats.Paid++
			stats.PaidAmount += p.Amount
		case models.StatusFailed:
			stats.Failed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// Execute runs validate then mutate under the store lock. The claim CAS and
// every other transition rely on this: two concurrent claims serialize here,
// and the loser's validate sees the already-claimed record.
func (s *InMemory) Execute(_ context.Context, payoutID id.PayoutID,
	validate func(*models.Payout) error,
	mutate func(*models.Payout)) (*models.Payout, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[payoutID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)
	return clone(p), nil
}
