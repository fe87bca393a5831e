package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"payouts/internal/payout/models"
	"payouts/internal/payout/store"
	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
	"payouts/pkg/platform/audit"
	"payouts/pkg/platform/audit/publisher"
	auditmemory "payouts/pkg/platform/audit/store/memory"
	"payouts/pkg/platform/sentinel"
	"payouts/pkg/requestcontext"
)

// fakeTransferClient counts calls and returns whatever the test configures.
type fakeTransferClient struct {
	mu       sync.Mutex
	calls    atomic.Int64
	err      error
	accounts []string
}

func (f *fakeTransferClient) CreateTransfer(_ context.Context, accountID string, _ int64, _ string) (string, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.accounts = append(f.accounts, accountID)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("tr_%d", n), nil
}

type ExecutorSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	store      *store.InMemory
	transfers  *fakeTransferClient
	auditStore *auditmemory.InMemoryStore
	executor   *Executor
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorSuite))
}

func (s *ExecutorSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.transfers = &fakeTransferClient{}
	s.auditStore = auditmemory.NewInMemoryStore()

	var err error
	s.executor, err = New(s.store, s.transfers,
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
}

func (s *ExecutorSuite) createPayout(method models.Method, opts ...func(*models.Payout)) *models.Payout {
	organizer := models.OrganizerRef{
		ID:    id.OrganizerID(uuid.New()),
		Name:  "Jazz Collective",
		Email: "booking@jazzcollective.test",
	}
	if method == models.MethodStripe {
		organizer.HasPayableAccount = true
		organizer.PayableAccountID = "acct_jazz"
	}
	event := &models.EventRef{ID: id.EventID(uuid.New()), Title: "Spring Session", EndsAt: s.now.Add(-time.Hour)}

	p, err := models.NewPayout(id.NewPayoutID(), organizer, event, 95_000, 5_000, 500, "eur", s.now)
	s.Require().NoError(err)
	for _, opt := range opts {
		opt(p)
	}
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

func (s *ExecutorSuite) TestTransferSuccess() {
	p := s.createPayout(models.MethodStripe)

	paid, err := s.executor.Transfer(s.ctx, p.ID)
	s.Require().NoError(err)

	s.Equal(models.StatusPaid, paid.Status)
	s.Equal("tr_1", paid.ExternalTransferID)
	s.Require().NotNil(paid.ProcessedAt)
	s.Equal(s.now, *paid.ProcessedAt)
	s.Equal([]string{"acct_jazz"}, s.transfers.accounts)

	events := s.auditStore.ByPayout(p.ID)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventPayoutPaid), events[0].Action)
	s.Equal("tr_1", events[0].TransferID)
}

func (s *ExecutorSuite) TestTransferProcessorRejection() {
	p := s.createPayout(models.MethodStripe)
	s.transfers.err = errors.New("insufficient platform balance")

	failed, err := s.executor.Transfer(s.ctx, p.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))

	s.Require().NotNil(failed)
	s.Equal(models.StatusFailed, failed.Status)
	s.Contains(failed.FailureReason, "insufficient platform balance")
	s.Equal(int64(95_000), failed.Amount, "failure must not change the amount")
	s.Nil(failed.ProcessedAt)

	events := s.auditStore.ByPayout(p.ID)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventPayoutFailed), events[0].Action)
}

func (s *ExecutorSuite) TestTransferNotIssuedReleasesClaim() {
	p := s.createPayout(models.MethodStripe)
	s.transfers.err = fmt.Errorf("dial tcp: %w", sentinel.ErrUnavailable)

	_, err := s.executor.Transfer(s.ctx, p.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.False(dErrors.HasCode(err, dErrors.CodeTransferFailed))

	got, getErr := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(getErr)
	s.Equal(models.StatusPending, got.Status, "an unissued transfer must not consume the payout")
	s.Empty(s.auditStore.ByPayout(p.ID), "no outcome, no audit event")
}

func (s *ExecutorSuite) TestTransferManualPayoutRejected() {
	p := s.createPayout(models.MethodManual)

	_, err := s.executor.Transfer(s.ctx, p.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Zero(s.transfers.calls.Load(), "manual payouts never reach the processor")
}

func (s *ExecutorSuite) TestTransferNotDue() {
	p := s.createPayout(models.MethodStripe, func(p *models.Payout) {
		p.ScheduledFor = s.now.Add(24 * time.Hour)
	})

	_, err := s.executor.Transfer(s.ctx, p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotDue))
	s.Zero(s.transfers.calls.Load())
}

func (s *ExecutorSuite) TestTransferUnknownPayout() {
	_, err := s.executor.Transfer(s.ctx, id.NewPayoutID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// The claim makes concurrent disbursement of the same payout safe: however
// many workers race, the processor sees exactly one transfer.
func (s *ExecutorSuite) TestConcurrentTransfersIssueExactlyOne() {
	p := s.createPayout(models.MethodStripe)

	const workers = 12
	var wg sync.WaitGroup
	var succeeded atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.executor.Transfer(s.ctx, p.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), succeeded.Load())
	s.Equal(int64(1), s.transfers.calls.Load(), "exactly one external transfer")

	got, err := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, got.Status)
	s.Equal("tr_1", got.ExternalTransferID)
}

func (s *ExecutorSuite) TestMarkManualPaid() {
	p := s.createPayout(models.MethodManual)

	paid, err := s.executor.MarkManualPaid(s.ctx, p.ID, "bank transfer ref 42")
	s.Require().NoError(err)

	s.Equal(models.StatusPaid, paid.Status)
	s.Equal("bank transfer ref 42", paid.ManualNotes)
	s.Empty(paid.ExternalTransferID)
	s.Zero(s.transfers.calls.Load(), "manual confirmation makes no processor call")

	events := s.auditStore.ByPayout(p.ID)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventManualPaid), events[0].Action)
}

func (s *ExecutorSuite) TestMarkManualPaidRejectsStripePayout() {
	p := s.createPayout(models.MethodStripe)

	_, err := s.executor.MarkManualPaid(s.ctx, p.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func (s *ExecutorSuite) TestMarkManualPaidIsIdempotentlyRejected() {
	p := s.createPayout(models.MethodManual)

	_, err := s.executor.MarkManualPaid(s.ctx, p.ID, "first")
	s.Require().NoError(err)

	_, err = s.executor.MarkManualPaid(s.ctx, p.ID, "second")
	s.Require().Error(err)

	got, getErr := s.store.Get(s.ctx, p.ID)
	s.Require().NoError(getErr)
	s.Equal("first", got.ManualNotes, "the second confirmation must not overwrite the first")
}
