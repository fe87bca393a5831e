package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"payouts/internal/payout/executor"
	"payouts/internal/payout/models"
	"payouts/internal/payout/service"
	"payouts/internal/payout/store"
	id "payouts/pkg/domain"
	"payouts/pkg/platform/sentinel"
	"payouts/pkg/requestcontext"
	"payouts/pkg/testutil"
)

type fakeTransferClient struct {
	calls atomic.Int64
	err   error
}

func (f *fakeTransferClient) CreateTransfer(context.Context, string, int64, string) (string, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("tr_%d", n), nil
}

type fakeDirectory struct {
	organizers map[id.OrganizerID]*models.OrganizerRef
	revenues   map[id.EventID]*models.EventRevenue
}

func (f *fakeDirectory) GetOrganizer(_ context.Context, organizerID id.OrganizerID) (*models.OrganizerRef, error) {
	o, ok := f.organizers[organizerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeDirectory) EventRevenue(_ context.Context, eventID id.EventID) (*models.EventRevenue, error) {
	r, ok := f.revenues[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type HandlerSuite struct {
	suite.Suite
	now       time.Time
	ctx       context.Context
	store     *store.InMemory
	transfers *fakeTransferClient
	directory *fakeDirectory
	router    chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.transfers = &fakeTransferClient{}
	s.directory = &fakeDirectory{
		organizers: make(map[id.OrganizerID]*models.OrganizerRef),
		revenues:   make(map[id.EventID]*models.EventRevenue),
	}

	logger := slog.New(slog.DiscardHandler)

	exec, err := executor.New(s.store, s.transfers, executor.WithLogger(logger))
	s.Require().NoError(err)

	svc, err := service.New(s.store, exec,
		service.WithLogger(logger),
		service.WithOrganizerDirectory(s.directory),
		service.WithRevenueSource(s.directory),
	)
	s.Require().NoError(err)

	s.router = chi.NewRouter()
	New(svc, logger).Register(s.router)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithRequestTime(req, s.now))
}

func (s *HandlerSuite) seedPayout(name string, linked bool, endsAt time.Time) *models.Payout {
	organizer := models.OrganizerRef{
		ID:    id.OrganizerID(uuid.New()),
		Name:  name,
		Email: name + "@organizers.test",
	}
	if linked {
		organizer.HasPayableAccount = true
		organizer.PayableAccountID = "acct_" + name
	}
	s.directory.organizers[organizer.ID] = &organizer

	event := models.EventRef{ID: id.EventID(uuid.New()), Title: name + " live", EndsAt: endsAt}
	s.directory.revenues[event.ID] = &models.EventRevenue{
		Event:       event,
		OrganizerID: organizer.ID,
		Gross:       100_000,
		Currency:    "eur",
		FinalizedAt: endsAt,
	}

	p, err := models.NewPayout(id.NewPayoutID(), organizer, &event, 95_000, 5_000, 500, "eur", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

func (s *HandlerSuite) TestListPayouts() {
	s.seedPayout("alice", true, s.now.Add(-time.Hour))
	s.seedPayout("bob", false, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Equal(2, resp.Total)
	s.Len(resp.Payouts, 2)

	s.Run("method filter", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts?method=manual"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
		s.Equal(1, resp.Total)
		s.Equal("bob", resp.Payouts[0].Organizer.Name)
	})

	s.Run("search filter", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts?search=ALICE"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
		s.Equal(1, resp.Total)
	})

	s.Run("bad status filter", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts?status=refunded"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("bad limit", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts?limit=0"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestGetPayout() {
	p := s.seedPayout("alice", true, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts/"+p.ID.String()))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[PayoutResponse](s.T(), rr)
	s.Equal(p.ID, resp.ID)
	s.Equal("pending", resp.Status)

	s.Run("unknown id", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts/"+uuid.NewString()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts/not-a-uuid"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *HandlerSuite) TestStats() {
	s.seedPayout("alice", true, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/payouts/stats"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	stats := testutil.UnmarshalResponse[models.Stats](s.T(), rr)
	s.Equal(1, stats.Total)
	s.Equal(1, stats.Pending)
	s.Equal(int64(95_000), stats.PendingAmount)
}

func (s *HandlerSuite) TestMarkPaid() {
	p := s.seedPayout("bob", false, s.now.Add(-time.Hour))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/admin/payouts/"+p.ID.String()+"/mark-paid", MarkPaidRequest{Notes: "bank ref 42"})
	rr := s.do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[PayoutResponse](s.T(), rr)
	s.Equal("paid", resp.Status)
	s.Equal("bank ref 42", resp.ManualNotes)

	s.Run("empty body is allowed", func() {
		other := s.seedPayout("carol", false, s.now.Add(-time.Hour))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+other.ID.String()+"/mark-paid"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("stripe payout conflicts", func() {
		auto := s.seedPayout("dave", true, s.now.Add(-time.Hour))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+auto.ID.String()+"/mark-paid"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_transition")
	})
}

func (s *HandlerSuite) TestRetry() {
	p := s.seedPayout("alice", true, s.now.Add(-time.Hour))

	s.Run("pending payout conflicts", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+p.ID.String()+"/retry"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_transition")
	})

	// Fail the payout, then retry successfully.
	s.transfers.err = fmt.Errorf("processor offline")
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/process"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	s.transfers.err = nil
	rr = s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+p.ID.String()+"/retry"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[PayoutResponse](s.T(), rr)
	s.Equal("paid", resp.Status)
	s.NotEmpty(resp.ExternalTransferID)
}

func (s *HandlerSuite) TestRetryFailsAgain() {
	p := s.seedPayout("alice", true, s.now.Add(-time.Hour))

	s.transfers.err = fmt.Errorf("processor offline")
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/process"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+p.ID.String()+"/retry"))
	testutil.AssertStatus(s.T(), rr, http.StatusBadGateway)

	resp := testutil.UnmarshalResponse[RetryFailedResponse](s.T(), rr)
	s.Equal("failed", resp.Payout.Status)
	s.Contains(resp.Error, "processor offline")
}

func (s *HandlerSuite) TestCancel() {
	p := s.seedPayout("alice", false, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/"+p.ID.String()+"/cancel"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[PayoutResponse](s.T(), rr)
	s.Equal("cancelled", resp.Status)
}

func (s *HandlerSuite) TestMigrate() {
	p := s.seedPayout("alice", false, s.now.Add(-time.Hour))

	organizer := s.directory.organizers[p.Organizer.ID]
	organizer.HasPayableAccount = true
	organizer.PayableAccountID = "acct_alice"

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/organizers/"+p.Organizer.ID.String()+"/migrate"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[MigrateResponse](s.T(), rr)
	s.Equal(1, resp.Migrated)

	s.Run("unlinked organizer", func() {
		other := s.seedPayout("bob", false, s.now.Add(-time.Hour))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/organizers/"+other.Organizer.ID.String()+"/migrate"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "no_payable_account")
	})
}

func (s *HandlerSuite) TestProcessAll() {
	s.seedPayout("alice", true, s.now.Add(-time.Hour))
	s.seedPayout("bob", false, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/payouts/process"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[service.BatchResult](s.T(), rr)
	s.Equal(1, resp.Processed)
	s.Equal(1, resp.Succeeded)
}

func (s *HandlerSuite) TestProcessEvent() {
	p := s.seedPayout("alice", true, s.now.Add(-time.Hour))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/events/"+p.Event.ID.String()+"/process"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	resp := testutil.UnmarshalResponse[service.BatchResult](s.T(), rr)
	s.Equal(1, resp.Succeeded)

	s.Run("unknown event", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/events/"+uuid.NewString()+"/process"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestCreateForEvent() {
	organizer := models.OrganizerRef{
		ID:                id.OrganizerID(uuid.New()),
		Name:              "alice",
		Email:             "alice@organizers.test",
		HasPayableAccount: true,
		PayableAccountID:  "acct_alice",
	}
	s.directory.organizers[organizer.ID] = &organizer
	event := models.EventRef{ID: id.EventID(uuid.New()), Title: "alice live", EndsAt: s.now.Add(-time.Hour)}
	s.directory.revenues[event.ID] = &models.EventRevenue{
		Event:       event,
		OrganizerID: organizer.ID,
		Gross:       100_000,
		Currency:    "eur",
		FinalizedAt: event.EndsAt,
	}

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/events/"+event.ID.String()+"/payout"))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	resp := testutil.UnmarshalResponse[PayoutResponse](s.T(), rr)
	s.Equal(int64(95_000), resp.Amount)
	s.Equal(int64(5_000), resp.FeeAmount)
	s.Equal("stripe", resp.Method)

	s.Run("duplicate conflicts", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/events/"+event.ID.String()+"/payout"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}
