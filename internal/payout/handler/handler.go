// Package handler exposes the administrative payout API over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payouts/internal/payout/models"
	"payouts/internal/payout/service"
	id "payouts/pkg/domain"
	dErrors "payouts/pkg/domain-errors"
	"payouts/pkg/platform/httputil"
	"payouts/pkg/requestcontext"
)

// Service defines the payout operations the admin surface needs.
type Service interface {
	GetPayout(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error)
	ListPayouts(ctx context.Context, filter models.Filter, page models.Page) ([]*models.Payout, int, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	CreateForEvent(ctx context.Context, eventID id.EventID) (*models.Payout, error)
	MarkManualPaid(ctx context.Context, payoutID id.PayoutID, notes string) (*models.Payout, error)
	Retry(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error)
	Cancel(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error)
	RecomputeAmount(ctx context.Context, payoutID id.PayoutID) (*models.Payout, error)
	MigrateOrganizerToStripe(ctx context.Context, organizerID id.OrganizerID) (int, error)
	ProcessAllDueStripePayouts(ctx context.Context) (*service.BatchResult, error)
	ProcessEventPayout(ctx context.Context, eventID id.EventID) (*service.BatchResult, error)
}

// Handler wires the admin payout endpoints to the payout service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a payout handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the admin payout endpoints on the router. The caller is
// expected to wrap the router with the admin-token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/payouts", h.HandleList)
	r.Get("/admin/payouts/stats", h.HandleStats)
	r.Post("/admin/payouts/process", h.HandleProcessAll)
	r.Get("/admin/payouts/{id}", h.HandleGet)
	r.Post("/admin/payouts/{id}/mark-paid", h.HandleMarkPaid)
	r.Post("/admin/payouts/{id}/retry", h.HandleRetry)
	r.Post("/admin/payouts/{id}/cancel", h.HandleCancel)
	r.Post("/admin/payouts/{id}/recompute", h.HandleRecompute)
	r.Post("/admin/organizers/{id}/migrate", h.HandleMigrate)
	r.Post("/admin/events/{id}/process", h.HandleProcessEvent)
	r.Post("/admin/events/{id}/payout", h.HandleCreateForEvent)
}

// HandleList handles GET /admin/payouts.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, page, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payouts, total, err := h.service.ListPayouts(ctx, filter, page)
	if err != nil {
		h.logError(ctx, "failed to list payouts", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewListResponse(payouts, total, page))
}

// HandleStats handles GET /admin/payouts/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		h.logError(ctx, "failed to compute payout stats", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleGet handles GET /admin/payouts/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payoutID, err := id.ParsePayoutID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payout, err := h.service.GetPayout(ctx, payoutID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewPayoutResponse(payout))
}

// HandleMarkPaid handles POST /admin/payouts/{id}/mark-paid.
func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	payoutID, err := id.ParsePayoutID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[MarkPaidRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	payout, err := h.service.MarkManualPaid(ctx, payoutID, req.Notes)
	if err != nil {
		h.logError(ctx, "failed to confirm manual payout", err, "payout_id", payoutID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manual payout confirmed",
		"request_id", requestID,
		"payout_id", payoutID,
		"amount", payout.Amount,
	)
	httputil.WriteJSON(w, http.StatusOK, NewPayoutResponse(payout))
}

// HandleRetry handles POST /admin/payouts/{id}/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	payoutID, err := id.ParsePayoutID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payout, err := h.service.Retry(ctx, payoutID)
	if err != nil {
		// A retry that re-queued the payout but failed the new transfer
		// attempt still carries the record; report the state with the error.
		if payout != nil && dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			httputil.WriteJSON(w, http.StatusBadGateway, NewRetryFailedResponse(payout))
			return
		}
		h.logError(ctx, "failed to retry payout", err, "payout_id", payoutID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "payout retried",
		"request_id", requestID,
		"payout_id", payoutID,
		"status", payout.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, NewPayoutResponse(payout))
}

// HandleCancel handles POST /admin/payouts/{id}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payoutID, err := id.ParsePayoutID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payout, err := h.service.Cancel(ctx, payoutID)
	if err != nil {
		h.logError(ctx, "failed to cancel payout", err, "payout_id", payoutID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewPayoutResponse(payout))
}

// HandleRecompute handles POST /admin/payouts/{id}/recompute.
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payoutID, err := id.ParsePayoutID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payout, err := h.service.RecomputeAmount(ctx, payoutID)
	if err != nil {
		h.logError(ctx, "failed to recompute payout", err, "payout_id", payoutID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewPayoutResponse(payout))
}

// HandleMigrate handles POST /admin/organizers/{id}/migrate.
func (h *Handler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	organizerID, err := id.ParseOrganizerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	migrated, err := h.service.MigrateOrganizerToStripe(ctx, organizerID)
	if err != nil {
		h.logError(ctx, "failed to migrate organizer payouts", err, "organizer_id", organizerID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "organizer payouts migrated",
		"request_id", requestID,
		"organizer_id", organizerID,
		"migrated", migrated,
	)
	httputil.WriteJSON(w, http.StatusOK, MigrateResponse{Migrated: migrated})
}

// HandleProcessAll handles POST /admin/payouts/process.
func (h *Handler) HandleProcessAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	result, err := h.service.ProcessAllDueStripePayouts(ctx)
	if err != nil {
		h.logError(ctx, "disbursement run failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "disbursement run finished",
		"request_id", requestID,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleProcessEvent handles POST /admin/events/{id}/process.
func (h *Handler) HandleProcessEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ProcessEventPayout(ctx, eventID)
	if err != nil {
		h.logError(ctx, "event disbursement failed", err, "event_id", eventID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCreateForEvent handles POST /admin/events/{id}/payout.
func (h *Handler) HandleCreateForEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	payout, err := h.service.CreateForEvent(ctx, eventID)
	if err != nil {
		h.logError(ctx, "failed to create payout", err, "event_id", eventID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "payout created",
		"request_id", requestID,
		"payout_id", payout.ID,
		"event_id", eventID,
		"amount", payout.Amount,
	)
	httputil.WriteJSON(w, http.StatusCreated, NewPayoutResponse(payout))
}

func (h *Handler) logError(ctx context.Context, msg string, err error, attrs ...any) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, append(attrs, "error", err)...)
		return
	}
	h.logger.WarnContext(ctx, msg, append(attrs, "error", err)...)
}
