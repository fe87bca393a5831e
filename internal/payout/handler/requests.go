package handler

import (
	"net/http"
	"strconv"
	"strings"

	"payouts/internal/payout/models"
	dErrors "payouts/pkg/domain-errors"
)

const (
	maxNotesLength = 1000
	maxPageLimit   = 100
)

// MarkPaidRequest is the HTTP request body for
// POST /admin/payouts/{id}/mark-paid. The body is optional; notes default to
// empty.
type MarkPaidRequest struct {
	Notes string `json:"notes"`
}

// Validate implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *MarkPaidRequest) Validate() error {
	if r == nil {
		return nil
	}
	r.Notes = strings.TrimSpace(r.Notes)
	if len(r.Notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 1000 characters")
	}
	return nil
}

func parseListQuery(r *http.Request) (models.Filter, models.Page, error) {
	q := r.URL.Query()

	filter := models.Filter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: models.Status(strings.TrimSpace(q.Get("status"))),
		Method: models.Method(strings.TrimSpace(q.Get("method"))),
	}

	var page models.Page
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, page, dErrors.New(dErrors.CodeValidation, "offset must be a non-negative integer")
		}
		page.Offset = offset
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return filter, page, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100")
		}
		page.Limit = limit
	}
	return filter, page, nil
}
