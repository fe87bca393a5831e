package testutil

import (
	"net/http"
	"time"

	"payouts/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, the way the request-time
// middleware would, so handler tests control what "now" means.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithRequestID stamps a request ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithActor stamps the acting operator onto the request context.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}
