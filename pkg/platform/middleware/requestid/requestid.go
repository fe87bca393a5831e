// Package requestid assigns a correlation ID to every request so operator
// actions can be traced from HTTP access logs through audit events.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"payouts/pkg/requestcontext"
)

const Header = "X-Request-Id"

// Middleware propagates an inbound X-Request-Id or generates one, storing it
// in the context and echoing it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set(Header, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
