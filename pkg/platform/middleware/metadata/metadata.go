// Package metadata stamps each request with a correlation ID and a
// request-scoped clock so every layer below logs and timestamps
// consistently.
package metadata

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"heirloom/pkg/requestcontext"
)

// RequestMetadata assigns a request ID (honoring X-Request-ID when the
// caller supplies one) and pins the request time. Apply first in the chain.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
