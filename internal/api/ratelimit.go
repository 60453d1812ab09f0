package api

import (
	"net/http"

	"github.com/teamsbots/teamsbots/internal/ratelimit"
)

// NewRateLimitMiddleware rejects clients over their request budget. A nil or
// disabled limiter lets everything through.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(getClientID(r)) {
				w.Header().Set("Retry-After", "1")
				writeAPIError(w, ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientID extracts the client identifier from the request. RealIP runs
// first, so RemoteAddr already reflects forwarding headers.
func getClientID(r *http.Request) string {
	if apiKey := extractAPIKey(r); len(apiKey) >= 12 {
		return "key:" + apiKey[:12]
	}
	return "ip:" + r.RemoteAddr
}
