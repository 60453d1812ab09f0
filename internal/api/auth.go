package api

import (
	"net/http"
	"strings"

	"github.com/teamsbots/teamsbots/internal/auth"
)

// NewAuthMiddleware rejects requests without a valid admin API key.
func NewAuthMiddleware(keys *auth.APIKeys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" {
				writeAPIError(w, ErrUnauthorized)
				return
			}
			if !keys.Check(apiKey) {
				writeAPIError(w, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey extracts the API key from the request.
// Supports: X-API-Key header, Authorization: Bearer token, Authorization: ApiKey token
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if strings.HasPrefix(header, "ApiKey ") {
		return strings.TrimPrefix(header, "ApiKey ")
	}
	return ""
}
