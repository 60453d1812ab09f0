package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teamsbots/teamsbots/internal/auth"
)

const testAPIKey = "tb_test_key_0123456789"

func testKeys(t *testing.T) *auth.APIKeys {
	t.Helper()
	hash, err := auth.HashAPIKey(testAPIKey, 4)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	return auth.NewAPIKeys([]string{hash})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	mw := NewAuthMiddleware(testKeys(t))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing key", "", "", http.StatusUnauthorized},
		{"invalid key", "X-API-Key", "wrong", http.StatusForbidden},
		{"x-api-key", "X-API-Key", testAPIKey, http.StatusOK},
		{"bearer", "Authorization", "Bearer " + testAPIKey, http.StatusOK},
		{"apikey scheme", "Authorization", "ApiKey " + testAPIKey, http.StatusOK},
		{"unknown scheme", "Authorization", "Basic " + testAPIKey, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()

			mw(okHandler()).ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"x-api-key header", map[string]string{"X-API-Key": "key1"}, "key1"},
		{"bearer token", map[string]string{"Authorization": "Bearer key2"}, "key2"},
		{"apikey token", map[string]string{"Authorization": "ApiKey key3"}, "key3"},
		{"x-api-key wins", map[string]string{"X-API-Key": "key1", "Authorization": "Bearer key2"}, "key1"},
		{"none", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractAPIKey(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
