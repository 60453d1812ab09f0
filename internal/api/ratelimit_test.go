package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teamsbots/teamsbots/internal/ratelimit"
)

func TestRateLimitMiddleware(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{PerSecond: 0.001, Burst: 2})
	defer limiter.Stop()
	handler := NewRateLimitMiddleware(limiter)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)

		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "1" {
			t.Error("expected Retry-After header")
		}
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	// Another client has its own budget.
	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", rr.Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	for _, limiter := range []*ratelimit.Limiter{nil, ratelimit.New(ratelimit.Config{})} {
		handler := NewRateLimitMiddleware(limiter)(okHandler())
		for i := 0; i < 10; i++ {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
		}
	}
}

func TestGetClientID(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := getClientID(req); got != "ip:10.0.0.1:1234" {
		t.Errorf("unexpected client id %q", got)
	}

	req.Header.Set("X-API-Key", testAPIKey)
	if got := getClientID(req); got != "key:"+testAPIKey[:12] {
		t.Errorf("unexpected client id %q", got)
	}
}
