package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/intellivoid/coffeehouse-api/internal/handler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// RateLimiter Tests
// =============================================================================

func newTestLimiter(t *testing.T, max int, window time.Duration) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(max, window, discardLogger())
	t.Cleanup(rl.Close)
	return rl
}

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		if !rl.Allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		rl.Allow("192.168.1.1")
	}

	if rl.Allow("192.168.1.1") {
		t.Error("6th request should be denied")
	}
}

func TestRateLimiter_Allow_DifferentIPs(t *testing.T) {
	rl := newTestLimiter(t, 2, time.Minute)

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("IP 1 should be rate limited")
	}

	if !rl.Allow("192.168.1.2") {
		t.Error("IP 2 should not be rate limited")
	}
}

func TestRateLimiter_Allow_WindowExpiry(t *testing.T) {
	rl := newTestLimiter(t, 2, time.Minute)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	if rl.Allow("192.168.1.1") {
		t.Error("should be rate limited")
	}

	now = now.Add(61 * time.Second)

	if !rl.Allow("192.168.1.1") {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiter_TimeUntilReset(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	if got := rl.TimeUntilReset("10.0.0.1"); got != 0 {
		t.Errorf("expected 0 for unknown key, got %v", got)
	}

	rl.Allow("10.0.0.1")
	now = now.Add(20 * time.Second)

	if got := rl.TimeUntilReset("10.0.0.1"); got != 40*time.Second {
		t.Errorf("expected 40s, got %v", got)
	}
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func TestRateLimitMiddleware_ReturnsEnvelope(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute)
	mw := NewRateLimitMiddleware(rl, handler.NewResponder(discardLogger(), false), discardLogger())

	wrapped := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, httptest.NewRequest("POST", "/v1/coffeehouse/nlp/sentiment", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	var env handler.Envelope
	if err := json.NewDecoder(second.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.ResponseCode != http.StatusTooManyRequests || env.Error == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Error.Type != "CLIENT" {
		t.Errorf("expected CLIENT error type, got %q", env.Error.Type)
	}
}

// =============================================================================
// getClientIP Tests
// =============================================================================

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"remote addr without port", "192.168.1.1", nil, "192.168.1.1"},
		{"x-forwarded-for", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:80", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
