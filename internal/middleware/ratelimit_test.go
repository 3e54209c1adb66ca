package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func TestGeneralMiddleware_AllowsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:  rate.Limit(1),
		GeneralBurst: 5,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestGeneralMiddleware_BlocksOverLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:  rate.Limit(0.01),
		GeneralBurst: 2,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	statuses := make([]int, 3)
	for i := range statuses {
		req := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses[i] = rec.Code
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("first two requests = %v, want 200", statuses[:2])
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", statuses[2])
	}
}

func TestGeneralMiddleware_429IncludesRetryAfterAndEnvelope(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:  rate.Limit(0.01),
		GeneralBurst: 1,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("status = %d, want 429", rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("expected Retry-After header")
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", got)
			}
		}
	}
}

func TestGeneralMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:  rate.Limit(0.01),
		GeneralBurst: 1,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	// 1つ目のIPの枠を使い切る
	req := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// 別のIPは影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
	req2.RemoteAddr = "10.0.0.2:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req2)

	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("limiter count = %d, want 2", got)
	}
}

func TestIssueMiddleware_IsIndependentFromGeneral(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:  rate.Limit(100),
		GeneralBurst: 100,
		IssueRate:    rate.Limit(0.01),
		IssueBurst:   1,
	})
	general := rl.GeneralMiddleware()(okHandler())
	issue := rl.IssueMiddleware()(okHandler())

	// OTP発行の枠を使い切る
	req := httptest.NewRequest(http.MethodPost, "/register", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	issue.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/register", nil)
	req2.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	issue.ServeHTTP(rec, req2)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("issue status = %d, want 429", rec.Code)
	}

	// API全般はまだ通る
	req3 := httptest.NewRequest(http.MethodGet, "/check-auth", nil)
	req3.RemoteAddr = "10.0.0.1:12345"
	rec3 := httptest.NewRecorder()
	general.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", rec3.Code)
	}
}

func TestClientIP_PrefersXForwardedFor(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"no proxy", "", "192.0.2.1:54321", "192.0.2.1"},
		{"single proxy", "203.0.113.7", "10.0.0.1:80", "203.0.113.7"},
		{"proxy chain uses first hop", "203.0.113.7, 10.0.0.2, 10.0.0.3", "10.0.0.1:80", "203.0.113.7"},
		{"malformed remote addr", "", "not-a-hostport", "not-a-hostport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		CleanupInterval: 10 * time.Millisecond,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Fatalf("limiter count = %d, want 1", got)
	}

	// CleanupIntervalの2倍を超えるとエントリが回収される
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rl.GeneralLimiterCount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("limiter count = %d after cleanup window, want 0", rl.GeneralLimiterCount())
}
