package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsRequestUnderLimit(t *testing.T) {
	handler := NewRateLimiter(100, WithTTL(5*time.Minute)).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(1, WithBurst(1)).Middleware()(okHandler())

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, requestFrom("10.0.0.1:5000"))
	if rr1.Code != http.StatusOK {
		t.Errorf("first request: got status %d, want %d", rr1.Code, http.StatusOK)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, requestFrom("10.0.0.1:5001"))
	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr2.Code, http.StatusTooManyRequests)
	}
	if rr2.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header")
	}
}

func TestRateLimitMiddleware_SeparateLimitsPerClient(t *testing.T) {
	handler := NewRateLimiter(1, WithBurst(1)).Middleware()(okHandler())

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(addr))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got status %d, want %d", addr, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_ZeroMeansUnlimited(t *testing.T) {
	handler := NewRateLimiter(0).Middleware()(okHandler())

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d", i, rr.Code)
		}
	}
}

func TestGetOrCreateLimiter_ExpiredEntryReplaced(t *testing.T) {
	rl := NewRateLimiter(1, WithTTL(-time.Second))

	first := rl.getOrCreateLimiter("10.0.0.1")
	second := rl.getOrCreateLimiter("10.0.0.1")
	if first == second {
		t.Error("expected expired limiter to be replaced")
	}
}

func TestClientKey(t *testing.T) {
	if got := clientKey(requestFrom("192.168.1.5:4321")); got != "192.168.1.5" {
		t.Errorf("got %q", got)
	}
	if got := clientKey(requestFrom("unix")); got != "unix" {
		t.Errorf("got %q", got)
	}
}
