package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func rateLimited(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func doRequest(e *echo.Echo, h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	err := h(e.NewContext(req, rec))
	return rec, err
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := doRequest(e, h, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	// very slow refill so the bucket cannot recover during the test
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if _, err := doRequest(e, h, "10.0.0.2"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	rec, err := doRequest(e, h, "10.0.0.2")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", he.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e := echo.New()
	h := rateLimited(RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 1})

	if _, err := doRequest(e, h, "10.0.0.3"); err != nil {
		t.Fatalf("first client: unexpected error %v", err)
	}
	if _, err := doRequest(e, h, "10.0.0.3"); err == nil {
		t.Fatal("first client: expected second request to be limited")
	}
	if _, err := doRequest(e, h, "10.0.0.4"); err != nil {
		t.Fatalf("second client should have its own bucket, got %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected 100 rps, got %v", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected burst 200, got %d", cfg.BurstSize)
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	start := time.Now()
	s.get("a", start)
	s.get("b", start)

	later := start.Add(2 * time.Minute)
	s.lastGC = start
	s.get("c", later)

	if _, ok := s.clients["a"]; ok {
		t.Error("expected idle client a to be evicted")
	}
	if _, ok := s.clients["c"]; !ok {
		t.Error("expected client c to be present")
	}
}

func TestLimiterStore_ReusesLimiter(t *testing.T) {
	s := newLimiterStore(DefaultRateLimitConfig())
	now := time.Now()
	if s.get("x", now) != s.get("x", now) {
		t.Error("expected the same limiter for the same key")
	}
}
