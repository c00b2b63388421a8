package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serveLimited(t *testing.T, h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	req.RemoteAddr = ip + ":4321"
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}
	handler := RateLimit(ctx, cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Send 5 requests (within burst size), all should pass
	for i := 0; i < 5; i++ {
		rec, err := serveLimited(t, handler, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}
	handler := RateLimit(ctx, cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		if _, err := serveLimited(t, handler, "10.0.0.2"); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	rec, err := serveLimited(t, handler, "10.0.0.2")
	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if _, err := serveLimited(t, handler, "10.0.0.3"); err != nil {
		t.Fatalf("first client: %v", err)
	}
	if _, err := serveLimited(t, handler, "10.0.0.4"); err != nil {
		t.Fatalf("second client should have its own bucket: %v", err)
	}
	if _, err := serveLimited(t, handler, "10.0.0.3"); err == nil {
		t.Error("first client should be limited")
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTokenBucket(2, 1, start)

	if ok, _ := b.take(start); !ok {
		t.Fatal("expected initial token")
	}
	if ok, retry := b.take(start); ok || retry != 1 {
		t.Fatalf("expected empty bucket with retry 1, got ok=%v retry=%d", ok, retry)
	}
	if ok, _ := b.take(start.Add(500 * time.Millisecond)); !ok {
		t.Error("expected a token after half a second at 2 rps")
	}
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	l.allow("old")
	now = now.Add(2 * time.Minute)
	l.allow("fresh")

	if removed := l.prune(); removed != 1 {
		t.Errorf("expected 1 bucket pruned, got %d", removed)
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("recently used bucket must be kept")
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
