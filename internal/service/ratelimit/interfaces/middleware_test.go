package interfaces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/httpx"
	"storefront/internal/service/ratelimit/application"
	"storefront/internal/service/ratelimit/domain"
	"storefront/internal/service/ratelimit/infrastructure"
)

type brokenStore struct{}

func (brokenStore) Consume(context.Context, string, time.Time, int, domain.Policy) (domain.Decision, error) {
	return domain.Decision{}, errors.New("db down")
}

func (brokenStore) Purge(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func call(h http.HandlerFunc, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestMiddlewareLimitsPerIdentity(t *testing.T) {
	limiter := application.NewLimiter(infrastructure.NewMemoryCounterStore(), time.Hour)
	m := NewMiddleware(limiter, map[string]domain.Policy{"lookup": {Ceiling: 2, Window: time.Minute}})
	h := m.Limit("lookup", okHandler)

	assert.Equal(t, http.StatusNoContent, call(h, "1.1.1.1").Code)
	rec := call(h, "1.1.1.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = call(h, "1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusNoContent, call(h, "2.2.2.2").Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	limiter := application.NewLimiter(brokenStore{}, time.Hour)
	m := NewMiddleware(limiter, map[string]domain.Policy{"checkout": {Ceiling: 1, Window: time.Minute}})
	h := m.Limit("checkout", okHandler)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, call(h, "1.1.1.1").Code)
	}
}

func TestMiddlewareWithoutPolicyPassesThrough(t *testing.T) {
	m := NewMiddleware(application.NewLimiter(infrastructure.NewMemoryCounterStore(), time.Hour), nil)
	h := m.Limit("unknown", okHandler)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, call(h, "1.1.1.1").Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	limiter := application.NewLimiter(infrastructure.NewMemoryCounterStore(), 24*time.Hour).WithClock(func() time.Time { return now })
	_, err := limiter.Allow(context.Background(), "lookup", "1.1.1.1", 5, time.Minute, 1)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewMaintenanceHandler(limiter, "s3cret").RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/internal/ratelimit/sweep", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	now = now.Add(25 * time.Hour)
	req = httptest.NewRequest(http.MethodPost, "/internal/ratelimit/sweep", nil)
	req.Header.Set(httpx.CronSecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())
}
