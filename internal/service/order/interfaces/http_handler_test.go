package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/httpx"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	shipapp "storefront/internal/service/shipping/application"
	shipdomain "storefront/internal/service/shipping/domain"
)

const secret = "cron-secret"

// denyAction 拒绝某一个动作的所有请求
type denyAction string

func (d denyAction) Limit(action string, next http.HandlerFunc) http.HandlerFunc {
	if action != string(d) {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		httpx.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "slow down")
	}
}

func newServer(t *testing.T, limiter httpx.Limiter) (*http.ServeMux, *infrastructure.MemoryStore) {
	t.Helper()
	store := infrastructure.NewMemoryStore()
	require.NoError(t, store.UpsertCatalog(context.Background(),
		[]domain.Producer{{ID: "grove", Name: "Grove", Email: "grove@example.com"}},
		[]domain.Product{{ID: "oil", Name: "Oil", Price: decimal.RequireFromString("10.00"), Stock: 2, Active: true, ProducerID: "grove"}},
	))
	engine, err := shipdomain.NewEngine(shipdomain.DefaultConfig())
	require.NoError(t, err)
	svc := application.NewOrderApplicationService(store, store, store, store,
		shipapp.NewShippingService(engine, nil), adapter.NewFanoutPublisher())

	mux := http.NewServeMux()
	NewOrderHandler(svc, limiter, secret, true).RegisterRoutes(mux)
	return mux, store
}

func do(mux *http.ServeMux, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const checkoutBody = `{"buyer":{"name":"Maria","email":"maria@example.gr"},"items":[{"productId":"oil","quantity":1}],"shippingMethod":"courier"}`

func TestCheckoutCreatesOrderAndTrackingWorks(t *testing.T) {
	mux, _ := newServer(t, nil)

	rec := do(mux, http.MethodPost, "/api/checkout", checkoutBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp application.PlaceOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatePaid, resp.Status)
	assert.True(t, resp.Total.Equal(decimal.RequireFromString("13.50")))

	rec = do(mux, http.MethodGet, "/api/orders/track/"+resp.TrackingToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "PAID", view["status"])
	assert.Equal(t, float64(1), view["itemCount"])
	assert.NotContains(t, rec.Body.String(), "maria@example.gr")

	rec = do(mux, http.MethodGet, "/api/orders/track/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutErrors(t *testing.T) {
	mux, _ := newServer(t, nil)

	cases := []struct {
		body string
		code string
	}{
		{`{"buyer":{"name":"Maria","email":"maria@example.gr"},"items":[{"productId":"oil","quantity":5}],"shippingMethod":"courier"}`, "OUT_OF_STOCK"},
		{`{"buyer":{"name":"Maria","email":"maria@example.gr"},"items":[],"shippingMethod":"courier"}`, "INVALID_CART"},
		{`{"buyer":{"name":"Maria"},"items":[{"productId":"oil","quantity":1}],"shippingMethod":"courier"}`, "INVALID_INPUT"},
		{`{"buyer":{"name":"Maria","email":"maria@example.gr"},"items":[{"productId":"oil","quantity":1}],"shippingMethod":"drone"}`, "INVALID_INPUT"},
		{`{`, "INVALID_INPUT"},
	}
	for _, tc := range cases {
		rec := do(mux, http.MethodPost, "/api/checkout", tc.body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Contains(t, rec.Body.String(), tc.code, tc.body)
	}

	rec := do(mux, http.MethodPost, "/api/checkout", cases[0].body, nil)
	assert.Contains(t, rec.Body.String(), `"productId":"oil"`)
}

func TestCheckoutRateLimited(t *testing.T) {
	mux, _ := newServer(t, denyAction(ActionCheckout))

	rec := do(mux, http.MethodPost, "/api/checkout", checkoutBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestInternalRoutesRequireSecret(t *testing.T) {
	mux, _ := newServer(t, nil)

	rec := do(mux, http.MethodPost, "/internal/orders/backfill-tokens", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/internal/orders/backfill-tokens", "", map[string]string{httpx.CronSecretHeader: secret})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":0}`, rec.Body.String())

	rec = do(mux, http.MethodPost, "/internal/dev/seed", "", map[string]string{httpx.CronSecretHeader: "wrong"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/internal/dev/seed", "", map[string]string{httpx.CronSecretHeader: secret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalStatusChange(t *testing.T) {
	mux, _ := newServer(t, nil)
	rec := do(mux, http.MethodPost, "/api/checkout", checkoutBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp application.PlaceOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	auth := map[string]string{httpx.CronSecretHeader: secret}
	rec = do(mux, http.MethodPost, "/internal/orders/"+resp.OrderID+"/status", `{"status":"PACKING"}`, auth)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, http.MethodPost, "/internal/orders/"+resp.OrderID+"/status", `{"status":"DELIVERED"}`, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TRANSITION")
}

func TestDevSeedHiddenOutsideDev(t *testing.T) {
	store := infrastructure.NewMemoryStore()
	engine, _ := shipdomain.NewEngine(shipdomain.DefaultConfig())
	svc := application.NewOrderApplicationService(store, store, store, store, shipapp.NewShippingService(engine, nil), adapter.NewFanoutPublisher())
	mux := http.NewServeMux()
	NewOrderHandler(svc, nil, secret, false).RegisterRoutes(mux)

	rec := do(mux, http.MethodPost, "/internal/dev/seed", "", map[string]string{httpx.CronSecretHeader: secret})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
