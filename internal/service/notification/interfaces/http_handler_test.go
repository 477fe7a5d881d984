package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/httpx"
	"storefront/internal/service/notification/application"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/domain/port"
	"storefront/internal/service/notification/infrastructure"
	orderdomain "storefront/internal/service/order/domain"
)

const secret = "s3cret"

type noOrders struct{}

func (noOrders) RecentOrderEvents(context.Context, time.Time) ([]*orderdomain.OrderCreated, error) {
	return []*orderdomain.OrderCreated{{OrderID: "o1", Buyer: orderdomain.Buyer{Name: "Maria"}}}, nil
}

func newMux(t *testing.T) (*http.ServeMux, *application.NotificationService) {
	t.Helper()
	repo := infrastructure.NewMemoryTaskRepository()
	renderer := domain.NewRenderer()
	notifier := application.NewNotificationService(repo, renderer, noOrders{})
	senders := map[domain.Channel]port.Sender{
		domain.ChannelEmail: infrastructure.NewSimulatedSender(domain.ChannelEmail),
		domain.ChannelSMS:   infrastructure.NewSimulatedSender(domain.ChannelSMS),
	}
	delivery := application.NewDeliveryService(repo, renderer, senders, application.DefaultDeliveryConfig())

	mux := http.NewServeMux()
	NewNotificationHandler(delivery, notifier, secret).RegisterRoutes(mux)
	return mux, notifier
}

func post(mux *http.ServeMux, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(httpx.CronSecretHeader, key)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDeliverRequiresSecret(t *testing.T) {
	mux, _ := newMux(t)
	assert.Equal(t, http.StatusNotFound, post(mux, "/internal/notifications/deliver", "").Code)
	assert.Equal(t, http.StatusNotFound, post(mux, "/internal/notifications/deliver", "wrong").Code)
	assert.Equal(t, http.StatusNotFound, post(mux, "/internal/notifications/reconcile", "").Code)
}

func TestDeliverProcessesDueTasks(t *testing.T) {
	mux, notifier := newMux(t)
	_, err := notifier.Enqueue(context.Background(), domain.ChannelEmail, "maria@example.gr", domain.TemplateOrderDeliveredEmail,
		map[string]interface{}{"orderId": "o1", "buyerName": "Maria"})
	require.NoError(t, err)

	rec := post(mux, "/internal/notifications/deliver?max=5", secret)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Processed int                          `json:"processed"`
		Results   []application.DeliveryResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Processed)
	assert.Equal(t, application.OutcomeSent, body.Results[0].Outcome)

	rec = post(mux, "/internal/notifications/deliver", secret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":0,"results":[]}`, rec.Body.String())
}

func TestDeliverRejectsBadMax(t *testing.T) {
	mux, _ := newMux(t)
	for _, q := range []string{"0", "-3", "abc"} {
		rec := post(mux, "/internal/notifications/deliver?max="+q, secret)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
	}
}

func TestReconcile(t *testing.T) {
	mux, _ := newMux(t)

	rec := post(mux, "/internal/notifications/reconcile?sinceHours=abc", secret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(mux, "/internal/notifications/reconcile?sinceHours=48", secret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":1,"enqueued":0,"duplicates":0}`, rec.Body.String())
}
