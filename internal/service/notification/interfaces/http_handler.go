package interfaces

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/notification/application"
	"storefront/internal/service/notification/domain"
)

const defaultReconcileHours = 24

// NotificationHandler 暴露给 cron 调用的内部触发端点
type NotificationHandler struct {
	delivery   *application.DeliveryService
	notifier   *application.NotificationService
	cronSecret string
	now        func() time.Time
}

func NewNotificationHandler(delivery *application.DeliveryService, notifier *application.NotificationService, cronSecret string) *NotificationHandler {
	return &NotificationHandler{
		delivery:   delivery,
		notifier:   notifier,
		cronSecret: cronSecret,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *NotificationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/notifications/deliver", httpx.RequireSecret(h.cronSecret, h.handleDeliver))
	mux.HandleFunc("POST /internal/notifications/reconcile", httpx.RequireSecret(h.cronSecret, h.handleReconcile))
}

func (h *NotificationHandler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	batch := h.delivery.DefaultBatch()
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "max must be a positive integer")
			return
		}
		batch = n
	}

	results, err := h.delivery.DeliverDue(ctx, batch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidBatch) {
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("delivery pass failed")
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "delivery pass failed")
		return
	}
	if results == nil {
		results = []application.DeliveryResult{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"processed": len(results), "results": results})
}

func (h *NotificationHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	hours := defaultReconcileHours
	if raw := r.URL.Query().Get("sinceHours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "sinceHours must be a positive integer")
			return
		}
		hours = n
	}

	res, err := h.notifier.ReconcileNotifications(ctx, h.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("reconcile failed")
		if res == nil {
			httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "reconcile failed")
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
