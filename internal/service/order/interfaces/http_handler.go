package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
)

const (
	ActionCheckout = "checkout"
	ActionLookup   = "lookup"
	ActionDevSeed  = "dev-seed"
)

// OrderHandler 封装了订单相关的 HTTP 处理器
type OrderHandler struct {
	service    *application.OrderApplicationService
	limiter    httpx.Limiter
	cronSecret string
	devMode    bool
}

func NewOrderHandler(service *application.OrderApplicationService, limiter httpx.Limiter, cronSecret string, devMode bool) *OrderHandler {
	if limiter == nil {
		limiter = httpx.NoLimit{}
	}
	return &OrderHandler{service: service, limiter: limiter, cronSecret: cronSecret, devMode: devMode}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout", h.limiter.Limit(ActionCheckout, h.handleCheckout))
	mux.HandleFunc("GET /api/orders/track/{token}", h.limiter.Limit(ActionLookup, h.handleTrack))

	mux.HandleFunc("POST /internal/orders/backfill-tokens", httpx.RequireSecret(h.cronSecret, h.handleBackfill))
	mux.HandleFunc("POST /internal/orders/{id}/status", httpx.RequireSecret(h.cronSecret, h.handleChangeStatus))
	if h.devMode {
		mux.HandleFunc("POST /internal/dev/seed", httpx.RequireSecret(h.cronSecret, h.limiter.Limit(ActionDevSeed, h.handleSeed)))
	}
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}

	resp, err := h.service.PlaceOrder(ctx, &req)
	if err != nil {
		var oos *domain.OutOfStockError
		switch {
		case errors.As(err, &oos):
			httpx.WriteProductError(w, http.StatusBadRequest, "OUT_OF_STOCK", "not enough stock", oos.ProductID)
		case errors.Is(err, domain.ErrInvalidCart):
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_CART", err.Error())
		case errors.Is(err, domain.ErrInvalidInput):
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("checkout failed")
			httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "checkout failed")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) handleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	view, err := h.service.TrackOrder(ctx, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "order not found")
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("tracking lookup failed")
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "lookup failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *OrderHandler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	updated, err := h.service.BackfillTrackingTokens(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Int("updated", updated).Msg("tracking token backfill failed")
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "backfill failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *OrderHandler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	o, err := h.service.ChangeStatus(ctx, r.PathValue("id"), body.Status)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "order not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			httpx.WriteError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
		case errors.Is(err, domain.ErrInvalidInput):
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		default:
			logger.Ctx(ctx).Error().Err(err).Msg("status change failed")
			httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "status change failed")
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"orderId": o.ID, "status": o.Status, "updatedAt": o.UpdatedAt})
}

func (h *OrderHandler) handleSeed(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	n, err := h.service.SeedDemoCatalog(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("dev seed failed")
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "seed failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"products": n})
}
