package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/pkg/httpx"
	"storefront/internal/service/shipping/application"
	"storefront/internal/service/shipping/domain"
)

// ShippingHandler 封装了运费报价的 HTTP 处理器
type ShippingHandler struct {
	service *application.ShippingService
}

func NewShippingHandler(service *application.ShippingService) *ShippingHandler {
	return &ShippingHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ShippingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/shipping/quote", h.handleQuote)
}

func (h *ShippingHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	var req application.QuoteCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}

	resp, err := h.service.QuoteCart(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			httpx.WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "could not compute shipping quote")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
