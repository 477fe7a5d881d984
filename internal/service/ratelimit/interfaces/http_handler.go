package interfaces

import (
	"net/http"

	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/ratelimit/application"
)

// MaintenanceHandler 暴露计数器清理的内部触发端点
type MaintenanceHandler struct {
	limiter    *application.Limiter
	cronSecret string
}

func NewMaintenanceHandler(limiter *application.Limiter, cronSecret string) *MaintenanceHandler {
	return &MaintenanceHandler{limiter: limiter, cronSecret: cronSecret}
}

func (h *MaintenanceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/ratelimit/sweep", httpx.RequireSecret(h.cronSecret, h.handleSweep))
}

func (h *MaintenanceHandler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := httpx.ExtractContext(r)

	n, err := h.limiter.Sweep(ctx, h.limiter.Now())
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("rate limit sweep failed")
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL", "sweep failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
