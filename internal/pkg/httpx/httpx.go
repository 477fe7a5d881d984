// internal/pkg/httpx/httpx.go
package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// CronSecretHeader 内部触发接口使用的共享密钥请求头
const CronSecretHeader = "X-Cron-Secret"

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ProductID string `json:"productId,omitempty"`
}

// ExtractContext 从请求头恢复上游追踪上下文
func ExtractContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError 输出统一的错误体 {"error":{"code":..., "message":...}}
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// WriteProductError 同 WriteError，额外携带出问题的商品 ID
func WriteProductError(w http.ResponseWriter, status int, code, message, productID string) {
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, ProductID: productID}})
}

// RequireSecret 校验共享密钥；密钥为空或不匹配时返回 404，不暴露接口存在
func RequireSecret(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(CronSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

// ClientIP 取请求方 IP，优先使用 X-Forwarded-For 的第一个地址
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limiter 为某个动作的路由加上请求配额
type Limiter interface {
	Limit(action string, next http.HandlerFunc) http.HandlerFunc
}

// NoLimit 不做任何限制
type NoLimit struct{}

func (NoLimit) Limit(_ string, next http.HandlerFunc) http.HandlerFunc {
	return next
}
