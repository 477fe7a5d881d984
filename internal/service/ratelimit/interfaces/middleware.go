package interfaces

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"storefront/internal/pkg/httpx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/ratelimit/application"
	"storefront/internal/service/ratelimit/domain"
)

// Middleware 按动作的策略对客户端 IP 限流，实现 httpx.Limiter。
// 存储出错时放行并记录日志，限流器故障不能阻断结账。
type Middleware struct {
	limiter  *application.Limiter
	policies map[string]domain.Policy
}

func NewMiddleware(limiter *application.Limiter, policies map[string]domain.Policy) *Middleware {
	return &Middleware{limiter: limiter, policies: policies}
}

var _ httpx.Limiter = (*Middleware)(nil)

func (m *Middleware) Limit(action string, next http.HandlerFunc) http.HandlerFunc {
	policy, ok := m.policies[action]
	if !ok {
		logger.Ctx(context.Background()).Warn().Str("action", action).Msg("no rate limit policy configured, action is unlimited")
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := httpx.ExtractContext(r)
		identity := httpx.ClientIP(r)

		d, err := m.limiter.Allow(ctx, action, identity, policy.Ceiling, policy.Window, 1)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("action", action).Msg("rate limiter unavailable, failing open")
			next(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.Ceiling))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.OK {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			logger.Ctx(ctx).Warn().Str("action", action).Str("identity", identity).Msg("⛔ rate limited")
			httpx.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later")
			return
		}
		next(w, r)
	}
}
