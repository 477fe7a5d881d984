// internal/service/ratelimit/application/limiter.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/ratelimit/domain"
)

const DefaultRetention = 24 * time.Hour

// Limiter 是固定窗口限流器，计数保存在共享存储中
type Limiter struct {
	store     domain.CounterStore
	retention time.Duration
	tracer    trace.Tracer
	now       func() time.Time
}

func NewLimiter(store domain.CounterStore, retention time.Duration) *Limiter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Limiter{
		store:     store,
		retention: retention,
		tracer:    otel.Tracer("ratelimit-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow 为 (action, identity) 消费 cost 个配额
func (l *Limiter) Allow(ctx context.Context, action, identity string, ceiling int, window time.Duration, cost int) (domain.Decision, error) {
	p := domain.Policy{Ceiling: ceiling, Window: window}
	if err := p.Validate(cost); err != nil {
		return domain.Decision{}, err
	}

	d, err := l.store.Consume(ctx, domain.ScopeKey(action, identity), l.now(), cost, p)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues(action, "error").Inc()
		return domain.Decision{}, err
	}
	if d.OK {
		metrics.RateLimitDecisions.WithLabelValues(action, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(action, "denied").Inc()
		trace.SpanFromContext(ctx).AddEvent("rate limited", trace.WithAttributes(
			attribute.String("ratelimit.action", action),
			attribute.String("ratelimit.retry_after", d.RetryAfter.String()),
		))
	}
	return d, nil
}

// Sweep 删除创建时间早于 now-retention 的计数器
func (l *Limiter) Sweep(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := l.tracer.Start(ctx, "app.SweepRateLimits")
	defer span.End()

	n, err := l.store.Purge(ctx, now.Add(-l.retention))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("ratelimit.deleted", n))
	logger.Ctx(ctx).Info().Int64("deleted", n).Msg("🧹 rate limit counters swept")
	return n, nil
}

func (l *Limiter) Now() time.Time {
	return l.now()
}
