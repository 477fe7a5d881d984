// internal/service/notification/application/delivery_service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/domain/port"
)

const deliveryLockName = "notification-delivery"

// DeliveryConfig 控制一次投递批次的行为
type DeliveryConfig struct {
	MaxAttempts     int
	Backoff         domain.Backoff
	DispatchTimeout time.Duration
	ClaimTTL        time.Duration
	Concurrency     int
	MaxBatch        int
}

// MinClaimTTL 是认领有效期的下限：一次投递超时加一次结果写入超时
func MinClaimTTL(dispatchTimeout time.Duration) time.Duration {
	return 2 * dispatchTimeout
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:     5,
		Backoff:         domain.Backoff{Base: time.Minute, Max: time.Hour},
		DispatchTimeout: 10 * time.Second,
		ClaimTTL:        5 * time.Minute,
		Concurrency:     4,
		MaxBatch:        50,
	}
}

// DeliveryService 认领到期任务，渲染并通过对应渠道投递。
// 每次调用只处理一个有界批次，不在内部循环；重试依赖下一次调用。
type DeliveryService struct {
	repo     domain.TaskRepository
	renderer *domain.Renderer
	senders  map[domain.Channel]port.Sender
	locker   port.PassLocker
	cfg      DeliveryConfig
	tracer   trace.Tracer
	now      func() time.Time
}

func NewDeliveryService(repo domain.TaskRepository, renderer *domain.Renderer, senders map[domain.Channel]port.Sender, cfg DeliveryConfig) *DeliveryService {
	def := DefaultDeliveryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = def.DispatchTimeout
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = def.ClaimTTL
	}
	// 认领有效期必须覆盖投递超时加结果写入超时，否则任务会在投递途中被其他批次重新认领
	if floor := MinClaimTTL(cfg.DispatchTimeout); cfg.ClaimTTL <= floor {
		logger.Ctx(context.Background()).Warn().
			Dur("claim_ttl", cfg.ClaimTTL).Dur("dispatch_timeout", cfg.DispatchTimeout).
			Msg("claim TTL does not outlive a dispatch, raising it")
		cfg.ClaimTTL = floor + cfg.DispatchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	return &DeliveryService{
		repo:     repo,
		renderer: renderer,
		senders:  senders,
		cfg:      cfg,
		tracer:   otel.Tracer("notification-service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithPassLocker 启用跨实例的批次锁（ZooKeeper）
func (s *DeliveryService) WithPassLocker(l port.PassLocker) *DeliveryService {
	s.locker = l
	return s
}

func (s *DeliveryService) WithClock(now func() time.Time) *DeliveryService {
	s.now = now
	return s
}

func (s *DeliveryService) DefaultBatch() int {
	return s.cfg.MaxBatch
}

// DeliverDue 处理最多 maxBatch 个到期任务，每个被认领的任务都会产生一条结果。
// 单个任务的失败不影响同批次的其他任务。
func (s *DeliveryService) DeliverDue(ctx context.Context, maxBatch int) ([]DeliveryResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.DeliverDue")
	defer span.End()

	if maxBatch <= 0 {
		return nil, domain.ErrInvalidBatch
	}
	if maxBatch > s.cfg.MaxBatch {
		maxBatch = s.cfg.MaxBatch
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, deliveryLockName)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pass lock")
			return nil, fmt.Errorf("acquire delivery lock: %w", err)
		}
		defer release()
	}

	tasks, err := s.repo.ClaimDue(ctx, s.now(), maxBatch, s.cfg.ClaimTTL)
	if err != nil && len(tasks) == 0 {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim")
		return nil, err
	}
	if err != nil {
		// 部分认领成功：已认领的任务照常处理，其余留给下一批
		logger.Ctx(ctx).Error().Err(err).Int("claimed", len(tasks)).Msg("claim interrupted")
	}
	span.SetAttributes(attribute.Int("notification.claimed", len(tasks)))

	results := make([]DeliveryResult, len(tasks))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = s.process(ctx, task)
			return nil
		})
	}
	g.Wait()

	sent := 0
	for _, r := range results {
		if r.Outcome == OutcomeSent {
			sent++
		}
	}
	logger.Ctx(ctx).Info().Int("processed", len(results)).Int("sent", sent).Msg("📬 delivery pass finished")
	return results, nil
}

func (s *DeliveryService) process(ctx context.Context, task *domain.Task) DeliveryResult {
	ctx, span := s.tracer.Start(ctx, "app.deliverTask", trace.WithAttributes(
		attribute.String("notification.id", task.ID),
		attribute.String("notification.channel", string(task.Channel)),
		attribute.String("notification.template", task.Template),
	))
	defer span.End()

	res := DeliveryResult{TaskID: task.ID, Channel: string(task.Channel), Template: task.Template, Attempts: task.Attempts}

	var err error
	if task.Attempts >= s.cfg.MaxAttempts {
		// 认领次数已用完（前几次投递都没能写回结果），不再投递
		err = fmt.Errorf("%w after %d attempts", domain.ErrAbandoned, task.Attempts)
	} else {
		var msg *domain.Message
		if msg, err = s.renderer.Render(task); err == nil {
			err = s.dispatch(ctx, task, msg)
		}
	}

	// 结果写入不随调用方取消
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
	defer cancel()
	now := s.now()

	switch {
	case err == nil:
		res.Outcome = OutcomeSent
		err = s.repo.MarkSent(writeCtx, task.ID, task.ClaimToken, now)

	case errors.Is(err, domain.ErrAbandoned):
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		err = s.repo.MarkFailed(writeCtx, task.ID, task.ClaimToken, task.Attempts, res.Error, now)

	case errors.Is(err, domain.ErrRender) || errors.Is(err, domain.ErrNoSender):
		res.Attempts = task.Attempts + 1
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		err = s.repo.MarkFailed(writeCtx, task.ID, task.ClaimToken, res.Attempts, res.Error, now)

	default:
		res.Attempts = task.Attempts + 1
		res.Error = err.Error()
		if res.Attempts >= s.cfg.MaxAttempts {
			res.Outcome = OutcomeFailed
			err = s.repo.MarkFailed(writeCtx, task.ID, task.ClaimToken, res.Attempts, res.Error, now)
		} else {
			next := now.Add(s.cfg.Backoff.Delay(res.Attempts))
			res.Outcome = OutcomeRetry
			res.NextAttemptAt = &next
			err = s.repo.Reschedule(writeCtx, task.ID, task.ClaimToken, res.Attempts, next, res.Error)
		}
	}

	if err != nil {
		res.NextAttemptAt = nil
		if errors.Is(err, domain.ErrClaimLost) {
			res.Outcome = OutcomeClaimLost
			logger.Ctx(ctx).Warn().Str("task_id", task.ID).Msg("claim taken over by another pass")
		} else {
			res.Outcome = OutcomeError
			res.Error = err.Error()
			logger.Ctx(ctx).Error().Err(err).Str("task_id", task.ID).Msg("failed to record delivery outcome")
		}
	}
	if res.Outcome != OutcomeSent {
		span.SetStatus(codes.Error, res.Outcome)
	}
	metrics.DeliveriesTotal.WithLabelValues(res.Channel, res.Outcome).Inc()
	return res
}

func (s *DeliveryService) dispatch(ctx context.Context, task *domain.Task, msg *domain.Message) error {
	sender, ok := s.senders[task.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoSender, task.Channel)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	err := sender.Send(ctx, msg)
	metrics.DeliveryLatencyMS.WithLabelValues(string(task.Channel)).Observe(float64(time.Since(start).Milliseconds()))
	return err
}
