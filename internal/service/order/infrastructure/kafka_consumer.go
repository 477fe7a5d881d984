// internal/service/order/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// StatusChanger 是消费者驱动的应用服务能力
type StatusChanger interface {
	ChangeStatus(ctx context.Context, orderID, status string) (*domain.Order, error)
}

// MessageReader 抽象 kafka.Reader，便于测试
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusCommandConsumer 是一个驱动适配器：监听管理端写入的状态变更命令并驱动应用服务
type StatusCommandConsumer struct {
	reader MessageReader
	appSvc StatusChanger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	retryBase time.Duration
	retryMax  time.Duration
}

func NewStatusCommandConsumer(reader MessageReader, appSvc StatusChanger) *StatusCommandConsumer {
	return &StatusCommandConsumer{reader: reader, appSvc: appSvc, retryBase: 500 * time.Millisecond, retryMax: 30 * time.Second}
}

// Start 在后台 goroutine 中消费，直到 Stop 或 ctx 取消
func (c *StatusCommandConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Msg("✅ order status consumer started")
		for {
			// 使用 FetchMessage 而不是 ReadMessage，处理完成后再显式提交
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 order status consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			// 临时错误原地退避重试；退出时不提交，重启后从该消息重新消费
			for attempt := 1; ; attempt++ {
				err := c.processMessage(ctx, msg)
				if err == nil {
					break
				}
				delay := c.retryDelay(attempt)
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Int("attempt", attempt).
					Dur("retry_in", delay).Msg("status command failed, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
			}
		}
	}()
}

func (c *StatusCommandConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		logger.Ctx(context.Background()).Warn().Err(err).Msg("failed to close kafka reader")
	}
}

func (c *StatusCommandConsumer) retryDelay(attempt int) time.Duration {
	d := c.retryBase
	for i := 1; i < attempt && d < c.retryMax; i++ {
		d *= 2
	}
	return min(d, c.retryMax)
}

// processMessage 反序列化命令并调用应用服务。
// 格式错误和业务拒绝的命令记录后跳过（返回 nil）；其他错误返回给调用方重试。
func (c *StatusCommandConsumer) processMessage(parentCtx context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var cmd domain.StatusChangeCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("malformed status command skipped")
		return nil
	}

	_, err := c.appSvc.ChangeStatus(ctx, cmd.OrderID, cmd.Status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrOrderNotFound) || errors.Is(err, domain.ErrInvalidInput):
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", cmd.OrderID).Str("status", cmd.Status).Msg("status command rejected")
		return nil
	default:
		return err
	}
}
