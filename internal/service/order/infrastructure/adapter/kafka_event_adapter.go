package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// KafkaEventAdapter 把订单事件写入 order-events topic，以订单 ID 为 key 保证同一订单有序
type KafkaEventAdapter struct {
	writer *kafka.Writer
}

func NewKafkaEventAdapter(writer *kafka.Writer) *KafkaEventAdapter {
	return &KafkaEventAdapter{writer: writer}
}

func (a *KafkaEventAdapter) PublishOrderCreated(ctx context.Context, event *domain.OrderCreated) error {
	return a.produce(ctx, event.OrderID, domain.OrderEvent{Type: domain.EventOrderCreated, Created: event})
}

func (a *KafkaEventAdapter) PublishOrderStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	return a.produce(ctx, event.OrderID, domain.OrderEvent{Type: domain.EventOrderStatusChanged, StatusChanged: event})
}

func (a *KafkaEventAdapter) produce(ctx context.Context, key string, envelope domain.OrderEvent) error {
	eventBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", envelope.Type, err)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(key), eventBytes)
}

// Close 关闭底层的 Kafka writer
func (a *KafkaEventAdapter) Close() error {
	return a.writer.Close()
}
