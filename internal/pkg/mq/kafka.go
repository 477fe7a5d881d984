// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// NewKafkaWriter 创建一个写入指定 topic 的 Writer，按 Key 做哈希分区，保证同一订单的事件有序
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewKafkaReader 创建一个消费者组 Reader，offset 由调用方显式提交
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// KafkaHeaderCarrier adapts kafka message headers to propagation.TextMapCarrier.
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

// InjectTraceContext 把当前 span 上下文写入消息头
func InjectTraceContext(ctx context.Context, headers *[]kafka.Header) {
	carrier := KafkaHeaderCarrier(*headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	*headers = carrier
}

// ExtractTraceContext 从消息头恢复上游的追踪上下文
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := KafkaHeaderCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &carrier)
}

// ProduceMessage 发送一条消息，并自动注入追踪上下文
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte) error {
	msg := kafka.Message{Key: key, Value: value}
	InjectTraceContext(ctx, &msg.Headers)
	return writer.WriteMessages(ctx, msg)
}
