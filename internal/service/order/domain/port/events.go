package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// OrderEventPublisher 是订单事件的出站端口，只在事务提交之后调用
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *domain.OrderCreated) error
	PublishOrderStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error
}
