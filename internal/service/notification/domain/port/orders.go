package port

import (
	"context"
	"time"

	orderdomain "storefront/internal/service/order/domain"
)

// OrderSource 为对账提供最近创建订单的 OrderCreated 事件
type OrderSource interface {
	RecentOrderEvents(ctx context.Context, since time.Time) ([]*orderdomain.OrderCreated, error)
}

// PassLocker 串行化跨实例的投递批次
type PassLocker interface {
	Acquire(ctx context.Context, name string) (release func(), err error)
}
