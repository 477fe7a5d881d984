package adapter

import (
	"context"
	"errors"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// OrderEventHandler 是进程内的订单事件消费者（通知入队）
type OrderEventHandler interface {
	HandleOrderCreated(ctx context.Context, event *domain.OrderCreated) error
	HandleOrderStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error
}

// InProcessNotifier 同步调用通知服务的入队逻辑
type InProcessNotifier struct {
	handler OrderEventHandler
}

func NewInProcessNotifier(handler OrderEventHandler) *InProcessNotifier {
	return &InProcessNotifier{handler: handler}
}

func (n *InProcessNotifier) PublishOrderCreated(ctx context.Context, event *domain.OrderCreated) error {
	return n.handler.HandleOrderCreated(ctx, event)
}

func (n *InProcessNotifier) PublishOrderStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	return n.handler.HandleOrderStatusChanged(ctx, event)
}

// FanoutPublisher 依次调用所有发布者，一个失败不影响其他发布者
type FanoutPublisher struct {
	publishers []port.OrderEventPublisher
}

func NewFanoutPublisher(publishers ...port.OrderEventPublisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

func (f *FanoutPublisher) PublishOrderCreated(ctx context.Context, event *domain.OrderCreated) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishOrderCreated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutPublisher) PublishOrderStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishOrderStatusChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
