// internal/service/notification/application/notification_service.go
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

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/domain/port"
	orderdomain "storefront/internal/service/order/domain"
)

// NotificationService 负责通知入队：订单事件 -> 发件箱任务
type NotificationService struct {
	repo     domain.TaskRepository
	renderer *domain.Renderer
	orders   port.OrderSource
	tracer   trace.Tracer
	now      func() time.Time
}

func NewNotificationService(repo domain.TaskRepository, renderer *domain.Renderer, orders port.OrderSource) *NotificationService {
	return &NotificationService{
		repo:     repo,
		renderer: renderer,
		orders:   orders,
		tracer:   otel.Tracer("notification-service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *NotificationService) WithClock(now func() time.Time) *NotificationService {
	s.now = now
	return s
}

// SetOrderSource 在组合根中打破 订单服务 <-> 通知服务 的构造循环
func (s *NotificationService) SetOrderSource(orders port.OrderSource) {
	s.orders = orders
}

// Enqueue 写入一条通知；同内容的未失败任务已存在时返回 Duplicate=true，不视为错误
func (s *NotificationService) Enqueue(ctx context.Context, channel domain.Channel, recipient, template string, payload map[string]interface{}) (*EnqueueResult, error) {
	if !s.renderer.Has(channel, template) {
		metrics.NotificationsEnqueued.WithLabelValues(string(channel), "error").Inc()
		return nil, fmt.Errorf("%w: %w %q for %s", domain.ErrInvalidTask, domain.ErrUnknownTemplate, template, channel)
	}
	task, err := domain.NewTask(channel, recipient, template, payload, s.now())
	if err != nil {
		metrics.NotificationsEnqueued.WithLabelValues(string(channel), "error").Inc()
		return nil, err
	}

	id, created, err := s.repo.Enqueue(ctx, task)
	if err != nil {
		metrics.NotificationsEnqueued.WithLabelValues(string(channel), "error").Inc()
		return nil, err
	}
	if !created {
		metrics.NotificationsEnqueued.WithLabelValues(string(channel), "duplicate").Inc()
		logger.Ctx(ctx).Debug().Str("task_id", id).Str("template", template).Msg("duplicate notification suppressed")
		return &EnqueueResult{TaskID: id, Duplicate: true}, nil
	}
	metrics.NotificationsEnqueued.WithLabelValues(string(channel), "created").Inc()
	return &EnqueueResult{TaskID: id}, nil
}

// HandleOrderCreated 为买家（邮件、短信）和每个生产者入队下单通知
func (s *NotificationService) HandleOrderCreated(ctx context.Context, event *orderdomain.OrderCreated) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleOrderCreated", trace.WithAttributes(attribute.String("order.id", event.OrderID)))
	defer span.End()

	_, _, err := s.enqueueOrderCreated(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue")
	}
	return err
}

func (s *NotificationService) enqueueOrderCreated(ctx context.Context, event *orderdomain.OrderCreated) (enqueued, duplicates int, err error) {
	var errs []error
	add := func(channel domain.Channel, recipient, template string, payload map[string]interface{}) {
		res, err := s.Enqueue(ctx, channel, recipient, template, payload)
		switch {
		case err != nil:
			errs = append(errs, err)
		case res.Duplicate:
			duplicates++
		default:
			enqueued++
		}
	}

	if event.Buyer.Email != "" {
		add(domain.ChannelEmail, event.Buyer.Email, domain.TemplateOrderCreatedEmail, buyerOrderPayload(event))
	} else {
		logger.Ctx(ctx).Warn().Str("order_id", event.OrderID).Msg("no buyer email, skipping confirmation email")
	}
	if event.Buyer.Phone != "" {
		add(domain.ChannelSMS, event.Buyer.Phone, domain.TemplateOrderCreatedSMS, map[string]interface{}{
			"orderId":       event.OrderID,
			"total":         event.Total.StringFixed(2),
			"currency":      event.Currency,
			"trackingToken": event.TrackingToken,
		})
	}
	for _, p := range event.Producers {
		if p.Email == "" {
			logger.Ctx(ctx).Warn().Str("order_id", event.OrderID).Str("producer_id", p.ID).Msg("producer has no email, skipping")
			continue
		}
		add(domain.ChannelEmail, p.Email, domain.TemplateProducerNewOrder, producerOrderPayload(event, p))
	}
	return enqueued, duplicates, errors.Join(errs...)
}

// HandleOrderStatusChanged 只对 SHIPPED 和 DELIVERED 通知买家
func (s *NotificationService) HandleOrderStatusChanged(ctx context.Context, event *orderdomain.OrderStatusChanged) error {
	var template string
	switch event.To {
	case orderdomain.StateShipped:
		template = domain.TemplateOrderShippedEmail
	case orderdomain.StateDelivered:
		template = domain.TemplateOrderDeliveredEmail
	default:
		return nil
	}
	if event.Buyer.Email == "" {
		logger.Ctx(ctx).Warn().Str("order_id", event.OrderID).Str("status", string(event.To)).Msg("no buyer email, skipping status notification")
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "app.HandleOrderStatusChanged", trace.WithAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("order.status", string(event.To)),
	))
	defer span.End()

	_, err := s.Enqueue(ctx, domain.ChannelEmail, event.Buyer.Email, template, map[string]interface{}{
		"orderId":       event.OrderID,
		"buyerName":     event.Buyer.Name,
		"trackingToken": event.TrackingToken,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue")
	}
	return err
}

// ReconcileNotifications 重新为 since 之后创建的订单入队下单通知；已存在的任务被去重
func (s *NotificationService) ReconcileNotifications(ctx context.Context, since time.Time) (*ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.ReconcileNotifications")
	defer span.End()

	if s.orders == nil {
		return nil, errors.New("reconcile: no order source configured")
	}
	events, err := s.orders.RecentOrderEvents(ctx, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load orders")
		return nil, err
	}

	res := &ReconcileResult{Orders: len(events)}
	var errs []error
	for _, e := range events {
		n, dup, err := s.enqueueOrderCreated(ctx, e)
		res.Enqueued += n
		res.Duplicates += dup
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", e.OrderID, err))
		}
	}
	span.SetAttributes(
		attribute.Int("reconcile.orders", res.Orders),
		attribute.Int("reconcile.enqueued", res.Enqueued),
	)
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		return res, err
	}
	if res.Enqueued > 0 {
		logger.Ctx(ctx).Warn().Int("enqueued", res.Enqueued).Time("since", since).Msg("⚠️ reconcile re-enqueued missing notifications")
	}
	return res, nil
}

func buyerOrderPayload(e *orderdomain.OrderCreated) map[string]interface{} {
	items := make([]interface{}, 0, len(e.Items))
	for _, it := range e.Items {
		items = append(items, map[string]interface{}{
			"name":      it.ProductName,
			"quantity":  it.Quantity,
			"lineTotal": it.LineTotal().StringFixed(2),
		})
	}
	return map[string]interface{}{
		"orderId":        e.OrderID,
		"buyerName":      e.Buyer.Name,
		"items":          items,
		"shippingMethod": e.ShippingMethod,
		"shippingCost":   e.ShippingCost.StringFixed(2),
		"total":          e.Total.StringFixed(2),
		"currency":       e.Currency,
		"trackingToken":  e.TrackingToken,
	}
}

func producerOrderPayload(e *orderdomain.OrderCreated, p orderdomain.ProducerContact) map[string]interface{} {
	items := make([]interface{}, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, map[string]interface{}{
			"name":     it.ProductName,
			"quantity": it.Quantity,
		})
	}
	return map[string]interface{}{
		"producerName":   p.Name,
		"orderId":        e.OrderID,
		"items":          items,
		"buyerName":      e.Buyer.Name,
		"shippingMethod": e.ShippingMethod,
	}
}
