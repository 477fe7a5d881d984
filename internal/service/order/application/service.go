// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	shipdomain "storefront/internal/service/shipping/domain"
)

const (
	maxTokenAttempts = 3
	backfillBatch    = 500
	reconcileLimit   = 1000
)

// OrderApplicationService 编排结账、追踪和状态流转用例
type OrderApplicationService struct {
	store     domain.CheckoutStore
	orders    domain.OrderRepository
	products  domain.ProductRepository
	producers domain.ProducerRepository
	shipping  port.ShippingService
	publisher port.OrderEventPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrderApplicationService(
	store domain.CheckoutStore,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	producers domain.ProducerRepository,
	shipping port.ShippingService,
	publisher port.OrderEventPublisher,
) *OrderApplicationService {
	return &OrderApplicationService{
		store: store, orders: orders, products: products, producers: producers,
		shipping: shipping, publisher: publisher,
		tracer: otel.Tracer("order-service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 替换时钟，供测试使用
func (s *OrderApplicationService) WithClock(now func() time.Time) *OrderApplicationService {
	s.now = now
	return s
}

// PlaceOrder 在一个事务内完成库存校验、扣减、运费计算和订单写入；
// 事务提交之后才发布 OrderCreated，发布失败不影响订单
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder")
	defer span.End()

	// 1. 结构校验，不触碰数据库
	lines, err := domain.NormalizeCart(req.Items)
	if err != nil {
		return nil, s.fail(span, "invalid_cart", err)
	}
	if err := req.Buyer.Validate(); err != nil {
		return nil, s.fail(span, "invalid_input", err)
	}
	method, err := shipdomain.NormalizeMethod(req.ShippingMethod)
	if err != nil {
		return nil, s.fail(span, "invalid_input", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}
	span.SetAttributes(attribute.Int("order.lines", len(lines)), attribute.String("shipping.method", string(method)))

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	// 2. 原子事务
	var order *domain.Order
	var quote *shipdomain.Quote
	err = s.store.InTx(ctx, func(tx domain.CheckoutTx) error {
		// a. 加锁读取最新库存
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		// b. 校验库存并冻结单价
		items := make([]domain.OrderItem, 0, len(lines))
		quoteItems := make([]shipdomain.QuoteItem, 0, len(lines))
		subtotal := decimal.Zero
		for _, l := range lines {
			p, ok := products[l.ProductID]
			if !ok || !p.Active {
				return &domain.OutOfStockError{ProductID: l.ProductID, Requested: l.Quantity}
			}
			if p.Stock < l.Quantity {
				return &domain.OutOfStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock}
			}
			item := domain.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				UnitPrice:   p.Price,
				ProducerID:  p.ProducerID,
			}
			items = append(items, item)
			subtotal = subtotal.Add(item.LineTotal())
			quoteItems = append(quoteItems, shipdomain.QuoteItem{
				ProductID: p.ID,
				Quantity:  l.Quantity,
				WeightKg:  p.WeightKg,
				LengthCm:  p.LengthCm,
				WidthCm:   p.WidthCm,
				HeightCm:  p.HeightCm,
			})
		}

		// c. 运费
		q, err := s.shipping.Quote(ctx, shipdomain.QuoteRequest{Method: string(method), Subtotal: subtotal, Items: quoteItems})
		if err != nil {
			if errors.Is(err, shipdomain.ErrInvalidInput) {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			return err
		}

		// d. 条件扣减，第二道防超卖
		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		// e. 写订单；追踪码冲突时重新生成
		now := s.now()
		o := &domain.Order{
			ID:             uuid.NewString(),
			Status:         domain.StatePaid,
			Buyer:          req.Buyer,
			ShippingMethod: string(method),
			Subtotal:       subtotal,
			ShippingCost:   q.Cost,
			Total:          subtotal.Add(q.Cost),
			Currency:       domain.Currency,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		for attempt := 1; ; attempt++ {
			if o.TrackingToken, err = domain.NewTrackingToken(); err != nil {
				return err
			}
			err = tx.InsertOrder(ctx, o)
			if err == nil {
				break
			}
			if !errors.Is(err, domain.ErrDuplicateToken) || attempt >= maxTokenAttempts {
				return err
			}
			logger.Ctx(ctx).Warn().Int("attempt", attempt).Msg("tracking token collision, regenerating")
		}
		order, quote = o, q
		return nil
	})
	if err != nil {
		return nil, s.fail(span, outcomeOf(err), err)
	}

	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.total", order.Total.StringFixed(2)))
	metrics.CheckoutTotal.WithLabelValues("created").Inc()
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("buyer_email", logger.MaskEmail(order.Buyer.Email)).
		Str("total", order.Total.StringFixed(2)).
		Msg("✅ order placed")

	// 3. 提交之后发布事件
	s.publishCreated(ctx, order)

	return &PlaceOrderResponse{
		OrderID:       order.ID,
		TrackingToken: order.TrackingToken,
		Status:        order.Status,
		Subtotal:      order.Subtotal,
		ShippingCost:  order.ShippingCost,
		Total:         order.Total,
		Currency:      order.Currency,
		Shipping:      quote.Breakdown,
		RuleTrace:     quote.RuleTrace,
	}, nil
}

// TrackOrder 按公开追踪码查询订单投影
func (s *OrderApplicationService) TrackOrder(ctx context.Context, token string) (*TrackingView, error) {
	ctx, span := s.tracer.Start(ctx, "app.TrackOrder")
	defer span.End()

	if token == "" {
		return nil, domain.ErrOrderNotFound
	}
	o, err := s.orders.FindByTrackingToken(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	return toTrackingView(o), nil
}

// ChangeStatus 校验并执行状态流转，写库成功后发布 OrderStatusChanged
func (s *OrderApplicationService) ChangeStatus(ctx context.Context, orderID, status string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("order.status", status))

	next, err := domain.ParseState(status)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.TransitionTo(next, s.now()); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, from, next, o.UpdatedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("order_id", o.ID).Str("from", string(from)).Str("to", string(next)).Msg("order status changed")

	event := &domain.OrderStatusChanged{
		OrderID:       o.ID,
		TrackingToken: o.TrackingToken,
		Buyer:         o.Buyer,
		From:          from,
		To:            next,
		ChangedAt:     o.UpdatedAt,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		metrics.EventPublishFailures.WithLabelValues(domain.EventOrderStatusChanged).Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_id", o.ID).Msg("failed to publish status change")
	}
	return o, nil
}

// BackfillTrackingTokens 给历史订单补齐追踪码，返回更新的条数
func (s *OrderApplicationService) BackfillTrackingTokens(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.BackfillTrackingTokens")
	defer span.End()

	updated := 0
	for {
		ids, err := s.orders.ListMissingTrackingToken(ctx, backfillBatch)
		if err != nil {
			span.RecordError(err)
			return updated, err
		}
		if len(ids) == 0 {
			break
		}
		progressed := false
		for _, id := range ids {
			ok, err := s.assignToken(ctx, id)
			if err != nil {
				span.RecordError(err)
				return updated, err
			}
			if ok {
				updated++
				progressed = true
			}
		}
		if !progressed || len(ids) < backfillBatch {
			break
		}
	}
	span.SetAttributes(attribute.Int("orders.updated", updated))
	logger.Ctx(ctx).Info().Int("updated", updated).Msg("tracking token backfill finished")
	return updated, nil
}

func (s *OrderApplicationService) assignToken(ctx context.Context, id string) (bool, error) {
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := domain.NewTrackingToken()
		if err != nil {
			return false, err
		}
		ok, err := s.orders.SetTrackingToken(ctx, id, token)
		if errors.Is(err, domain.ErrDuplicateToken) {
			continue
		}
		return ok, err
	}
	return false, fmt.Errorf("order %s: %w after %d attempts", id, domain.ErrDuplicateToken, maxTokenAttempts)
}

// RecentOrderEvents 重建 since 之后创建的订单的 OrderCreated 事件，用于通知补偿
func (s *OrderApplicationService) RecentOrderEvents(ctx context.Context, since time.Time) ([]*domain.OrderCreated, error) {
	ctx, span := s.tracer.Start(ctx, "app.RecentOrderEvents")
	defer span.End()

	orders, err := s.orders.ListCreatedSince(ctx, since, reconcileLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	idSet := make(map[string]struct{})
	var producerIDs []string
	for _, o := range orders {
		for _, id := range o.ProducerIDs() {
			if _, ok := idSet[id]; !ok {
				idSet[id] = struct{}{}
				producerIDs = append(producerIDs, id)
			}
		}
	}
	producers, err := s.producers.FindProducers(ctx, producerIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	events := make([]*domain.OrderCreated, 0, len(orders))
	for _, o := range orders {
		events = append(events, domain.NewOrderCreated(o, producers))
	}
	return events, nil
}

// SeedDemoCatalog 写入开发环境的演示目录
func (s *OrderApplicationService) SeedDemoCatalog(ctx context.Context) (int, error) {
	producers, products := demoCatalog()
	if err := s.products.UpsertCatalog(ctx, producers, products); err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *OrderApplicationService) publishCreated(ctx context.Context, order *domain.Order) {
	producers, err := s.producers.FindProducers(ctx, order.ProducerIDs())
	if err != nil {
		// 生产者通知会在对账时补发
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("failed to load producer contacts")
		producers = nil
	}
	if err := s.publisher.PublishOrderCreated(ctx, domain.NewOrderCreated(order, producers)); err != nil {
		metrics.EventPublishFailures.WithLabelValues(domain.EventOrderCreated).Inc()
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("failed to publish OrderCreated, reconcile will re-enqueue")
	}
}

func (s *OrderApplicationService) fail(span trace.Span, outcome string, err error) error {
	metrics.CheckoutTotal.WithLabelValues(outcome).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrInvalidCart):
		return "invalid_cart"
	default:
		return "error"
	}
}
