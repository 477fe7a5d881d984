package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/shipping/domain"
	"storefront/internal/service/shipping/domain/port"
)

const Currency = "EUR"

// ShippingService 包装报价引擎，负责追踪、指标和购物车商品解析
type ShippingService struct {
	engine  *domain.Engine
	catalog port.Catalog
	tracer  trace.Tracer
}

func NewShippingService(engine *domain.Engine, catalog port.Catalog) *ShippingService {
	return &ShippingService{
		engine:  engine,
		catalog: catalog,
		tracer:  otel.Tracer("shipping-service"),
	}
}

// Quote 对已经解析好的购物车报价，下单事务内也调用它
func (s *ShippingService) Quote(ctx context.Context, req domain.QuoteRequest) (*domain.Quote, error) {
	_, span := s.tracer.Start(ctx, "ShippingService.Quote")
	defer span.End()

	q, err := s.engine.Quote(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("shipping.method", string(q.Method)),
		attribute.String("shipping.cost", q.Cost.StringFixed(2)),
		attribute.Int("shipping.rule_lines", len(q.RuleTrace)),
	)
	metrics.ShippingQuotes.WithLabelValues(string(q.Method)).Inc()
	return q, nil
}

// QuoteCart 根据商品 ID 查询重量、尺寸和价格后报价
func (s *ShippingService) QuoteCart(ctx context.Context, req *QuoteCartRequest) (*QuoteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ShippingService.QuoteCart")
	defer span.End()

	quoteReq := domain.QuoteRequest{Method: req.Method}
	if req.Subtotal != nil {
		quoteReq.Subtotal = *req.Subtotal
	}

	if len(req.Items) > 0 {
		if s.catalog == nil {
			return nil, fmt.Errorf("%w: item lookup is not available", domain.ErrInvalidInput)
		}
		ids := make([]string, 0, len(req.Items))
		for _, line := range req.Items {
			ids = append(ids, line.ProductID)
		}
		found, err := s.catalog.LookupItems(ctx, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		subtotal := decimal.Zero
		for _, line := range req.Items {
			item, ok := found[line.ProductID]
			if !ok {
				return nil, fmt.Errorf("%w: unknown product %q", domain.ErrInvalidInput, line.ProductID)
			}
			if line.Quantity < 1 {
				return nil, fmt.Errorf("%w: quantity must be positive for %q", domain.ErrInvalidInput, line.ProductID)
			}
			subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			quoteReq.Items = append(quoteReq.Items, domain.QuoteItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				WeightKg:  item.WeightKg,
				LengthCm:  item.LengthCm,
				WidthCm:   item.WidthCm,
				HeightCm:  item.HeightCm,
			})
		}
		quoteReq.Subtotal = subtotal
	}

	q, err := s.Quote(ctx, quoteReq)
	if err != nil {
		logger.Ctx(ctx).Info().Err(err).Str("method", req.Method).Msg("shipping quote rejected")
		return nil, err
	}
	return &QuoteResponse{
		Method:    q.Method,
		Subtotal:  quoteReq.Subtotal,
		Cost:      q.Cost,
		Currency:  Currency,
		Breakdown: q.Breakdown,
		RuleTrace: q.RuleTrace,
	}, nil
}
