// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
	shipdomain "storefront/internal/service/shipping/domain"
)

// PlaceOrderRequest 是结账用例的输入
type PlaceOrderRequest struct {
	Buyer          domain.Buyer      `json:"buyer"`
	Items          []domain.CartLine `json:"items"`
	ShippingMethod string            `json:"shippingMethod"`
}

// PlaceOrderResponse 是结账成功后返回给客户端的数据
type PlaceOrderResponse struct {
	OrderID       string                `json:"orderId"`
	TrackingToken string                `json:"trackingToken"`
	Status        domain.State          `json:"status"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	ShippingCost  decimal.Decimal       `json:"shippingCost"`
	Total         decimal.Decimal       `json:"total"`
	Currency      string                `json:"currency"`
	Shipping      shipdomain.Breakdown  `json:"shippingBreakdown"`
	RuleTrace     []shipdomain.RuleLine `json:"shippingRuleTrace"`
}

// TrackingView 是公开追踪页可见的投影，不含买家信息
type TrackingView struct {
	Status         domain.State    `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	ShippingMethod string          `json:"shippingMethod"`
	ItemCount      int             `json:"itemCount"`
}

func toTrackingView(o *domain.Order) *TrackingView {
	return &TrackingView{
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Total:          o.Total,
		Currency:       o.Currency,
		ShippingMethod: o.ShippingMethod,
		ItemCount:      o.ItemCount(),
	}
}
