package application

import (
	"github.com/shopspring/decimal"

	"storefront/internal/service/shipping/domain"
)

type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// QuoteCartRequest 是 /api/shipping/quote 的请求体；带 items 时小计由商品价格算出
type QuoteCartRequest struct {
	Method   string           `json:"method"`
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Items    []CartLine       `json:"items"`
}

type QuoteResponse struct {
	Method    domain.Method     `json:"method"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Cost      decimal.Decimal   `json:"cost"`
	Currency  string            `json:"currency"`
	Breakdown domain.Breakdown  `json:"breakdown"`
	RuleTrace []domain.RuleLine `json:"ruleTrace"`
}
