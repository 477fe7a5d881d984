package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput 报价请求不合法（负数金额、未知配送方式、负的商品尺寸等）
var ErrInvalidInput = errors.New("invalid shipping input")

// Method 归一化后的配送方式
type Method string

const (
	MethodPickup     Method = "PICKUP"
	MethodCourier    Method = "COURIER"
	MethodCourierCOD Method = "COURIER_COD"
)

var methodAliases = map[string]Method{
	"PICKUP":           MethodPickup,
	"STORE_PICKUP":     MethodPickup,
	"LOCAL_PICKUP":     MethodPickup,
	"HOME":             MethodCourier,
	"COURIER":          MethodCourier,
	"DELIVERY":         MethodCourier,
	"HOME_DELIVERY":    MethodCourier,
	"COD":              MethodCourierCOD,
	"COURIER_COD":      MethodCourierCOD,
	"HOME_COD":         MethodCourierCOD,
	"CASH_ON_DELIVERY": MethodCourierCOD,
}

// NormalizeMethod 忽略大小写，'-' 和空格视为 '_'
func NormalizeMethod(raw string) (Method, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if m, ok := methodAliases[key]; ok {
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown shipping method %q", ErrInvalidInput, raw)
}

// QuoteItem 是报价所需的单个购物车行
type QuoteItem struct {
	ProductID string
	Quantity  int
	WeightKg  float64
	LengthCm  float64
	WidthCm   float64
	HeightCm  float64
}

type QuoteRequest struct {
	Method   string
	Subtotal decimal.Decimal
	Items    []QuoteItem
}

// Breakdown 的各项之和恒等于 Quote.Cost
type Breakdown struct {
	Base    decimal.Decimal `json:"base"`
	PerItem decimal.Decimal `json:"perItem"`
	COD     decimal.Decimal `json:"cod"`
	Other   decimal.Decimal `json:"other"`
}

func (b Breakdown) Total() decimal.Decimal {
	return b.Base.Add(b.PerItem).Add(b.COD).Add(b.Other)
}

// RuleLine 记录一条规则对运费的贡献，金额可以为 0
type RuleLine struct {
	Rule      string          `json:"rule"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	ProductID string          `json:"productId,omitempty"`
}

type Quote struct {
	Method    Method          `json:"method"`
	Cost      decimal.Decimal `json:"cost"`
	Breakdown Breakdown       `json:"breakdown"`
	RuleTrace []RuleLine      `json:"ruleTrace"`
}

// TraceTotal 返回规则轨迹金额之和
func (q *Quote) TraceTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range q.RuleTrace {
		sum = sum.Add(l.Amount)
	}
	return sum
}

func (it QuoteItem) validate() error {
	if it.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be positive for %q", ErrInvalidInput, it.ProductID)
	}
	if it.WeightKg < 0 || it.LengthCm < 0 || it.WidthCm < 0 || it.HeightCm < 0 {
		return fmt.Errorf("%w: negative weight or dimension for %q", ErrInvalidInput, it.ProductID)
	}
	return nil
}

// billableKg = max(实际重量, 体积重量)
func (it QuoteItem) billableKg(divisor float64) float64 {
	if divisor <= 0 || it.LengthCm <= 0 || it.WidthCm <= 0 || it.HeightCm <= 0 {
		return it.WeightKg
	}
	volumetric := it.LengthCm * it.WidthCm * it.HeightCm / divisor
	if volumetric > it.WeightKg {
		return volumetric
	}
	return it.WeightKg
}

func (it QuoteItem) longestSideCm() float64 {
	longest := it.LengthCm
	if it.WidthCm > longest {
		longest = it.WidthCm
	}
	if it.HeightCm > longest {
		longest = it.HeightCm
	}
	return longest
}
