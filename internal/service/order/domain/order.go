// internal/service/order/domain/order.go
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const Currency = "EUR"

// Buyer 是下单人的联系方式，至少要有 email 或 phone 之一
type Buyer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

func (b Buyer) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: buyer name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(b.Email) == "" && strings.TrimSpace(b.Phone) == "" {
		return fmt.Errorf("%w: buyer email or phone is required", ErrInvalidInput)
	}
	if b.Email != "" {
		if _, err := mail.ParseAddress(b.Email); err != nil {
			return fmt.Errorf("%w: invalid buyer email", ErrInvalidInput)
		}
	}
	return nil
}

// OrderItem 一旦写入就不再修改，单价是下单时的快照
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	ProducerID  string          `json:"producerId"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order 是订单聚合的根实体
type Order struct {
	ID             string
	Status         State
	Buyer          Buyer
	ShippingMethod string
	Subtotal       decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	TrackingToken  string
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionTo 只做状态流转校验，不负责持久化
func (o *Order) TransitionTo(next State, at time.Time) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// ProducerIDs 返回订单涉及的生产者，已去重并排序
func (o *Order) ProducerIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range o.Items {
		if it.ProducerID == "" {
			continue
		}
		if _, ok := seen[it.ProducerID]; !ok {
			seen[it.ProducerID] = struct{}{}
			ids = append(ids, it.ProducerID)
		}
	}
	sort.Strings(ids)
	return ids
}

// CartLine 是结账请求中的一行
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// NormalizeCart 校验购物车并合并重复商品，返回按商品 ID 排序的结果
func NormalizeCart(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	merged := make(map[string]int, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInvalidCart)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for %s", ErrInvalidCart, id)
		}
		if l.Quantity > math.MaxInt-merged[id] {
			return nil, fmt.Errorf("%w: quantity too large for %s", ErrInvalidCart, id)
		}
		merged[id] += l.Quantity
	}
	out := make([]CartLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// NewTrackingToken 生成 32 位十六进制的公开追踪码
func NewTrackingToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tracking token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
