// internal/service/order/domain/event.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// ProducerContact 随 OrderCreated 一起发布，通知侧无需再查库
type ProducerContact struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Items []OrderItem `json:"items"`
}

// OrderCreated 在结账事务提交之后发布
type OrderCreated struct {
	OrderID        string            `json:"orderId"`
	TrackingToken  string            `json:"trackingToken"`
	Buyer          Buyer             `json:"buyer"`
	ShippingMethod string            `json:"shippingMethod"`
	Items          []OrderItem       `json:"items"`
	Producers      []ProducerContact `json:"producers"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	ShippingCost   decimal.Decimal   `json:"shippingCost"`
	Total          decimal.Decimal   `json:"total"`
	Currency       string            `json:"currency"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// OrderStatusChanged 在状态流转成功写库之后发布
type OrderStatusChanged struct {
	OrderID       string    `json:"orderId"`
	TrackingToken string    `json:"trackingToken"`
	Buyer         Buyer     `json:"buyer"`
	From          State     `json:"from"`
	To            State     `json:"to"`
	ChangedAt     time.Time `json:"changedAt"`
}

// OrderEvent 是写入 Kafka 的信封，Type 决定哪个字段有值
type OrderEvent struct {
	Type          string              `json:"type"`
	Created       *OrderCreated       `json:"created,omitempty"`
	StatusChanged *OrderStatusChanged `json:"statusChanged,omitempty"`
}

// StatusChangeCommand 由后台管理端写入 Kafka，请求变更订单状态
type StatusChangeCommand struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// NewOrderCreated 从已提交的订单构造事件
func NewOrderCreated(o *Order, producers map[string]Producer) *OrderCreated {
	ev := &OrderCreated{
		OrderID:        o.ID,
		TrackingToken:  o.TrackingToken,
		Buyer:          o.Buyer,
		ShippingMethod: o.ShippingMethod,
		Items:          o.Items,
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		Total:          o.Total,
		Currency:       o.Currency,
		CreatedAt:      o.CreatedAt,
	}
	for _, id := range o.ProducerIDs() {
		p, ok := producers[id]
		if !ok {
			continue
		}
		contact := ProducerContact{ID: p.ID, Name: p.Name, Email: p.Email}
		for _, it := range o.Items {
			if it.ProducerID == id {
				contact.Items = append(contact.Items, it)
			}
		}
		ev.Producers = append(ev.Producers, contact)
	}
	return ev
}
