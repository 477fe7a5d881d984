package infrastructure

import (
	"database/sql"

	"storefront/internal/service/order/domain"
)

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:         m.ID,
		Name:       m.Name,
		Price:      m.Price,
		Stock:      m.Stock,
		Active:     m.Active,
		ProducerID: m.ProducerID,
		WeightKg:   m.WeightKg,
		LengthCm:   m.LengthCm,
		WidthCm:    m.WidthCm,
		HeightCm:   m.HeightCm,
	}
}

func fromDomainProduct(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		Active:     p.Active,
		ProducerID: p.ProducerID,
		WeightKg:   p.WeightKg,
		LengthCm:   p.LengthCm,
		WidthCm:    p.WidthCm,
		HeightCm:   p.HeightCm,
	}
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:     m.ID,
		Status: domain.State(m.Status),
		Buyer: domain.Buyer{
			Name:  m.BuyerName,
			Phone: m.BuyerPhone,
			Email: m.BuyerEmail,
		},
		ShippingMethod: m.ShippingMethod,
		Subtotal:       m.Subtotal,
		ShippingCost:   m.ShippingCost,
		Total:          m.Total,
		Currency:       m.Currency,
		TrackingToken:  m.TrackingToken.String,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ProducerID:  it.ProducerID,
		})
	}
	return o
}

func fromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:             o.ID,
		Status:         string(o.Status),
		BuyerName:      o.Buyer.Name,
		BuyerPhone:     o.Buyer.Phone,
		BuyerEmail:     o.Buyer.Email,
		ShippingMethod: o.ShippingMethod,
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		Total:          o.Total,
		Currency:       o.Currency,
		TrackingToken:  sql.NullString{String: o.TrackingToken, Valid: o.TrackingToken != ""},
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ProducerID:  it.ProducerID,
		})
	}
	return m
}
