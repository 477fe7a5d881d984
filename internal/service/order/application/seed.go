package application

import (
	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
)

// demoCatalog 是开发环境使用的演示数据，ID 固定以便重复写入
func demoCatalog() ([]domain.Producer, []domain.Product) {
	producers := []domain.Producer{
		{ID: "prod-olive-grove", Name: "Olive Grove Co-op", Email: "orders@olive-grove.example"},
		{ID: "prod-mountain-honey", Name: "Mountain Honey", Email: "hello@mountain-honey.example"},
	}
	products := []domain.Product{
		{ID: "sku-olive-oil-1l", Name: "Extra virgin olive oil 1L", Price: decimal.RequireFromString("12.90"), Stock: 40, Active: true, ProducerID: "prod-olive-grove", WeightKg: 1.1, LengthCm: 8, WidthCm: 8, HeightCm: 30},
		{ID: "sku-olive-oil-5l", Name: "Extra virgin olive oil 5L", Price: decimal.RequireFromString("49.00"), Stock: 12, Active: true, ProducerID: "prod-olive-grove", WeightKg: 5.4, LengthCm: 18, WidthCm: 12, HeightCm: 32},
		{ID: "sku-kalamata-olives", Name: "Kalamata olives 500g", Price: decimal.RequireFromString("6.50"), Stock: 80, Active: true, ProducerID: "prod-olive-grove", WeightKg: 0.6, LengthCm: 10, WidthCm: 10, HeightCm: 12},
		{ID: "sku-thyme-honey", Name: "Thyme honey 450g", Price: decimal.RequireFromString("9.80"), Stock: 60, Active: true, ProducerID: "prod-mountain-honey", WeightKg: 0.55, LengthCm: 8, WidthCm: 8, HeightCm: 11},
		{ID: "sku-honey-crate", Name: "Honey crate (12 jars)", Price: decimal.RequireFromString("105.00"), Stock: 3, Active: true, ProducerID: "prod-mountain-honey", WeightKg: 7.2, LengthCm: 40, WidthCm: 30, HeightCm: 15},
		{ID: "sku-beeswax-candle", Name: "Beeswax candle", Price: decimal.RequireFromString("7.00"), Stock: 0, Active: false, ProducerID: "prod-mountain-honey", WeightKg: 0.3},
	}
	return producers, products
}
