package domain

import "github.com/shopspring/decimal"

// Product 是结账时加锁读取的库存行
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	Stock      int
	Active     bool
	ProducerID string
	WeightKg   float64
	LengthCm   float64
	WidthCm    float64
	HeightCm   float64
}

// Producer 是接收新订单通知的生产者
type Producer struct {
	ID    string
	Name  string
	Email string
}
