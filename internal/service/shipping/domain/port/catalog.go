package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// CatalogItem 是报价时需要的商品快照
type CatalogItem struct {
	UnitPrice decimal.Decimal
	WeightKg  float64
	LengthCm  float64
	WidthCm   float64
	HeightCm  float64
}

// Catalog 按 ID 查询商品；不存在的商品不出现在返回的 map 中
type Catalog interface {
	LookupItems(ctx context.Context, productIDs []string) (map[string]CatalogItem, error)
}
