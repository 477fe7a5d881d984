package adapter

import (
	"context"

	"storefront/internal/service/order/domain"
	shipport "storefront/internal/service/shipping/domain/port"
)

// CatalogAdapter 让运费报价接口可以按商品 ID 读取重量、尺寸和价格。
// 下架商品视为不存在。
type CatalogAdapter struct {
	products domain.ProductRepository
}

func NewCatalogAdapter(products domain.ProductRepository) *CatalogAdapter {
	return &CatalogAdapter{products: products}
}

func (a *CatalogAdapter) LookupItems(ctx context.Context, productIDs []string) (map[string]shipport.CatalogItem, error) {
	found, err := a.products.FindProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]shipport.CatalogItem, len(found))
	for id, p := range found {
		if !p.Active {
			continue
		}
		out[id] = shipport.CatalogItem{
			UnitPrice: p.Price,
			WeightKg:  p.WeightKg,
			LengthCm:  p.LengthCm,
			WidthCm:   p.WidthCm,
			HeightCm:  p.HeightCm,
		}
	}
	return out, nil
}
