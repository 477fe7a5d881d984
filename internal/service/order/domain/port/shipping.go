package port

import (
	"context"

	shipdomain "storefront/internal/service/shipping/domain"
)

// ShippingService 是运费报价的出站端口，结账事务内调用，必须是纯计算
type ShippingService interface {
	Quote(ctx context.Context, req shipdomain.QuoteRequest) (*shipdomain.Quote, error)
}
