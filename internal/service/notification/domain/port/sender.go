package port

import (
	"context"

	"storefront/internal/service/notification/domain"
)

// Sender 把渲染好的消息交给外部服务商；超时由调用方的 ctx 控制
type Sender interface {
	Send(ctx context.Context, msg *domain.Message) error
}
