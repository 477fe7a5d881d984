// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// CheckoutTx 是结账事务内可用的操作，只能在 CheckoutStore.InTx 的回调里使用
type CheckoutTx interface {
	// LockProducts 加锁读取商品（SELECT ... FOR UPDATE），不存在的商品不出现在结果中
	LockProducts(ctx context.Context, productIDs []string) (map[string]*Product, error)

	// DecrementStock 条件扣减，影响 0 行时返回 *OutOfStockError
	DecrementStock(ctx context.Context, productID string, quantity int) error

	// InsertOrder 写入订单和明细；追踪码冲突时返回 ErrDuplicateToken
	InsertOrder(ctx context.Context, order *Order) error
}

// CheckoutStore 提供原子事务：fn 返回错误时所有写入回滚
type CheckoutStore interface {
	InTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// OrderRepository 定义了订单聚合在事务之外的读写
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByTrackingToken(ctx context.Context, token string) (*Order, error)

	// UpdateStatus 仅当当前状态为 from 时更新，否则返回 ErrInvalidTransition
	UpdateStatus(ctx context.Context, id string, from, to State, at time.Time) error

	ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*Order, error)
	ListMissingTrackingToken(ctx context.Context, limit int) ([]string, error)

	// SetTrackingToken 只填充空追踪码；冲突返回 ErrDuplicateToken
	SetTrackingToken(ctx context.Context, id, token string) (bool, error)
}

// ProducerRepository 查询生产者联系方式
type ProducerRepository interface {
	FindProducers(ctx context.Context, ids []string) (map[string]Producer, error)
}

// ProductRepository 是事务之外的商品读取与目录维护
type ProductRepository interface {
	FindProducts(ctx context.Context, ids []string) (map[string]*Product, error)
	UpsertCatalog(ctx context.Context, producers []Producer, products []Product) error
}
