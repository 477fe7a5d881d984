package infrastructure

import (
	"context"
	"errors"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/database"
	"storefront/internal/service/order/domain"
)

// GormStore 是订单相关仓储的 GORM 实现，同时实现了 CheckoutStore
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InTx 在一个数据库事务中执行 fn，fn 返回错误时整体回滚
func (s *GormStore) InTx(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormCheckoutTx{db: tx})
	})
}

type gormCheckoutTx struct {
	db *gorm.DB
}

// LockProducts 按 ID 排序加行锁，保证并发结账以相同顺序加锁，避免死锁
func (t *gormCheckoutTx) LockProducts(ctx context.Context, productIDs []string) (map[string]*domain.Product, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	var models []ProductModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "lock products")
	}
	out := make(map[string]*domain.Product, len(models))
	for i := range models {
		out[models[i].ID] = toDomainProduct(&models[i])
	}
	return out, nil
}

// DecrementStock 条件更新：只有商品在售且库存足够时才扣减
func (t *gormCheckoutTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	res := t.db.WithContext(ctx).
		Model(&ProductModel{}).
		Where("id = ? AND active = ? AND stock >= ?", productID, true, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "decrement stock of %s", productID)
	}
	if res.RowsAffected == 0 {
		return &domain.OutOfStockError{ProductID: productID, Requested: quantity}
	}
	return nil
}

func (t *gormCheckoutTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	err := t.db.WithContext(ctx).Create(fromDomainOrder(order)).Error
	if database.IsDuplicateKey(err, trackingTokenIndex) {
		return domain.ErrDuplicateToken
	}
	return pkgerrors.Wrap(err, "insert order")
}

func (s *GormStore) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *GormStore) FindByTrackingToken(ctx context.Context, token string) (*domain.Order, error) {
	return s.findOne(ctx, "tracking_token = ?", token)
}

func (s *GormStore) findOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	var model OrderModel
	err := s.db.WithContext(ctx).Preload("Items").Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "find order")
	}
	return toDomainOrder(&model), nil
}

// UpdateStatus 用 WHERE status = from 做乐观并发控制
func (s *GormStore) UpdateStatus(ctx context.Context, id string, from, to domain.State, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": at})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Wrapf(domain.ErrInvalidTransition, "order %s is no longer %s", id, from)
	}
	return nil
}

func (s *GormStore) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error) {
	var models []OrderModel
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("created_at >= ?", since).
		Order("created_at, id").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list recent orders")
	}
	out := make([]*domain.Order, 0, len(models))
	for i := range models {
		out = append(out, toDomainOrder(&models[i]))
	}
	return out, nil
}

func (s *GormStore) ListMissingTrackingToken(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("tracking_token IS NULL OR tracking_token = ?", "").
		Order("created_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, pkgerrors.Wrap(err, "list orders without tracking token")
}

func (s *GormStore) SetTrackingToken(ctx context.Context, id, token string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ? AND (tracking_token IS NULL OR tracking_token = ?)", id, "").
		UpdateColumn("tracking_token", token)
	if database.IsDuplicateKey(res.Error, trackingTokenIndex) {
		return false, domain.ErrDuplicateToken
	}
	if res.Error != nil {
		return false, pkgerrors.Wrap(res.Error, "set tracking token")
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) FindProducers(ctx context.Context, ids []string) (map[string]domain.Producer, error) {
	out := make(map[string]domain.Producer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []ProducerModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "find producers")
	}
	for _, m := range models {
		out[m.ID] = domain.Producer{ID: m.ID, Name: m.Name, Email: m.Email}
	}
	return out, nil
}

func (s *GormStore) FindProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var models []ProductModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "find products")
	}
	for i := range models {
		out[models[i].ID] = toDomainProduct(&models[i])
	}
	return out, nil
}

// UpsertCatalog 以主键幂等写入生产者和商品
func (s *GormStore) UpsertCatalog(ctx context.Context, producers []domain.Producer, products []domain.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range producers {
			m := ProducerModel{ID: p.ID, Name: p.Name, Email: p.Email}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
				return pkgerrors.Wrapf(err, "upsert producer %s", p.ID)
			}
		}
		for i := range products {
			m := fromDomainProduct(&products[i])
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(m).Error; err != nil {
				return pkgerrors.Wrapf(err, "upsert product %s", m.ID)
			}
		}
		return nil
	})
}
