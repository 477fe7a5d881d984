package infrastructure

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/ratelimit/domain"
)

// RateLimitCounterModel 对应 rate_limit_counters 表
type RateLimitCounterModel struct {
	ScopeKey    string    `gorm:"primaryKey;type:varchar(191)"`
	WindowStart time.Time `gorm:"not null"`
	Count       int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time
}

func (RateLimitCounterModel) TableName() string {
	return "rate_limit_counters"
}

func AllModels() []interface{} {
	return []interface{}{&RateLimitCounterModel{}}
}

// GormCounterStore 用行锁串行化同一个键的并发请求
type GormCounterStore struct {
	db *gorm.DB
}

func NewGormCounterStore(db *gorm.DB) *GormCounterStore {
	return &GormCounterStore{db: db}
}

func (s *GormCounterStore) Consume(ctx context.Context, key string, now time.Time, cost int, p domain.Policy) (domain.Decision, error) {
	var decision domain.Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 确保行存在；新插入的行 count=0，表示这是该键的第一次命中
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&RateLimitCounterModel{ScopeKey: key, WindowStart: now, CreatedAt: now})
		if res.Error != nil {
			return pkgerrors.Wrap(res.Error, "ensure rate limit counter")
		}
		inserted := res.RowsAffected > 0

		// 2. 加锁读取
		var m RateLimitCounterModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope_key = ?", key).
			Take(&m).Error
		if err != nil {
			return pkgerrors.Wrap(err, "lock rate limit counter")
		}

		// 3. 判断并写回
		c := domain.Counter{Key: m.ScopeKey, WindowStart: m.WindowStart, Count: m.Count, CreatedAt: m.CreatedAt}
		d, write := domain.Apply(&c, !inserted, now, cost, p)
		decision = d
		if !write {
			return nil
		}
		err = tx.Model(&RateLimitCounterModel{}).
			Where("scope_key = ?", key).
			Updates(map[string]interface{}{
				"window_start": c.WindowStart,
				"count":        c.Count,
				"created_at":   c.CreatedAt,
			}).Error
		return pkgerrors.Wrap(err, "update rate limit counter")
	})
	return decision, err
}

func (s *GormCounterStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&RateLimitCounterModel{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(res.Error, "purge rate limit counters")
	}
	return res.RowsAffected, nil
}
