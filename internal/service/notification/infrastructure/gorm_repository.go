package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/database"
	"storefront/internal/service/notification/domain"
)

// GormTaskRepository 是通知发件箱的 MySQL 实现
type GormTaskRepository struct {
	db *gorm.DB
}

func NewGormTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

// Enqueue 先查活跃指纹，再插入；并发插入由唯一索引兜底，冲突后重新读取已有任务
func (r *GormTaskRepository) Enqueue(ctx context.Context, task *domain.Task) (string, bool, error) {
	if id, err := r.activeID(ctx, task.Fingerprint); err != nil || id != "" {
		return id, false, err
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	model, err := fromDomainTask(task)
	if err != nil {
		return "", false, err
	}
	err = r.db.WithContext(ctx).Create(model).Error
	if database.IsDuplicateKey(err, activeFingerprintIndex) {
		id, err := r.activeID(ctx, task.Fingerprint)
		if err != nil {
			return "", false, err
		}
		if id == "" {
			// 冲突的任务在两次查询之间失败并释放了指纹
			return "", false, pkgerrors.Errorf("fingerprint %s released during enqueue", task.Fingerprint)
		}
		return id, false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "insert notification task")
	}
	return task.ID, true, nil
}

func (r *GormTaskRepository) activeID(ctx context.Context, fingerprint string) (string, error) {
	var m NotificationTaskModel
	err := r.db.WithContext(ctx).
		Select("id").
		Where("active_fingerprint = ?", fingerprint).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(err, "find active notification task")
	}
	return m.ID, nil
}

// ClaimDue 先按 (created_at, id) 选出候选，再逐个做条件更新；条件不再成立说明被其他批次抢先认领
func (r *GormTaskRepository) ClaimDue(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*domain.Task, error) {
	staleBefore := now.Add(-claimTTL)
	dueCond := "(status = ? AND scheduled_for <= ?) OR (status = ? AND claimed_at <= ?)"
	dueArgs := []interface{}{string(domain.StatusPending), now, string(domain.StatusSending), staleBefore}

	var candidates []NotificationTaskModel
	err := r.db.WithContext(ctx).
		Where(dueCond, dueArgs...).
		Order("created_at, id").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "select due notification tasks")
	}

	claimed := make([]*domain.Task, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		token := uuid.NewString()
		updates := map[string]interface{}{
			"status":      string(domain.StatusSending),
			"claim_token": token,
			"claimed_at":  now,
			"updated_at":  now,
		}
		q := r.db.WithContext(ctx).
			Model(&NotificationTaskModel{}).
			Where("id = ?", m.ID).
			Where(dueCond, dueArgs...)
		if m.Status == string(domain.StatusSending) {
			// 过期认领说明上一次投递没有写回结果，计为一次尝试
			updates["attempts"] = m.Attempts + 1
			q = q.Where("attempts = ?", m.Attempts)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return claimed, pkgerrors.Wrapf(res.Error, "claim notification task %s", m.ID)
		}
		if res.RowsAffected == 0 {
			continue
		}
		task, err := toDomainTask(m)
		if err != nil {
			return claimed, pkgerrors.Wrapf(err, "decode notification task %s", m.ID)
		}
		claimedAt := now
		if attempts, ok := updates["attempts"].(int); ok {
			task.Attempts = attempts
		}
		task.Status = domain.StatusSending
		task.ClaimToken = token
		task.ClaimedAt = &claimedAt
		task.UpdatedAt = now
		claimed = append(claimed, task)
	}
	return claimed, nil
}

func (r *GormTaskRepository) MarkSent(ctx context.Context, id, claimToken string, at time.Time) error {
	return r.finish(ctx, id, claimToken, map[string]interface{}{
		"status":     string(domain.StatusSent),
		"sent_at":    at,
		"last_error": "",
		"updated_at": at,
	})
}

func (r *GormTaskRepository) Reschedule(ctx context.Context, id, claimToken string, attempts int, next time.Time, lastErr string) error {
	return r.finish(ctx, id, claimToken, map[string]interface{}{
		"status":        string(domain.StatusPending),
		"attempts":      attempts,
		"scheduled_for": next,
		"last_error":    lastErr,
		"claim_token":   "",
		"claimed_at":    nil,
	})
}

func (r *GormTaskRepository) MarkFailed(ctx context.Context, id, claimToken string, attempts int, lastErr string, at time.Time) error {
	return r.finish(ctx, id, claimToken, map[string]interface{}{
		"status":             string(domain.StatusFailed),
		"attempts":           attempts,
		"last_error":         lastErr,
		"active_fingerprint": nil,
		"updated_at":         at,
	})
}

// finish 只有仍持有认领令牌时才写入
func (r *GormTaskRepository) finish(ctx context.Context, id, claimToken string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&NotificationTaskModel{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, string(domain.StatusSending), claimToken).
		Updates(fields)
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "update notification task %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var m NotificationTaskModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find notification task")
	}
	return toDomainTask(&m)
}
