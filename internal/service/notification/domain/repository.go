package domain

import (
	"context"
	"time"
)

// TaskRepository 是通知发件箱的持久化端口。
// 认领之后的每一次状态写入都以 claimToken 为条件，认领被他人接管时返回 ErrClaimLost。
type TaskRepository interface {
	// Enqueue 写入 PENDING 任务；同指纹的未失败任务已存在时返回其 id 且 created=false
	Enqueue(ctx context.Context, task *Task) (id string, created bool, err error)
	// ClaimDue 按 (created_at, id) 认领最多 limit 个到期任务并置为 SENDING
	ClaimDue(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*Task, error)
	MarkSent(ctx context.Context, id, claimToken string, at time.Time) error
	Reschedule(ctx context.Context, id, claimToken string, attempts int, next time.Time, lastErr string) error
	// MarkFailed 置为 FAILED 并释放指纹，之后相同内容可以重新入队
	MarkFailed(ctx context.Context, id, claimToken string, attempts int, lastErr string, at time.Time) error
	FindByID(ctx context.Context, id string) (*Task, error)
}
