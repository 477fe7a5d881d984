package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/service/notification/domain"
)

// MemoryTaskRepository 是发件箱的内存实现，用于测试和无数据库的本地运行
type MemoryTaskRepository struct {
	mu     sync.Mutex
	tasks  map[string]*domain.Task
	active map[string]string // fingerprint -> task id
}

func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		tasks:  make(map[string]*domain.Task),
		active: make(map[string]string),
	}
}

func (r *MemoryTaskRepository) Enqueue(_ context.Context, task *domain.Task) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[task.Fingerprint]; ok {
		return id, false, nil
	}
	stored := cloneTask(task)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	task.ID = stored.ID
	r.tasks[stored.ID] = stored
	if stored.Status != domain.StatusFailed {
		r.active[stored.Fingerprint] = stored.ID
	}
	return stored.ID, true, nil
}

func (r *MemoryTaskRepository) ClaimDue(_ context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staleBefore := now.Add(-claimTTL)
	var due []*domain.Task
	for _, t := range r.tasks {
		switch {
		case t.Status == domain.StatusPending && !t.ScheduledFor.After(now):
			due = append(due, t)
		case t.Status == domain.StatusSending && t.ClaimedAt != nil && !t.ClaimedAt.After(staleBefore):
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.Task, 0, len(due))
	for _, t := range due {
		claimedAt := now
		if t.Status == domain.StatusSending {
			// 过期认领说明上一次投递没有写回结果，计为一次尝试
			t.Attempts++
		}
		t.Status = domain.StatusSending
		t.ClaimToken = uuid.NewString()
		t.ClaimedAt = &claimedAt
		t.UpdatedAt = now
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (r *MemoryTaskRepository) MarkSent(_ context.Context, id, claimToken string, at time.Time) error {
	return r.finish(id, claimToken, func(t *domain.Task) {
		t.Status = domain.StatusSent
		t.SentAt = &at
		t.LastError = ""
		t.UpdatedAt = at
	})
}

func (r *MemoryTaskRepository) Reschedule(_ context.Context, id, claimToken string, attempts int, next time.Time, lastErr string) error {
	return r.finish(id, claimToken, func(t *domain.Task) {
		t.Status = domain.StatusPending
		t.Attempts = attempts
		t.ScheduledFor = next
		t.LastError = lastErr
		t.ClaimToken = ""
		t.ClaimedAt = nil
	})
}

func (r *MemoryTaskRepository) MarkFailed(_ context.Context, id, claimToken string, attempts int, lastErr string, at time.Time) error {
	return r.finish(id, claimToken, func(t *domain.Task) {
		t.Status = domain.StatusFailed
		t.Attempts = attempts
		t.LastError = lastErr
		t.UpdatedAt = at
		if r.active[t.Fingerprint] == t.ID {
			delete(r.active, t.Fingerprint)
		}
	})
}

func (r *MemoryTaskRepository) finish(id, claimToken string, apply func(t *domain.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status != domain.StatusSending || t.ClaimToken != claimToken {
		return domain.ErrClaimLost
	}
	apply(t)
	return nil
}

func (r *MemoryTaskRepository) FindByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// All 返回按创建时间排序的任务快照
func (r *MemoryTaskRepository) All() []*domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Payload = make(map[string]interface{}, len(t.Payload))
	for k, v := range t.Payload {
		c.Payload[k] = v
	}
	if t.ClaimedAt != nil {
		at := *t.ClaimedAt
		c.ClaimedAt = &at
	}
	if t.SentAt != nil {
		at := *t.SentAt
		c.SentAt = &at
	}
	return &c
}
