// internal/service/ratelimit/domain/limit.go
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)

// Policy 是一个动作的上限和窗口长度
type Policy struct {
	Ceiling int
	Window  time.Duration
}

func (p Policy) Validate(cost int) error {
	if p.Ceiling <= 0 || p.Window <= 0 || cost <= 0 {
		return fmt.Errorf("%w: ceiling=%d window=%s cost=%d", ErrInvalidPolicy, p.Ceiling, p.Window, cost)
	}
	return nil
}

// Counter 是一个 (action, identity) 的固定窗口计数器；窗口从该键的首次命中开始
type Counter struct {
	Key         string
	WindowStart time.Time
	Count       int
	CreatedAt   time.Time
}

// Decision 是一次限流判断的结果
type Decision struct {
	OK         bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// ScopeKey 组合动作和身份
func ScopeKey(action, identity string) string {
	return action + ":" + identity
}

// Apply 在计数器上消费 cost。
// 新键或窗口已过期：计数从 cost 开始、窗口从 now 开始；窗口内超限时拒绝且不累加。
// 返回是否需要写回计数器。
func Apply(c *Counter, exists bool, now time.Time, cost int, p Policy) (Decision, bool) {
	if !exists || !now.Before(c.WindowStart.Add(p.Window)) {
		c.WindowStart = now
		c.Count = cost
		c.CreatedAt = now
		return Decide(c, now, p, cost <= p.Ceiling), true
	}
	if c.Count+cost > p.Ceiling {
		return Decide(c, now, p, false), false
	}
	c.Count += cost
	return Decide(c, now, p, true), true
}

// Decide 根据计数器当前值生成判断结果
func Decide(c *Counter, now time.Time, p Policy, ok bool) Decision {
	d := Decision{OK: ok, ResetAt: c.WindowStart.Add(p.Window)}
	if remaining := p.Ceiling - c.Count; remaining > 0 {
		d.Remaining = remaining
	}
	if !ok {
		d.RetryAfter = d.ResetAt.Sub(now)
	}
	return d
}

// CounterStore 原子地读取、判断并写回计数器
type CounterStore interface {
	Consume(ctx context.Context, key string, now time.Time, cost int, p Policy) (Decision, error)
	// Purge 删除创建时间早于 before 的计数器，返回删除数量
	Purge(ctx context.Context, before time.Time) (int64, error)
}
