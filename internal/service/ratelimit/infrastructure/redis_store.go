package infrastructure

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/ratelimit/domain"
)

const consumeScriptName = "ratelimit_consume"

// RedisCounterStore 用 Lua 脚本原子地完成 读取-判断-写回；键的 TTL 即保留期，不需要清理任务
type RedisCounterStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

func NewRedisCounterStore(client *redis.Client, retention time.Duration) (*RedisCounterStore, error) {
	if err := client.LoadScriptFromContent(consumeScriptName, consumeScript); err != nil {
		return nil, fmt.Errorf("failed to load rate limit script: %w", err)
	}
	return &RedisCounterStore{client: client, prefix: "ratelimit:", retention: retention}, nil
}

func (s *RedisCounterStore) Consume(ctx context.Context, key string, now time.Time, cost int, p domain.Policy) (domain.Decision, error) {
	ttl := s.retention
	if ttl < p.Window {
		ttl = p.Window
	}
	result, err := s.client.RunScript(ctx, consumeScriptName,
		[]string{s.prefix + "{" + key + "}"},
		now.UnixMilli(), cost, p.Ceiling, p.Window.Milliseconds(), ttl.Milliseconds())
	if err != nil {
		return domain.Decision{}, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return domain.Decision{}, fmt.Errorf("unexpected result from rate limit script: %v", result)
	}
	okFlag, ok1 := values[0].(int64)
	count, ok2 := values[1].(int64)
	start, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return domain.Decision{}, fmt.Errorf("unexpected result types from rate limit script: %T %T %T", values[0], values[1], values[2])
	}

	c := &domain.Counter{Key: key, WindowStart: time.UnixMilli(start).UTC(), Count: int(count)}
	return domain.Decide(c, now, p, okFlag == 1), nil
}

// Purge 对 Redis 是空操作：过期由键的 TTL 完成
func (s *RedisCounterStore) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// KEYS[1]: 计数器 hash
// ARGV: now_ms, cost, ceiling, window_ms, ttl_ms
// 返回 {ok, count, window_start_ms}
var consumeScript = `
local now = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))

if (not start) or (not count) or now >= start + window then
  redis.call('HSET', KEYS[1], 'start', ARGV[1], 'count', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ttl)
  if cost <= ceiling then
    return {1, cost, now}
  end
  return {0, cost, now}
end

if count + cost > ceiling then
  return {0, count, start}
end

count = redis.call('HINCRBY', KEYS[1], 'count', cost)
return {1, count, start}
`
