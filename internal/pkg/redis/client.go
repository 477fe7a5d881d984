// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 的 UniversalClient，并管理预加载的 Lua 脚本
type Client struct {
	client  goredis.UniversalClient
	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 根据地址列表创建客户端，单地址为单机模式，多地址为集群模式
func NewClient(addrs []string) (*Client, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis: no addresses configured")
	}
	c := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: addrs})
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping %v: %w", addrs, err)
	}
	return NewFromUniversal(c), nil
}

// NewFromUniversal wraps an existing client; tests use it with miniredis.
func NewFromUniversal(c goredis.UniversalClient) *Client {
	return &Client{client: c, scripts: make(map[string]*goredis.Script)}
}

// LoadScriptFromContent 在服务启动时注册脚本，并把 SHA 预加载到服务端
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(context.Background(), c.client).Err(); err != nil {
		return fmt.Errorf("redis: load script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本，EVALSHA 未命中时自动回退到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("redis: script %s not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
