// internal/pkg/redis/client.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Config 描述 Redis 连接：地址（endpoint）、DB（命名空间）和凭据
type Config struct {
	Addrs    []string
	DB       int
	Username string
	Password string
}

// Client 封装了 go-redis 客户端，并管理业务方注册的 Lua 脚本
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建客户端并确认连接可用。多个地址时自动使用集群模式。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: no address configured")
	}
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		DB:           cfg.DB,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis: ping %v", cfg.Addrs)
	}
	return Wrap(rdb), nil
}

// Wrap 包装一个已有的 go-redis 客户端（测试中配合 miniredis 使用）
func Wrap(rdb goredis.UniversalClient) *Client {
	return &Client{
		client:  rdb,
		scripts: make(map[string]*goredis.Script),
	}
}

// LoadScriptFromContent 注册并预加载一个 Lua 脚本
func (c *Client) LoadScriptFromContent(ctx context.Context, name, src string) error {
	script := goredis.NewScript(src)
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "redis: load script %q", name)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本。EVALSHA 未命中时 go-redis 会自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("redis: script %q not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// GetClient 暴露底层客户端，用于普通命令和 pipeline
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}
