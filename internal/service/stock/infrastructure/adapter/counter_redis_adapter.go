// internal/service/stock/infrastructure/adapter/counter_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"stockgate/internal/pkg/redis"
	"stockgate/internal/service/stock/domain"
)

const (
	decrementScriptName     = "stock_decrement"
	incrementOnceScriptName = "stock_increment_once"
	claimSettledScriptName  = "stock_claim_settled"
)

// CounterRedisAdapter 是 port.FastCounterStore 的 Redis 实现。
// 计数器 key 和回补标记 key 共享 {itemID} hash tag，集群模式下落在同一个 slot。
type CounterRedisAdapter struct {
	redisClient *redis.Client
	markerTTL   time.Duration
}

// NewCounterRedisAdapter 创建适配器并预加载所有 Lua 脚本
func NewCounterRedisAdapter(ctx context.Context, redisClient *redis.Client, markerTTL time.Duration) (*CounterRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(ctx, decrementScriptName, decrementScript); err != nil {
		return nil, fmt.Errorf("failed to load decrement script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(ctx, incrementOnceScriptName, incrementOnceScript); err != nil {
		return nil, fmt.Errorf("failed to load increment-once script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(ctx, claimSettledScriptName, claimSettledScript); err != nil {
		return nil, fmt.Errorf("failed to load claim-settled script: %w", err)
	}
	return &CounterRedisAdapter{redisClient: redisClient, markerTTL: markerTTL}, nil
}

func counterKey(item domain.ItemID) string {
	return fmt.Sprintf("item:{%d}", item)
}

func refundMarkerKey(item domain.ItemID, token string) string {
	return fmt.Sprintf("refund:{%d}:%s", item, token)
}

func settledMarkerKey(item domain.ItemID, token string) string {
	return fmt.Sprintf("settled:{%d}:%s", item, token)
}

func (a *CounterRedisAdapter) Init(ctx context.Context, item domain.ItemID, quantity int64) error {
	if err := a.redisClient.GetClient().Set(ctx, counterKey(item), quantity, 0).Err(); err != nil {
		return errors.Wrapf(err, "init counter for item %s", item)
	}
	return nil
}

func (a *CounterRedisAdapter) Get(ctx context.Context, item domain.ItemID) (int64, error) {
	raw, err := a.redisClient.GetClient().Get(ctx, counterKey(item)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "get counter for item %s", item)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt counter for item %s", item)
	}
	return n, nil
}

// Decrement 在脚本内完成比较和扣减，任何调用方都观察不到负数
func (a *CounterRedisAdapter) Decrement(ctx context.Context, item domain.ItemID, quantity int64) (bool, error) {
	code, err := a.runCode(ctx, decrementScriptName, []string{counterKey(item)}, quantity)
	if err != nil {
		return false, errors.Wrapf(err, "decrement counter for item %s", item)
	}
	return code == 1, nil
}

func (a *CounterRedisAdapter) Increment(ctx context.Context, item domain.ItemID, quantity int64) error {
	if err := a.redisClient.GetClient().IncrBy(ctx, counterKey(item), quantity).Err(); err != nil {
		return errors.Wrapf(err, "increment counter for item %s", item)
	}
	return nil
}

// IncrementOnce 用 SET NX 标记 token，只有首次标记成功且未被结算占用时才回加
func (a *CounterRedisAdapter) IncrementOnce(ctx context.Context, item domain.ItemID, quantity int64, token string) (bool, error) {
	keys := []string{counterKey(item), refundMarkerKey(item, token), settledMarkerKey(item, token)}
	code, err := a.runCode(ctx, incrementOnceScriptName, keys, quantity, a.markerTTL.Milliseconds())
	if err != nil {
		return false, errors.Wrapf(err, "refund item %s token %s", item, token)
	}
	return code == 1, nil
}

// ClaimSettled 与 IncrementOnce 在同一个 slot 内互斥，两者只有一个能生效
func (a *CounterRedisAdapter) ClaimSettled(ctx context.Context, item domain.ItemID, token string) (bool, error) {
	keys := []string{refundMarkerKey(item, token), settledMarkerKey(item, token)}
	code, err := a.runCode(ctx, claimSettledScriptName, keys, a.markerTTL.Milliseconds())
	if err != nil {
		return false, errors.Wrapf(err, "claim settled item %s token %s", item, token)
	}
	return code == 1, nil
}

func (a *CounterRedisAdapter) Refunded(ctx context.Context, item domain.ItemID, token string) (bool, error) {
	n, err := a.redisClient.GetClient().Exists(ctx, refundMarkerKey(item, token)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check refund marker for item %s", item)
	}
	return n == 1, nil
}

func (a *CounterRedisAdapter) runCode(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	result, err := a.redisClient.RunScript(ctx, script, keys, args...)
	if err != nil {
		return 0, err
	}
	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code, nil
}

var decrementScript = `
-- KEYS[1]: 库存计数器, 例如: item:{42}
-- ARGV[1]: 扣减数量
local stock = tonumber(redis.call('get', KEYS[1]) or '0')
local qty = tonumber(ARGV[1])
if stock - qty < 0 then
    return 0
end
redis.call('decrby', KEYS[1], qty)
return 1
`

var incrementOnceScript = `
-- KEYS[1]: 库存计数器, 例如: item:{42}
-- KEYS[2]: 回补标记, 例如: refund:{42}:<token>
-- KEYS[3]: 结算标记, 例如: settled:{42}:<token>
-- ARGV[1]: 回补数量
-- ARGV[2]: 标记过期时间（毫秒）
if redis.call('exists', KEYS[3]) == 1 then
    return 0
end
if redis.call('set', KEYS[2], '1', 'NX', 'PX', ARGV[2]) then
    redis.call('incrby', KEYS[1], ARGV[1])
    return 1
end
return 0
`

var claimSettledScript = `
-- KEYS[1]: 回补标记
-- KEYS[2]: 结算标记
-- ARGV[1]: 标记过期时间（毫秒）
if redis.call('exists', KEYS[1]) == 1 then
    return 0
end
redis.call('set', KEYS[2], '1', 'PX', ARGV[1])
return 1
`
