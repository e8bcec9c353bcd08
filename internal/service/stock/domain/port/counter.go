package port

import (
	"context"

	"stockgate/internal/service/stock/domain"
)

// FastCounterStore 是快速层库存计数器的出站端口。
// 所有修改操作在存储层面都是原子的，调用方无需加锁。
type FastCounterStore interface {
	// Init 无条件覆盖计数器
	Init(ctx context.Context, item domain.ItemID, quantity int64) error

	// Get 返回当前计数，未设置时返回 0
	Get(ctx context.Context, item domain.ItemID) (int64, error)

	// Decrement 原子扣减；扣减后为负则不生效并返回 false
	Decrement(ctx context.Context, item domain.ItemID, quantity int64) (bool, error)

	// Increment 原子回加
	Increment(ctx context.Context, item domain.ItemID, quantity int64) error

	// IncrementOnce 对同一个 token 最多回加一次，返回本次是否真正回加。
	// token 已被 ClaimSettled 占用时不回加。
	IncrementOnce(ctx context.Context, item domain.ItemID, quantity int64, token string) (bool, error)

	// ClaimSettled 在订单落库后占用 token，与 IncrementOnce 互斥。
	// 返回 false 表示该 token 已经被回加过。
	ClaimSettled(ctx context.Context, item domain.ItemID, token string) (bool, error)

	// Refunded 返回该 token 是否已经被回加过
	Refunded(ctx context.Context, item domain.ItemID, token string) (bool, error)
}
