package port

import (
	"context"

	"stockgate/internal/service/stock/domain"
)

// Ledger 是持久层账本的出站端口，是库存的最终事实来源。
type Ledger interface {
	// Settle 在事务内锁定商品行、校验库存、扣减并创建订单。
	// 业务拒绝以 *domain.SettlementFault 返回，其余错误均视为瞬时故障。
	Settle(ctx context.Context, r *domain.Reservation) (*domain.Order, error)

	// InitItem 创建或覆盖商品的持久层库存
	InitItem(ctx context.Context, item domain.Item) error

	// Quantity 返回持久层库存，不存在时返回 domain.ErrItemNotFound
	Quantity(ctx context.Context, id domain.ItemID) (int64, error)

	// OrderByToken 按关联令牌查询订单，不存在时返回 domain.ErrOrderNotFound
	OrderByToken(ctx context.Context, token string) (*domain.Order, error)
}
