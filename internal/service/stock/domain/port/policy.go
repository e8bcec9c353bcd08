package port

import (
	"context"

	"stockgate/internal/service/stock/domain"
)

// OrderPolicy 在快速层扣减之前对下单请求做业务规则校验
type OrderPolicy interface {
	Allow(item domain.ItemID, quantity, requesterID int64) (bool, error)
}

// ItemLocker 在多个实例之间串行化同一商品的管理操作
type ItemLocker interface {
	Lock(ctx context.Context, item domain.ItemID) (unlock func() error, err error)
}
