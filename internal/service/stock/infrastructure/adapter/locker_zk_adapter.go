// internal/service/stock/infrastructure/adapter/locker_zk_adapter.go
package adapter

import (
	"context"

	"stockgate/internal/service/stock/domain"
	"stockgate/internal/zookeeper"
)

// ItemLockerZkAdapter 是 port.ItemLocker 的 ZooKeeper 实现，跨实例串行化同一商品的库存初始化
type ItemLockerZkAdapter struct {
	conn *zookeeper.Conn
	root string
}

func NewItemLockerZkAdapter(conn *zookeeper.Conn, root string) *ItemLockerZkAdapter {
	return &ItemLockerZkAdapter{conn: conn, root: root}
}

func (a *ItemLockerZkAdapter) Lock(ctx context.Context, item domain.ItemID) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(a.conn, a.root, "item-"+item.String())
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}
