// internal/service/stock/domain/item.go
package domain

import "strconv"

// ItemID 是商品的唯一标识
type ItemID int64

func (id ItemID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Item 是持久层（账本）中的商品库存记录，Quantity 即 durable_quantity
type Item struct {
	ID       ItemID
	Name     string
	Quantity int64
}
