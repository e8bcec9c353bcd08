// internal/service/stock/domain/order.go
package domain

import "time"

// OrderStatus 定义了订单的最终状态
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order 是结算成功后落库的订单，创建后不可变
type Order struct {
	ID               int64       `json:"id"`
	ItemID           ItemID      `json:"itemId"`
	Quantity         int64       `json:"quantity"`
	RequesterID      int64       `json:"requesterId"`
	CorrelationToken string      `json:"correlationToken"`
	Status           OrderStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`

	// Replayed 表示该订单在本次结算之前就已存在（重复投递）
	Replayed bool `json:"-"`
}

// NewCompletedOrder 根据预占记录构造一个已完成的订单
func NewCompletedOrder(r *Reservation) *Order {
	return &Order{
		ItemID:           r.ItemID,
		Quantity:         r.Quantity,
		RequesterID:      r.RequesterID,
		CorrelationToken: r.CorrelationToken,
		Status:           OrderStatusCompleted,
		CreatedAt:        time.Now().UTC(),
	}
}
