// internal/service/stock/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reservation 是一次已在快速层扣减成功、尚未在持久层结算的库存占用。
// 它只在内存和队列中流转，结算成功后才会变成 Order。
type Reservation struct {
	ItemID           ItemID    `json:"itemId"`
	Quantity         int64     `json:"quantity"`
	RequesterID      int64     `json:"requesterId"`
	CorrelationToken string    `json:"correlationToken"`
	ReservedAt       time.Time `json:"reservedAt"`
}

// NewReservation 创建一个带有全新关联令牌的预占记录
func NewReservation(itemID ItemID, quantity, requesterID int64) *Reservation {
	return &Reservation{
		ItemID:           itemID,
		Quantity:         quantity,
		RequesterID:      requesterID,
		CorrelationToken: uuid.New().String(),
		ReservedAt:       time.Now().UTC(),
	}
}
