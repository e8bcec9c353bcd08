package infrastructure

import "time"

// StockItemModel 对应数据库中的 stock_items 表，quantity 是持久层库存
type StockItemModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:128;not null;default:''"`
	Quantity  int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockItemModel) TableName() string {
	return "stock_items"
}

// StockOrderModel 对应数据库中的 stock_orders 表。
// correlation_token 上的唯一索引是结算幂等的最后一道防线。
type StockOrderModel struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	ItemID           int64  `gorm:"not null;index"`
	Quantity         int64  `gorm:"not null"`
	RequesterID      int64  `gorm:"not null;index"`
	CorrelationToken string `gorm:"size:64;not null;uniqueIndex"`
	Status           string `gorm:"size:16;not null"`
	CreatedAt        time.Time
}

func (StockOrderModel) TableName() string {
	return "stock_orders"
}
