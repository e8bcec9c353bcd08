package infrastructure

import "stockgate/internal/service/stock/domain"

func toDomainOrder(m *StockOrderModel) *domain.Order {
	return &domain.Order{
		ID:               m.ID,
		ItemID:           domain.ItemID(m.ItemID),
		Quantity:         m.Quantity,
		RequesterID:      m.RequesterID,
		CorrelationToken: m.CorrelationToken,
		Status:           domain.OrderStatus(m.Status),
		CreatedAt:        m.CreatedAt,
	}
}

func toOrderModel(o *domain.Order) *StockOrderModel {
	return &StockOrderModel{
		ID:               o.ID,
		ItemID:           int64(o.ItemID),
		Quantity:         o.Quantity,
		RequesterID:      o.RequesterID,
		CorrelationToken: o.CorrelationToken,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
	}
}

func toItemModel(item domain.Item) *StockItemModel {
	return &StockItemModel{
		ID:       int64(item.ID),
		Name:     item.Name,
		Quantity: item.Quantity,
	}
}
