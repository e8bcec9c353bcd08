// internal/service/stock/application/stock_service.go
package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/domain/port"
)

// InitStockRequest 同时设置两层库存。两层数值可以不同，用于模拟或修复分歧。
type InitStockRequest struct {
	ItemID          domain.ItemID
	Name            string
	DurableQuantity int64
	FastQuantity    int64
}

// StockService 提供管理和查询类操作
type StockService struct {
	store  port.FastCounterStore
	ledger port.Ledger
	locker port.ItemLocker
	tracer trace.Tracer
}

func NewStockService(store port.FastCounterStore, ledger port.Ledger, locker port.ItemLocker, tracer trace.Tracer) *StockService {
	return &StockService{store: store, ledger: ledger, locker: locker, tracer: tracer}
}

// InitStock 先写持久层再写快速层，同一商品的初始化在实例之间串行
func (s *StockService) InitStock(ctx context.Context, req InitStockRequest) error {
	ctx, span := s.tracer.Start(ctx, "stock.InitStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("item.id", int64(req.ItemID)))

	if req.ItemID <= 0 {
		return domain.ValidationError("item_id must be positive, got %d", req.ItemID)
	}
	if req.DurableQuantity < 0 || req.FastQuantity < 0 {
		return domain.ValidationError("quantities must not be negative")
	}

	unlock, err := s.locker.Lock(ctx, req.ItemID)
	if err != nil {
		return fmt.Errorf("lock item %s: %w", req.ItemID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("item_id", int64(req.ItemID)).Msg("Failed to release item lock")
		}
	}()

	item := domain.Item{ID: req.ItemID, Name: req.Name, Quantity: req.DurableQuantity}
	if err := s.ledger.InitItem(ctx, item); err != nil {
		return fmt.Errorf("init durable stock: %w", err)
	}
	if err := s.store.Init(ctx, req.ItemID, req.FastQuantity); err != nil {
		return fmt.Errorf("init fast stock: %w", err)
	}

	logger.Ctx(ctx).Info().
		Int64("item_id", int64(req.ItemID)).
		Int64("durable", req.DurableQuantity).
		Int64("fast", req.FastQuantity).
		Msg("📦 Stock initialized")
	return nil
}

func (s *StockService) FastStock(ctx context.Context, id domain.ItemID) (int64, error) {
	return s.store.Get(ctx, id)
}

func (s *StockService) DurableStock(ctx context.Context, id domain.ItemID) (int64, error) {
	return s.ledger.Quantity(ctx, id)
}

func (s *StockService) Order(ctx context.Context, token string) (*domain.Order, error) {
	return s.ledger.OrderByToken(ctx, token)
}
