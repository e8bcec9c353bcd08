package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/infrastructure/memory"
)

type failingLocker struct{}

func (failingLocker) Lock(context.Context, domain.ItemID) (func() error, error) {
	return nil, errors.New("zk: session expired")
}

func TestStockService_InitStockSetsBothLayers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCounterStore()
	ledger := memory.NewLedger()
	svc := NewStockService(store, ledger, memory.NewItemLocker(), testTracer)

	err := svc.InitStock(ctx, InitStockRequest{ItemID: 1, Name: "widget", DurableQuantity: 3, FastQuantity: 10})
	require.NoError(t, err)

	fast, err := svc.FastStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), fast)

	durable, err := svc.DurableStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), durable)

	// 重复初始化覆盖旧值
	require.NoError(t, svc.InitStock(ctx, InitStockRequest{ItemID: 1, DurableQuantity: 5, FastQuantity: 5}))
	durable, _ = svc.DurableStock(ctx, 1)
	assert.Equal(t, int64(5), durable)
}

func TestStockService_InitStockValidation(t *testing.T) {
	svc := NewStockService(memory.NewCounterStore(), memory.NewLedger(), memory.NewItemLocker(), testTracer)

	err := svc.InitStock(context.Background(), InitStockRequest{ItemID: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
	err = svc.InitStock(context.Background(), InitStockRequest{ItemID: 1, FastQuantity: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStockService_InitStockLockFailure(t *testing.T) {
	store := memory.NewCounterStore()
	svc := NewStockService(store, memory.NewLedger(), failingLocker{}, testTracer)

	err := svc.InitStock(context.Background(), InitStockRequest{ItemID: 1, FastQuantity: 5})
	assert.Error(t, err)
	n, _ := store.Get(context.Background(), 1)
	assert.Zero(t, n)
}

func TestStockService_Lookups(t *testing.T) {
	ctx := context.Background()
	svc := NewStockService(memory.NewCounterStore(), memory.NewLedger(), memory.NewItemLocker(), testTracer)

	fast, err := svc.FastStock(ctx, 404)
	require.NoError(t, err)
	assert.Zero(t, fast)

	_, err = svc.DurableStock(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	_, err = svc.Order(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
