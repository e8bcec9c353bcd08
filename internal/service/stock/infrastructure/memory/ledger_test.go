package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgate/internal/service/stock/domain"
)

func TestLedger_SettleSuccess(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.InitItem(ctx, domain.Item{ID: 1, Name: "widget", Quantity: 10}))

	r := domain.NewReservation(1, 4, 100)
	order, err := l.Settle(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, r.CorrelationToken, order.CorrelationToken)
	assert.False(t, order.Replayed)

	q, err := l.Quantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), q)
}

func TestLedger_SettleInsufficient(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.InitItem(ctx, domain.Item{ID: 1, Quantity: 3}))

	_, err := l.Settle(ctx, domain.NewReservation(1, 5, 100))
	fault, ok := domain.AsSettlementFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultInsufficientDurableStock, fault.Kind)
	assert.Equal(t, int64(3), fault.Available)

	q, _ := l.Quantity(ctx, 1)
	assert.Equal(t, int64(3), q)
	assert.Zero(t, l.OrderCount())
}

func TestLedger_SettleNotFound(t *testing.T) {
	l := NewLedger()
	_, err := l.Settle(context.Background(), domain.NewReservation(42, 1, 100))
	fault, ok := domain.AsSettlementFault(err)
	require.True(t, ok)
	assert.Equal(t, domain.FaultNotFound, fault.Kind)
	assert.Zero(t, l.OrderCount())
}

func TestLedger_SettleIsIdempotentPerToken(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.InitItem(ctx, domain.Item{ID: 1, Quantity: 10}))

	r := domain.NewReservation(1, 2, 100)
	first, err := l.Settle(ctx, r)
	require.NoError(t, err)
	again, err := l.Settle(ctx, r)
	require.NoError(t, err)

	assert.True(t, again.Replayed)
	assert.Equal(t, first.ID, again.ID)
	q, _ := l.Quantity(ctx, 1)
	assert.Equal(t, int64(8), q)
	assert.Equal(t, 1, l.OrderCount())
}

func TestLedger_ConcurrentSettleSameItem(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.InitItem(ctx, domain.Item{ID: 1, Quantity: 5}))

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Settle(ctx, domain.NewReservation(1, 1, 100))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, faults int
	for err := range results {
		if err == nil {
			ok++
		} else if _, isFault := domain.AsSettlementFault(err); isFault {
			faults++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 15, faults)
	q, _ := l.Quantity(ctx, 1)
	assert.Zero(t, q)
}

func TestLedger_Lookups(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	_, err := l.Quantity(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
	_, err = l.OrderByToken(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLedger_SettleCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLedger().Settle(ctx, domain.NewReservation(1, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
