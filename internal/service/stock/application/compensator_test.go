package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgate/internal/service/stock/domain"
)

func TestCompensator_RefundsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newMockCounter()
	require.NoError(t, store.Init(ctx, 1, 5))
	c := NewCompensator(store, nil, CompensatorConfig{MaxAttempts: 3})

	r := domain.NewReservation(1, 3, 10)
	applied, err := c.Refund(ctx, r)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = c.Refund(ctx, r)
	require.NoError(t, err)
	assert.False(t, applied)

	n, _ := store.Get(ctx, 1)
	assert.Equal(t, int64(8), n)
}

func TestCompensator_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := newMockCounter()
	store.incrementFails = 2
	sleeper := &noSleep{}
	c := NewCompensator(store, nil, CompensatorConfig{MaxAttempts: 3, Backoff: 10 * time.Millisecond}).WithSleeper(sleeper)

	applied, err := c.Refund(ctx, domain.NewReservation(1, 2, 10))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 3, store.incrementCalls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.waits)

	n, _ := store.Get(ctx, 1)
	assert.Equal(t, int64(2), n)
}

func TestCompensator_FailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := newMockCounter()
	store.incrementFails = 10
	c := NewCompensator(store, nil, CompensatorConfig{MaxAttempts: 2}).WithSleeper(&noSleep{})

	applied, err := c.Refund(ctx, domain.NewReservation(1, 2, 10))
	assert.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, store.incrementCalls)

	n, _ := store.Get(ctx, 1)
	assert.Zero(t, n)
}
