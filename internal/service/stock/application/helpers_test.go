package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/infrastructure/memory"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

// recordingQueue 记录入队的任务，供测试手动驱动 worker
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*domain.SettlementTask
}

func (q *recordingQueue) Enqueue(_ context.Context, task *domain.SettlementTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) Tasks() []*domain.SettlementTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*domain.SettlementTask(nil), q.tasks...)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) Enqueue(ctx context.Context, task *domain.SettlementTask) error {
	return m.Called(ctx, task).Error(0)
}

type mockFailureRecorder struct{ mock.Mock }

func (m *mockFailureRecorder) RecordFailure(ctx context.Context, task *domain.SettlementTask, cause error) error {
	return m.Called(ctx, task, cause).Error(0)
}

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []*domain.SettlementOutcome
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, o *domain.SettlementOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return p.err
}

// mockCounter 包装内存实现，可按调用注入失败
type mockCounter struct {
	*memory.CounterStore
	mu             sync.Mutex
	incrementFails int
	incrementCalls int
	refundedErr    error
	decrementErr   error
}

func newMockCounter() *mockCounter {
	return &mockCounter{CounterStore: memory.NewCounterStore()}
}

func (c *mockCounter) Decrement(ctx context.Context, item domain.ItemID, qty int64) (bool, error) {
	if c.decrementErr != nil {
		return false, c.decrementErr
	}
	return c.CounterStore.Decrement(ctx, item, qty)
}

func (c *mockCounter) IncrementOnce(ctx context.Context, item domain.ItemID, qty int64, token string) (bool, error) {
	c.mu.Lock()
	c.incrementCalls++
	fail := c.incrementFails > 0
	if fail {
		c.incrementFails--
	}
	c.mu.Unlock()
	if fail {
		return false, errors.New("redis: connection refused")
	}
	return c.CounterStore.IncrementOnce(ctx, item, qty, token)
}

func (c *mockCounter) Refunded(ctx context.Context, item domain.ItemID, token string) (bool, error) {
	if c.refundedErr != nil {
		return false, c.refundedErr
	}
	return c.CounterStore.Refunded(ctx, item, token)
}

// flakyLedger 包装内存账本：commitThenFail 次调用在提交后仍返回超时，failBefore 次调用直接失败
type flakyLedger struct {
	*memory.Ledger
	mu             sync.Mutex
	commitThenFail int
	failBefore     int
	settleCalls    int
	lookupErr      error
}

func (l *flakyLedger) Settle(ctx context.Context, r *domain.Reservation) (*domain.Order, error) {
	l.mu.Lock()
	l.settleCalls++
	before := l.failBefore > 0
	if before {
		l.failBefore--
	}
	after := !before && l.commitThenFail > 0
	if after {
		l.commitThenFail--
	}
	l.mu.Unlock()

	if before {
		return nil, context.DeadlineExceeded
	}
	order, err := l.Ledger.Settle(ctx, r)
	if after && err == nil {
		return nil, context.DeadlineExceeded
	}
	return order, err
}

func (l *flakyLedger) OrderByToken(ctx context.Context, token string) (*domain.Order, error) {
	if l.lookupErr != nil {
		return nil, l.lookupErr
	}
	return l.Ledger.OrderByToken(ctx, token)
}

type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type allowAll struct{}

func (allowAll) Allow(domain.ItemID, int64, int64) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) Allow(domain.ItemID, int64, int64) (bool, error) { return false, nil }
