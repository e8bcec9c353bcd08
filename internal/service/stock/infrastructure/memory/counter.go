// internal/service/stock/infrastructure/memory/counter.go
package memory

import (
	"context"
	"sync"

	"stockgate/internal/service/stock/domain"
)

// CounterStore 是进程内的快速层实现，用于本地运行和测试
type CounterStore struct {
	mu       sync.Mutex
	counters map[domain.ItemID]int64
	refunds  map[string]struct{}
	settled  map[string]struct{}
}

func NewCounterStore() *CounterStore {
	return &CounterStore{
		counters: make(map[domain.ItemID]int64),
		refunds:  make(map[string]struct{}),
		settled:  make(map[string]struct{}),
	}
}

func (s *CounterStore) Init(_ context.Context, item domain.ItemID, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[item] = quantity
	return nil
}

func (s *CounterStore) Get(_ context.Context, item domain.ItemID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[item], nil
}

// Decrement 先扣减，结果为负时在同一临界区内回加
func (s *CounterStore) Decrement(_ context.Context, item domain.ItemID, quantity int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[item] -= quantity
	if s.counters[item] < 0 {
		s.counters[item] += quantity
		return false, nil
	}
	return true, nil
}

func (s *CounterStore) Increment(_ context.Context, item domain.ItemID, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[item] += quantity
	return nil
}

func (s *CounterStore) IncrementOnce(_ context.Context, item domain.ItemID, quantity int64, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := refundKey(item, token)
	if _, done := s.refunds[key]; done {
		return false, nil
	}
	if _, done := s.settled[key]; done {
		return false, nil
	}
	s.refunds[key] = struct{}{}
	s.counters[item] += quantity
	return true, nil
}

func (s *CounterStore) ClaimSettled(_ context.Context, item domain.ItemID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := refundKey(item, token)
	if _, done := s.refunds[key]; done {
		return false, nil
	}
	s.settled[key] = struct{}{}
	return true, nil
}

func (s *CounterStore) Refunded(_ context.Context, item domain.ItemID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, done := s.refunds[refundKey(item, token)]
	return done, nil
}

func refundKey(item domain.ItemID, token string) string {
	return item.String() + ":" + token
}
