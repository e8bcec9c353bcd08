// internal/service/stock/infrastructure/memory/locker.go
package memory

import (
	"context"
	"sync"

	"stockgate/internal/service/stock/domain"
)

// ItemLocker 是单实例部署时的商品锁，每个商品一个容量为 1 的信号量
type ItemLocker struct {
	mu    sync.Mutex
	slots map[domain.ItemID]chan struct{}
}

func NewItemLocker() *ItemLocker {
	return &ItemLocker{slots: make(map[domain.ItemID]chan struct{})}
}

func (l *ItemLocker) Lock(ctx context.Context, item domain.ItemID) (func() error, error) {
	l.mu.Lock()
	slot, ok := l.slots[item]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[item] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
