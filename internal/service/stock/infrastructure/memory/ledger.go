// internal/service/stock/infrastructure/memory/ledger.go
package memory

import (
	"context"
	"sync"
	"time"

	"stockgate/internal/service/stock/domain"
)

type itemRow struct {
	mu   sync.Mutex // 行锁：同一商品的结算串行执行
	item domain.Item
}

// Ledger 是进程内的持久层实现，语义与 GORM 账本一致
type Ledger struct {
	mu      sync.RWMutex
	items   map[domain.ItemID]*itemRow
	orders  map[string]*domain.Order
	nextID  int64
	nowFunc func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		items:   make(map[domain.ItemID]*itemRow),
		orders:  make(map[string]*domain.Order),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) Settle(ctx context.Context, r *domain.Reservation) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	row, ok := l.items[r.ItemID]
	l.mu.RUnlock()
	if !ok {
		return nil, &domain.SettlementFault{Kind: domain.FaultNotFound, ItemID: r.ItemID, Requested: r.Quantity}
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	// 同一个 token 只会落在同一商品上，行锁保证查重与写入之间不会插入并发结算
	l.mu.RLock()
	existing, ok := l.orders[r.CorrelationToken]
	l.mu.RUnlock()
	if ok {
		replay := *existing
		replay.Replayed = true
		return &replay, nil
	}
	if row.item.Quantity < r.Quantity {
		return nil, &domain.SettlementFault{
			Kind:      domain.FaultInsufficientDurableStock,
			ItemID:    r.ItemID,
			Requested: r.Quantity,
			Available: row.item.Quantity,
		}
	}

	row.item.Quantity -= r.Quantity
	order := domain.NewCompletedOrder(r)
	order.CreatedAt = l.nowFunc()

	l.mu.Lock()
	l.nextID++
	order.ID = l.nextID
	l.orders[r.CorrelationToken] = order
	l.mu.Unlock()

	out := *order
	return &out, nil
}

func (l *Ledger) InitItem(_ context.Context, item domain.Item) error {
	l.mu.Lock()
	row, ok := l.items[item.ID]
	if !ok {
		row = &itemRow{}
		l.items[item.ID] = row
	}
	l.mu.Unlock()

	row.mu.Lock()
	defer row.mu.Unlock()
	row.item = item
	return nil
}

func (l *Ledger) Quantity(_ context.Context, id domain.ItemID) (int64, error) {
	l.mu.RLock()
	row, ok := l.items[id]
	l.mu.RUnlock()
	if !ok {
		return 0, domain.ErrItemNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.item.Quantity, nil
}

func (l *Ledger) OrderByToken(_ context.Context, token string) (*domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	order, ok := l.orders[token]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

// OrderCount 返回已落库订单数
func (l *Ledger) OrderCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}
