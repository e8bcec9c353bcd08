// internal/service/stock/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotFound      = errors.New("item not found")
	ErrOrderNotFound     = errors.New("order not found")
)

// FaultKind 是持久层结算时的业务拒绝类型
type FaultKind string

const (
	FaultNotFound                 FaultKind = "not_found"
	FaultInsufficientDurableStock FaultKind = "insufficient_durable_stock"
)

// SettlementFault 是结算的业务拒绝结果。
// 它是终态：不重试，调用方必须补偿快速层。
type SettlementFault struct {
	Kind      FaultKind
	ItemID    ItemID
	Requested int64
	Available int64
}

func (f *SettlementFault) Error() string {
	if f.Kind == FaultNotFound {
		return fmt.Sprintf("settlement fault %s: item %s", f.Kind, f.ItemID)
	}
	return fmt.Sprintf("settlement fault %s: item %s requested %d, available %d", f.Kind, f.ItemID, f.Requested, f.Available)
}

// AsSettlementFault 判断 err 是否为业务拒绝
func AsSettlementFault(err error) (*SettlementFault, bool) {
	var fault *SettlementFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// ValidationError 包装一个校验失败原因，errors.Is(err, ErrValidation) 成立
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
