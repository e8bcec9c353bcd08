// internal/service/stock/application/sleeper.go
package application

import (
	"context"
	"time"
)

// Sleeper 抽象了重试退避中的等待
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultSleeper 真实等待，ctx 结束时提前返回
type DefaultSleeper struct{}

func (DefaultSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
