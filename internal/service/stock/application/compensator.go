// internal/service/stock/application/compensator.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/metrics"
	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/domain/port"
)

// CompensatorConfig 控制回补失败时的重试
type CompensatorConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Compensator 把一次不会被结算的预占数量加回快速层，同一个 token 至多回加一次
type Compensator struct {
	store   port.FastCounterStore
	metrics *metrics.Metrics
	cfg     CompensatorConfig
	sleeper Sleeper
}

func NewCompensator(store port.FastCounterStore, m *metrics.Metrics, cfg CompensatorConfig) *Compensator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Compensator{store: store, metrics: m, cfg: cfg, sleeper: DefaultSleeper{}}
}

// WithSleeper 替换退避等待的实现
func (c *Compensator) WithSleeper(s Sleeper) *Compensator {
	c.sleeper = s
	return c
}

// Refund 返回本次是否真正回加；重复调用返回 false, nil。
// 所有尝试都失败时快速层会少计库存，以最高的非退出级别记录。
func (c *Compensator) Refund(ctx context.Context, r *domain.Reservation) (bool, error) {
	log := logger.Ctx(ctx).With().
		Str("correlation_token", r.CorrelationToken).
		Int64("item_id", int64(r.ItemID)).
		Int64("quantity", r.Quantity).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		applied, err := c.store.IncrementOnce(ctx, r.ItemID, r.Quantity, r.CorrelationToken)
		if err == nil {
			if applied {
				c.metrics.Compensation(metrics.CompensationApplied)
				log.Info().Msg("↩️ Reservation compensated")
			} else {
				c.metrics.Compensation(metrics.CompensationDuplicate)
				log.Warn().Msg("Reservation already compensated or settled, skipping")
			}
			return applied, nil
		}

		lastErr = err
		log.Error().Err(err).Int("attempt", attempt).Msg("Compensation attempt failed")
		if attempt < c.cfg.MaxAttempts {
			if err := c.sleeper.Sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	c.metrics.Compensation(metrics.CompensationFailed)
	log.WithLevel(zerolog.FatalLevel).Err(lastErr).
		Msg("🚨 CRITICAL: compensation failed, fast counter understates availability")
	return false, fmt.Errorf("compensate reservation %s: %w", r.CorrelationToken, lastErr)
}
