// internal/service/stock/application/worker.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/metrics"
	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/domain/port"
)

// WorkerConfig 控制单次结算的超时和重试退避
type WorkerConfig struct {
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
}

// SettlementWorker 消费结算任务，把快速层的预占落到持久层；
// 业务拒绝或重试耗尽时通过 Compensator 回补。
type SettlementWorker struct {
	ledger      port.Ledger
	store       port.FastCounterStore
	compensator *Compensator
	failures    port.FailureRecorder
	outcomes    port.OutcomePublisher
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	cfg         WorkerConfig
	sleeper     Sleeper
}

func NewSettlementWorker(
	ledger port.Ledger,
	store port.FastCounterStore,
	compensator *Compensator,
	failures port.FailureRecorder,
	outcomes port.OutcomePublisher,
	tracer trace.Tracer,
	m *metrics.Metrics,
	cfg WorkerConfig,
) *SettlementWorker {
	return &SettlementWorker{
		ledger:      ledger,
		store:       store,
		compensator: compensator,
		failures:    failures,
		outcomes:    outcomes,
		tracer:      tracer,
		metrics:     m,
		cfg:         cfg,
		sleeper:     DefaultSleeper{},
	}
}

// WithSleeper 替换退避等待的实现
func (w *SettlementWorker) WithSleeper(s Sleeper) *SettlementWorker {
	w.sleeper = s
	return w
}

// Process 把一个任务推进到终态。
// 只有 ctx 结束（进程关停）或回补失败时返回 error；前者由调用方决定不提交 offset。
func (w *SettlementWorker) Process(ctx context.Context, task *domain.SettlementTask) (domain.TaskState, error) {
	ctx, span := w.tracer.Start(ctx, "worker.Process")
	defer span.End()

	r := &task.Reservation
	span.SetAttributes(
		attribute.String("correlation.token", r.CorrelationToken),
		attribute.Int64("item.id", int64(r.ItemID)),
		attribute.Int64("quantity", r.Quantity),
	)
	log := logger.Ctx(ctx).With().
		Str("correlation_token", r.CorrelationToken).
		Int64("item_id", int64(r.ItemID)).
		Int64("quantity", r.Quantity).
		Logger()

	started := time.Now()
	state := domain.TaskReceived
	finish := func(s domain.TaskState, order *domain.Order, fault domain.FaultKind) {
		state = s
		span.SetAttributes(attribute.String("state", string(s)), attribute.Int("attempts", task.Attempt))
		w.metrics.Settlement(string(s), time.Since(started))
		w.publish(ctx, task, s, order, fault)
	}

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		refunded, err := w.store.Refunded(ctx, r.ItemID, r.CorrelationToken)
		if err == nil && refunded {
			log.Warn().Msg("Reservation already compensated, skipping duplicate delivery")
			finish(domain.TaskSkipped, nil, "")
			return state, nil
		}

		state = domain.TaskSettling
		task.Attempt++
		if err == nil {
			var order *domain.Order
			order, err = w.settleOnce(ctx, r)
			if err == nil {
				w.claimSettled(ctx, r, &log)
				if order.Replayed {
					log.Info().Int64("order_id", order.ID).Msg("Settlement already committed, treating redelivery as done")
				} else {
					log.Info().Int64("order_id", order.ID).Int("attempt", task.Attempt).Msg("✅ Reservation settled")
				}
				finish(domain.TaskCompleted, order, "")
				return state, nil
			}
		} else {
			err = fmt.Errorf("check refund marker: %w", err)
		}

		if fault, ok := domain.AsSettlementFault(err); ok {
			if fault.Kind == domain.FaultNotFound {
				log.Error().Err(fault).Msg("Item missing from durable ledger, data integrity anomaly")
			} else {
				log.Warn().Err(fault).Msg("Durable stock insufficient, compensating")
			}
			state = domain.TaskCompensating
			// 回补一旦开始就不受关停影响
			bg := context.WithoutCancel(ctx)
			if _, refundErr := w.compensator.Refund(bg, r); refundErr != nil {
				span.SetStatus(codes.Error, "compensation failed")
				w.recordFailure(bg, task, refundErr)
				return state, refundErr
			}
			finish(domain.TaskCompensated, nil, fault.Kind)
			return state, nil
		}

		// ctx 已结束时不算作一次失败，交给下一次投递
		if ctx.Err() != nil {
			return state, ctx.Err()
		}

		span.RecordError(err)
		log.Warn().Err(err).Int("attempt", task.Attempt).Int("max_attempts", task.MaxAttempts).Msg("Settlement attempt failed")
		if !task.Exhausted() {
			if err := w.sleeper.Sleep(ctx, w.backoff(task.Attempt)); err != nil {
				return state, err
			}
			continue
		}

		// 最后一次超时可能发生在提交之后，回补前先确认订单是否已落库
		if order, lookupErr := w.committedOrder(ctx, r); lookupErr == nil {
			w.claimSettled(ctx, r, &log)
			log.Info().Int64("order_id", order.ID).Msg("Settlement committed despite failed acknowledgement")
			finish(domain.TaskCompleted, order, "")
			return state, nil
		}

		// 重试耗尽：回补一次并写入死信队列
		log.Error().Err(err).Int("attempts", task.Attempt).Msg("🚨 Settlement retries exhausted, compensating")
		state = domain.TaskCompensating
		bg := context.WithoutCancel(ctx)
		_, refundErr := w.compensator.Refund(bg, r)
		w.recordFailure(bg, task, err)
		if refundErr != nil {
			span.SetStatus(codes.Error, "compensation failed")
			return state, errors.Join(err, refundErr)
		}
		finish(domain.TaskCompensated, nil, "")
		return state, nil
	}
}

// claimSettled 在订单落库后占用 token，之后的回补请求不再生效。
// 占用失败说明回补抢先发生（入队报错但消息实际已送达），此时重新扣减快速层。
func (w *SettlementWorker) claimSettled(ctx context.Context, r *domain.Reservation, log *zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	claimed, err := w.store.ClaimSettled(ctx, r.ItemID, r.CorrelationToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to mark reservation settled in fast store")
		return
	}
	if claimed {
		return
	}

	ok, err := w.store.Decrement(ctx, r.ItemID, r.Quantity)
	switch {
	case err != nil:
		log.WithLevel(zerolog.FatalLevel).Err(err).
			Msg("🚨 CRITICAL: settled reservation was refunded and re-decrement failed, fast counter overstates availability")
	case !ok:
		log.Error().Msg("Settled reservation was refunded and fast counter cannot cover it, durable ledger will reject the excess")
	default:
		log.Error().Msg("Settled reservation was refunded concurrently, fast counter re-decremented")
	}
}

func (w *SettlementWorker) settleOnce(ctx context.Context, r *domain.Reservation) (*domain.Order, error) {
	attemptCtx := ctx
	if w.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
	}
	return w.ledger.Settle(attemptCtx, r)
}

func (w *SettlementWorker) committedOrder(ctx context.Context, r *domain.Reservation) (*domain.Order, error) {
	lookupCtx := ctx
	if w.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, w.cfg.AttemptTimeout)
		defer cancel()
	}
	return w.ledger.OrderByToken(lookupCtx, r.CorrelationToken)
}

func (w *SettlementWorker) recordFailure(ctx context.Context, task *domain.SettlementTask, cause error) {
	if w.failures == nil {
		return
	}
	if err := w.failures.RecordFailure(ctx, task, cause); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("correlation_token", task.Reservation.CorrelationToken).
			Msg("Failed to record settlement failure")
	}
}

func (w *SettlementWorker) publish(ctx context.Context, task *domain.SettlementTask, state domain.TaskState, order *domain.Order, fault domain.FaultKind) {
	if w.outcomes == nil {
		return
	}
	outcome := &domain.SettlementOutcome{
		CorrelationToken: task.Reservation.CorrelationToken,
		ItemID:           task.Reservation.ItemID,
		Quantity:         task.Reservation.Quantity,
		RequesterID:      task.Reservation.RequesterID,
		State:            state,
		Fault:            fault,
		Attempts:         task.Attempt,
		SettledAt:        time.Now().UTC(),
	}
	if order != nil {
		outcome.OrderID = order.ID
	}
	if err := w.outcomes.Publish(ctx, outcome); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("correlation_token", outcome.CorrelationToken).
			Msg("Failed to publish settlement outcome")
	}
}

func (w *SettlementWorker) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return w.cfg.BackoffBase << (attempt - 1)
}
