// internal/service/stock/application/gate.go
package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/metrics"
	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/domain/port"
)

// ReserveRequest 是一次下单请求
type ReserveRequest struct {
	ItemID      domain.ItemID
	Quantity    int64
	RequesterID int64
}

// ReservationGate 在快速层同步决定接受或拒绝，接受后把结算交给异步队列
type ReservationGate struct {
	store       port.FastCounterStore
	queue       port.TaskQueue
	policy      port.OrderPolicy
	compensator *Compensator
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	maxAttempts int
}

func NewReservationGate(
	store port.FastCounterStore,
	queue port.TaskQueue,
	policy port.OrderPolicy,
	compensator *Compensator,
	tracer trace.Tracer,
	m *metrics.Metrics,
	maxAttempts int,
) *ReservationGate {
	return &ReservationGate{
		store:       store,
		queue:       queue,
		policy:      policy,
		compensator: compensator,
		tracer:      tracer,
		metrics:     m,
		maxAttempts: maxAttempts,
	}
}

// Reserve 不等待结算。快速层扣减成功之后、任务入队之前的任何失败（包括 panic）
// 都会先回补再向上返回；回补与结算对同一个 token 互斥。
func (g *ReservationGate) Reserve(ctx context.Context, req ReserveRequest) (*domain.Reservation, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("item.id", int64(req.ItemID)),
		attribute.Int64("quantity", req.Quantity),
		attribute.Int64("requester.id", req.RequesterID),
	)

	if err := g.validate(req); err != nil {
		g.metrics.Reservation(metrics.ReservationInvalid)
		span.SetAttributes(attribute.String("result", metrics.ReservationInvalid))
		return nil, err
	}

	ok, err := g.store.Decrement(ctx, req.ItemID, req.Quantity)
	if err != nil {
		g.metrics.Reservation(metrics.ReservationStoreError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fast store unavailable")
		return nil, fmt.Errorf("fast store decrement: %w", err)
	}
	if !ok {
		g.metrics.Reservation(metrics.ReservationRejected)
		span.SetAttributes(attribute.String("result", metrics.ReservationRejected))
		return nil, domain.ErrInsufficientStock
	}

	reservation := domain.NewReservation(req.ItemID, req.Quantity, req.RequesterID)
	span.SetAttributes(attribute.String("correlation.token", reservation.CorrelationToken))

	handled := false
	defer func() {
		if handled {
			return
		}
		rec := recover()
		// 请求方断开不能阻止回补
		g.compensate(context.WithoutCancel(ctx), reservation)
		if rec != nil {
			panic(rec)
		}
	}()

	if err := g.queue.Enqueue(ctx, domain.NewSettlementTask(reservation, g.maxAttempts)); err != nil {
		handled = true
		span.RecordError(err)
		// 生产者报错不代表消息没有送达：回补未生效说明 worker 已经处理了该任务
		applied, refundErr := g.compensator.Refund(context.WithoutCancel(ctx), reservation)
		if refundErr == nil && !applied {
			logger.Ctx(ctx).Warn().Err(err).
				Str("correlation_token", reservation.CorrelationToken).
				Msg("Enqueue reported failure but task was already processed, keeping reservation")
			g.metrics.Reservation(metrics.ReservationAccepted)
			span.SetAttributes(attribute.String("result", metrics.ReservationAccepted))
			return reservation, nil
		}

		g.metrics.Reservation(metrics.ReservationEnqueueError)
		span.SetStatus(codes.Error, "enqueue failed")
		logger.Ctx(ctx).Error().Err(err).
			Str("correlation_token", reservation.CorrelationToken).
			Msg("Failed to enqueue settlement task")
		return nil, fmt.Errorf("enqueue settlement task: %w", err)
	}
	handled = true

	g.metrics.Reservation(metrics.ReservationAccepted)
	span.SetAttributes(attribute.String("result", metrics.ReservationAccepted))
	return reservation, nil
}

func (g *ReservationGate) validate(req ReserveRequest) error {
	switch {
	case req.ItemID <= 0:
		return domain.ValidationError("item_id must be positive, got %d", req.ItemID)
	case req.Quantity <= 0:
		return domain.ValidationError("quantity must be positive, got %d", req.Quantity)
	case req.RequesterID <= 0:
		return domain.ValidationError("requester_id must be positive, got %d", req.RequesterID)
	}
	if g.policy == nil {
		return nil
	}
	allowed, err := g.policy.Allow(req.ItemID, req.Quantity, req.RequesterID)
	if err != nil {
		return domain.ValidationError("order policy: %v", err)
	}
	if !allowed {
		return domain.ValidationError("rejected by order policy")
	}
	return nil
}

func (g *ReservationGate) compensate(ctx context.Context, r *domain.Reservation) {
	// 失败已由 Compensator 记录
	_, _ = g.compensator.Refund(ctx, r)
}
