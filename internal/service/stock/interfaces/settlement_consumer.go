// internal/service/stock/interfaces/settlement_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/stock/domain"
)

// TaskProcessor 把一个结算任务推进到终态
type TaskProcessor interface {
	Process(ctx context.Context, task *domain.SettlementTask) (domain.TaskState, error)
}

// SettlementConsumerAdapter 从结算队列拉取任务并交给 worker。
// 多个实例使用同一个 consumer group 组成 worker 池，每个实例顺序处理自己的分区。
type SettlementConsumerAdapter struct {
	id             int
	reader         mq.MessageReader
	worker         TaskProcessor
	failureHandler *mq.FailureHandler
}

func NewSettlementConsumerAdapter(id int, reader mq.MessageReader, worker TaskProcessor, failureHandler *mq.FailureHandler) *SettlementConsumerAdapter {
	return &SettlementConsumerAdapter{
		id:             id,
		reader:         reader,
		worker:         worker,
		failureHandler: failureHandler,
	}
}

// Run 阻塞消费直到 ctx 结束或 reader 被关闭。
// offset 只在任务到达终态（或被转入死信）后提交，进程中断时任务会被重新投递。
func (a *SettlementConsumerAdapter) Run(ctx context.Context) error {
	log := logger.Ctx(ctx).With().Int("worker", a.id).Logger()
	log.Info().Msg("✅ Settlement consumer started")
	defer log.Info().Msg("🛑 Settlement consumer stopped")

	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			log.Error().Err(err).Msg("Failed to fetch settlement task")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		task, err := decodeTask(msg.Value)
		if err != nil {
			// 无法解析的消息直接转入死信，避免阻塞分区
			a.failureHandler.Handle(msgCtx, msg, err)
			a.commit(ctx, msg)
			continue
		}

		state, err := a.worker.Process(msgCtx, task)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(msgCtx).Error().Err(err).
				Str("state", string(state)).
				Str("correlation_token", task.Reservation.CorrelationToken).
				Msg("Settlement task ended without terminal state")
		}
		a.commit(ctx, msg)
	}
}

func (a *SettlementConsumerAdapter) commit(ctx context.Context, msg kafka.Message) {
	if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit messages")
	}
}

func decodeTask(payload []byte) (*domain.SettlementTask, error) {
	var task domain.SettlementTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement task: %w", err)
	}
	r := task.Reservation
	if r.CorrelationToken == "" || r.ItemID <= 0 || r.Quantity <= 0 {
		return nil, fmt.Errorf("malformed settlement task: %s", payload)
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = domain.DefaultMaxAttempts
	}
	return &task, nil
}
