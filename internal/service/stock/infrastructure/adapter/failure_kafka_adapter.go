// internal/service/stock/infrastructure/adapter/failure_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/stock/domain"
)

// FailureKafkaAdapter 是 port.FailureRecorder 的实现，把重试耗尽的任务写入死信队列
type FailureKafkaAdapter struct {
	handler     *mq.FailureHandler
	sourceTopic string
}

func NewFailureKafkaAdapter(handler *mq.FailureHandler, sourceTopic string) *FailureKafkaAdapter {
	return &FailureKafkaAdapter{handler: handler, sourceTopic: sourceTopic}
}

func (a *FailureKafkaAdapter) RecordFailure(ctx context.Context, task *domain.SettlementTask, cause error) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal failed task: %w", err)
	}
	key := []byte(strconv.FormatInt(int64(task.Reservation.ItemID), 10))
	// 任务由 worker 内部重试，原始分区和 offset 已无意义
	return a.handler.Forward(ctx, a.sourceTopic, -1, -1, key, payload, cause)
}
