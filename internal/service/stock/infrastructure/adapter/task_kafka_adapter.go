// internal/service/stock/infrastructure/adapter/task_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/stock/domain"
)

// TaskKafkaAdapter 是 port.TaskQueue 的 Kafka 实现。
// 以商品 ID 作为消息 key，同一商品的任务进入同一分区。
type TaskKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewTaskKafkaAdapter(writer mq.MessageWriter) *TaskKafkaAdapter {
	return &TaskKafkaAdapter{writer: writer}
}

func (a *TaskKafkaAdapter) Enqueue(ctx context.Context, task *domain.SettlementTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement task: %w", err)
	}
	key := []byte(strconv.FormatInt(int64(task.Reservation.ItemID), 10))
	return mq.ProduceMessage(ctx, a.writer, key, payload)
}
