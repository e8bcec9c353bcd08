// internal/service/stock/infrastructure/adapter/outcome_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/stock/domain"
)

// OutcomeKafkaAdapter 是 port.OutcomePublisher 的实现。
// 以 requester ID 为 key，推送网关可以按用户顺序消费。
type OutcomeKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewOutcomeKafkaAdapter(writer mq.MessageWriter) *OutcomeKafkaAdapter {
	return &OutcomeKafkaAdapter{writer: writer}
}

func (a *OutcomeKafkaAdapter) Publish(ctx context.Context, outcome *domain.SettlementOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement outcome: %w", err)
	}
	key := []byte(strconv.FormatInt(outcome.RequesterID, 10))
	return mq.ProduceMessage(ctx, a.writer, key, payload)
}
