// internal/service/push/outcome_consumer.go
package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/stock/domain"
)

// OutcomeConsumer 消费结算结果并推送给在线的下单用户
type OutcomeConsumer struct {
	reader mq.MessageReader
	hub    *Hub
}

func NewOutcomeConsumer(reader mq.MessageReader, hub *Hub) *OutcomeConsumer {
	return &OutcomeConsumer{reader: reader, hub: hub}
}

func (c *OutcomeConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ Outcome consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to fetch outcome")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		var outcome domain.SettlementOutcome
		if err := json.Unmarshal(msg.Value, &outcome); err != nil {
			logger.Ctx(msgCtx).Warn().Err(err).Int64("offset", msg.Offset).Msg("Dropping malformed outcome")
		} else {
			n := c.hub.Deliver(outcome.RequesterID, msg.Value)
			logger.Ctx(msgCtx).Debug().
				Str("correlation_token", outcome.CorrelationToken).
				Str("state", string(outcome.State)).
				Int("connections", n).
				Msg("Outcome pushed")
		}

		// 推送是尽力而为，离线用户可以通过 GET /orders/{token} 查询
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit outcome")
		}
	}
}
