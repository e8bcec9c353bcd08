// internal/service/stock/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/mq"
)

// DltConsumerAdapter 监听死信队列并记录日志，供运维人员排查
type DltConsumerAdapter struct {
	reader mq.MessageReader
}

func NewDltConsumerAdapter(reader mq.MessageReader) *DltConsumerAdapter {
	return &DltConsumerAdapter{reader: reader}
}

func (a *DltConsumerAdapter) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("✅ DLT consumer started")
	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Ctx(ctx).Info().Msg("🛑 DLT consumer shutting down")
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		logDeadLetter(mq.ExtractTraceContext(ctx, msg.Headers), msg)

		// 死信记录日志后即视为已处理
		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit DLT message")
		}
	}
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := mq.HeaderMap(msg.Headers)
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
}
