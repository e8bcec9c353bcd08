// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
	"stockgate/internal/pkg/logger"
)

// 死信消息头，记录消息来源和失败原因
const (
	HeaderOriginalTopic     = "dlt-original-topic"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderExceptionFqcn     = "dlt-exception-fqcn"
	HeaderExceptionMessage  = "dlt-exception-message"
)

// FailureHandler 把无法处理的消息转发到死信队列
type FailureHandler struct {
	dlt MessageWriter
}

func NewFailureHandler(dlt MessageWriter) *FailureHandler {
	return &FailureHandler{dlt: dlt}
}

// Handle 转发原始消息。转发失败只记录日志，调用方仍然提交 offset。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	if err := h.Forward(ctx, msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value, cause); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("🚨 Failed to forward message to DLT")
	}
}

// Forward 写入一条带死信头的消息
func (h *FailureHandler) Forward(ctx context.Context, topic string, partition int, offset int64, key, value []byte, cause error) error {
	headers := DeadLetterHeaders(topic, partition, offset, cause)
	return ProduceMessage(ctx, h.dlt, key, value, headers...)
}

// DeadLetterHeaders 构建死信消息头
func DeadLetterHeaders(topic string, partition int, offset int64, cause error) []kafka.Header {
	fqcn, message := "<nil>", ""
	if cause != nil {
		fqcn = fmt.Sprintf("%T", cause)
		message = cause.Error()
	}
	return []kafka.Header{
		{Key: HeaderOriginalTopic, Value: []byte(topic)},
		{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(partition))},
		{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(offset, 10))},
		{Key: HeaderExceptionFqcn, Value: []byte(fqcn)},
		{Key: HeaderExceptionMessage, Value: []byte(message)},
	}
}

// HeaderMap 把消息头展开成 map，便于日志输出
func HeaderMap(headers []kafka.Header) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return m
}
