package port

import (
	"context"

	"stockgate/internal/service/stock/domain"
)

// TaskQueue 是结算任务队列的出站端口（至少一次投递，跨商品无序）
type TaskQueue interface {
	Enqueue(ctx context.Context, task *domain.SettlementTask) error
}

// FailureRecorder 记录重试耗尽的结算任务，供运维排查
type FailureRecorder interface {
	RecordFailure(ctx context.Context, task *domain.SettlementTask, cause error) error
}

// OutcomePublisher 发布结算终态事件
type OutcomePublisher interface {
	Publish(ctx context.Context, outcome *domain.SettlementOutcome) error
}
