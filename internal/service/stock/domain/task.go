// internal/service/stock/domain/task.go
package domain

import "time"

// DefaultMaxAttempts 是结算任务默认的最大尝试次数
const DefaultMaxAttempts = 3

// SettlementTask 是投递到结算队列中的任务信封。
// 尝试次数和上限随任务流转，重试策略由 worker 决定。
type SettlementTask struct {
	Reservation Reservation `json:"reservation"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"maxAttempts"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
}

// NewSettlementTask 创建一个新的结算任务
func NewSettlementTask(r *Reservation, maxAttempts int) *SettlementTask {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &SettlementTask{
		Reservation: *r,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Exhausted 表示任务已用完所有尝试次数
func (t *SettlementTask) Exhausted() bool {
	return t.Attempt >= t.MaxAttempts
}

// TaskState 是单个结算任务的状态机
type TaskState string

const (
	TaskReceived     TaskState = "received"
	TaskSettling     TaskState = "settling"
	TaskCompleted    TaskState = "completed"
	TaskCompensating TaskState = "compensating"
	TaskCompensated  TaskState = "compensated"
	// TaskSkipped 表示重复投递且已被补偿过的任务
	TaskSkipped TaskState = "skipped"
)

// SettlementOutcome 是结算进入终态后对外发布的结果事件
type SettlementOutcome struct {
	CorrelationToken string    `json:"correlationToken"`
	ItemID           ItemID    `json:"itemId"`
	Quantity         int64     `json:"quantity"`
	RequesterID      int64     `json:"requesterId"`
	State            TaskState `json:"state"`
	Fault            FaultKind `json:"fault,omitempty"`
	OrderID          int64     `json:"orderId,omitempty"`
	Attempts         int       `json:"attempts"`
	SettledAt        time.Time `json:"settledAt"`
}
