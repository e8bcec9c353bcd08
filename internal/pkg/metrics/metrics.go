// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 预留标签值
const (
	ReservationAccepted     = "accepted"
	ReservationRejected     = "rejected"
	ReservationInvalid      = "invalid"
	ReservationEnqueueError = "enqueue_failed"
	ReservationStoreError   = "store_error"

	CompensationApplied   = "applied"
	CompensationDuplicate = "duplicate"
	CompensationFailed    = "failed"
)

// Metrics 汇总服务的 Prometheus 指标。零值指针上的方法都是空操作。
type Metrics struct {
	reservations       *prometheus.CounterVec
	settlements        *prometheus.CounterVec
	compensations      *prometheus.CounterVec
	settlementDuration prometheus.Histogram
}

// New 在给定的 Registerer 上注册全部指标
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_reservations_total",
			Help: "Reservation attempts at the gate, by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_settlements_total",
			Help: "Settlement tasks reaching a terminal state.",
		}, []string{"state"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_compensations_total",
			Help: "Fast-layer refunds, by result.",
		}, []string{"result"}),
		settlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockgate_settlement_duration_seconds",
			Help:    "Wall time from task receipt to terminal state.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.reservations, m.settlements, m.compensations, m.settlementDuration)
	return m
}

func (m *Metrics) Reservation(result string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *Metrics) Settlement(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(state).Inc()
	m.settlementDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Compensation(result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(result).Inc()
}
