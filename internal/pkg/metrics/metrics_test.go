package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue 从 registry 中取出某个带标签计数器的值
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Reservation(ReservationAccepted)
	m.Reservation(ReservationAccepted)
	m.Reservation(ReservationRejected)
	m.Compensation(CompensationApplied)
	m.Settlement("completed", 20*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, reg, "stockgate_reservations_total", "result", ReservationAccepted))
	assert.Equal(t, 1.0, counterValue(t, reg, "stockgate_reservations_total", "result", ReservationRejected))
	assert.Equal(t, 1.0, counterValue(t, reg, "stockgate_compensations_total", "result", CompensationApplied))
	assert.Equal(t, 1.0, counterValue(t, reg, "stockgate_settlements_total", "state", "completed"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reservation(ReservationAccepted)
		m.Settlement("completed", time.Second)
		m.Compensation(CompensationFailed)
	})
}
