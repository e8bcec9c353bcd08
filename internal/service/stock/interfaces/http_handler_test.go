package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"stockgate/internal/pkg/bootstrap"
	"stockgate/internal/pkg/metrics"
	"stockgate/internal/service/stock/application"
	"stockgate/internal/service/stock/domain"
	"stockgate/internal/service/stock/domain/port"
	"stockgate/internal/service/stock/infrastructure/memory"
	"stockgate/internal/service/stock/infrastructure/rule"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *domain.SettlementTask) error {
	return errors.New("kafka: not enough replicas")
}

type handlerFixture struct {
	server *httptest.Server
	store  *memory.CounterStore
	ledger *memory.Ledger
	queue  *capturingQueue
}

type capturingQueue struct {
	tasks []*domain.SettlementTask
}

func (q *capturingQueue) Enqueue(_ context.Context, task *domain.SettlementTask) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func newHandlerFixture(t *testing.T, failEnqueue bool) *handlerFixture {
	t.Helper()
	return newPolicyHandlerFixture(t, failEnqueue, bootstrap.DefaultConfig().Policy.Expression)
}

func newPolicyHandlerFixture(t *testing.T, failEnqueue bool, expression string) *handlerFixture {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	policy, err := rule.NewCELOrderPolicy(expression)
	require.NoError(t, err)

	f := &handlerFixture{store: memory.NewCounterStore(), ledger: memory.NewLedger(), queue: &capturingQueue{}}
	var queue port.TaskQueue = f.queue
	if failEnqueue {
		queue = failingQueue{}
	}

	comp := application.NewCompensator(f.store, m, application.CompensatorConfig{MaxAttempts: 1})
	gate := application.NewReservationGate(f.store, queue, policy, comp, tracer, m, domain.DefaultMaxAttempts)
	svc := application.NewStockService(f.store, f.ledger, memory.NewItemLocker(), tracer)

	mux := http.NewServeMux()
	NewStockHandler(gate, svc, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (f *handlerFixture) initStock(t *testing.T, id, durable, fast int64) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"item_id": id, "name": "widget", "durable_quantity": durable, "fast_quantity": fast})
	resp, _ := f.do(t, http.MethodPost, "/admin/stock", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_ReserveAccepted(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.initStock(t, 1, 10, 10)

	resp, body := f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":3,"requester_id":5}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["correlation_token"])
	require.Len(t, f.queue.tasks, 1)

	resp, body = f.do(t, http.MethodGet, "/stock/1/fast", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(7), body["quantity"])
}

func TestHandler_ReserveInsufficient(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.initStock(t, 1, 10, 2)

	resp, body := f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":3,"requester_id":5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", body["error"])
}

func TestHandler_ReserveValidation(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.initStock(t, 1, 500, 500)

	for _, payload := range []string{
		`{"item_id":1,"quantity":0,"requester_id":5}`,
		`{"item_id":1,"quantity":1}`,
		`not json`,
	} {
		resp, body := f.do(t, http.MethodPost, "/orders", payload)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, payload)
		assert.Equal(t, "validation_error", body["error"], payload)
	}
	assert.Empty(t, f.queue.tasks)
}

func TestHandler_DefaultPolicyAcceptsLargeQuantity(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.initStock(t, 1, 500, 500)

	resp, body := f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":250,"requester_id":5}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	require.Len(t, f.queue.tasks, 1)
}

func TestHandler_ConfiguredCapRejectsQuantity(t *testing.T) {
	f := newPolicyHandlerFixture(t, false, "quantity > 0 && quantity <= 100")
	f.initStock(t, 1, 500, 500)

	resp, body := f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":101,"requester_id":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
	assert.Empty(t, f.queue.tasks)

	resp, _ = f.do(t, http.MethodGet, "/stock/1/fast", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_ReserveQueueUnavailable(t *testing.T) {
	f := newHandlerFixture(t, true)
	f.initStock(t, 1, 10, 10)

	resp, _ := f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":3,"requester_id":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	n, _ := f.store.Get(context.Background(), 1)
	assert.Equal(t, int64(10), n)
}

func TestHandler_DurableStockAndOrders(t *testing.T) {
	f := newHandlerFixture(t, false)

	resp, _ := f.do(t, http.MethodGet, "/stock/1/durable", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.initStock(t, 1, 4, 10)
	resp, body := f.do(t, http.MethodGet, "/stock/1/durable", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["quantity"])

	resp, _ = f.do(t, http.MethodGet, "/stock/abc/durable", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	r := domain.NewReservation(1, 1, 5)
	_, err := f.ledger.Settle(context.Background(), r)
	require.NoError(t, err)

	resp, body = f.do(t, http.MethodGet, "/orders/"+r.CorrelationToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/orders/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	f := newHandlerFixture(t, false)
	f.initStock(t, 1, 1, 1)
	f.do(t, http.MethodPost, "/orders", `{"item_id":1,"quantity":1,"requester_id":5}`)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/metrics", nil)
	mresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer mresp.Body.Close()
	buf := new(strings.Builder)
	_, _ = io.Copy(buf, mresp.Body)
	assert.Contains(t, buf.String(), `stockgate_reservations_total{result="accepted"} 1`)
}
