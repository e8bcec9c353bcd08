package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockgate/internal/service/stock/domain"
)

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return hub, server
}

func TestHub_DeliversToRequester(t *testing.T) {
	hub, server := newHubServer(t)
	alice := dial(t, server, "?requester_id=1")
	bob := dial(t, server, "?requester_id=2")
	require.Eventually(t, func() bool { return hub.Connections() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, hub.Deliver(1, []byte(`{"state":"completed"}`)))
	assert.Equal(t, 0, hub.Deliver(3, []byte(`{}`)))

	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := alice.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"completed"}`, string(msg))

	_ = bob.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

func TestHub_RejectsMissingRequester(t *testing.T) {
	_, server := newHubServer(t)
	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, server := newHubServer(t)
	conn := dial(t, server, "?requester_id=9")
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Connections() == 0 }, time.Second, 5*time.Millisecond)
}

type sliceReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed int
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(context.Context, ...kafka.Message) error {
	r.mu.Lock()
	r.committed++
	r.mu.Unlock()
	return nil
}

func (r *sliceReader) Close() error { return io.EOF }

func (r *sliceReader) Committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func TestOutcomeConsumer_PushesOutcome(t *testing.T) {
	hub, server := newHubServer(t)
	conn := dial(t, server, "?requester_id=77")
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 5*time.Millisecond)

	payload, _ := json.Marshal(domain.SettlementOutcome{CorrelationToken: "tok", RequesterID: 77, State: domain.TaskCompensated})
	reader := &sliceReader{msgs: []kafka.Message{{Value: []byte("garbage")}, {Value: payload}}}
	consumer := NewOutcomeConsumer(reader, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = consumer.Run(ctx) }()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got domain.SettlementOutcome
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "tok", got.CorrelationToken)
	assert.Eventually(t, func() bool { return reader.Committed() == 2 }, time.Second, 5*time.Millisecond)
}
