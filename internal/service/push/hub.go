// internal/service/push/hub.go
package push

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockgate/internal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub 维护所有活跃的 WebSocket 连接，按 requester ID 分组
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]map[*Client]struct{})}
}

// Client 是一个 WebSocket 连接
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	requesterID int64
	closeOnce   sync.Once
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.requesterID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.requesterID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.requesterID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		c.closeOnce.Do(func() { close(c.send) })
	}
	if len(set) == 0 {
		delete(h.clients, c.requesterID)
	}
}

// Deliver 把消息推给该 requester 的所有连接，返回投递成功的连接数。
// 发送缓冲已满的慢连接会被断开。
func (h *Hub) Deliver(requesterID int64, payload []byte) int {
	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for c := range h.clients[requesterID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.unregister(c)
	}
	return delivered
}

// Connections 返回当前连接数
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// ServeWs 处理 /ws?requester_id= 的升级请求
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	requesterID, err := strconv.ParseInt(r.URL.Query().Get("requester_id"), 10, 64)
	if err != nil || requesterID <= 0 {
		http.Error(w, "requester_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), requesterID: requesterID}
	h.register(client)
	logger.L().Info().Int64("requester_id", requesterID).Msg("Client registered")

	go client.writePump()
	go client.readPump()
}

// writePump 把 send 中的消息写入连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理 pong 和关闭，客户端不需要上行消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		logger.L().Info().Int64("requester_id", c.requesterID).Msg("Client unregistered")
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
