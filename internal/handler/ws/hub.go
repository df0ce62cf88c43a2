package ws

import (
	"net/http"
	"sync"
	"time"

	models "MarketStructure/internal/domain/models"
	xlogger "MarketStructure/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscribeMessage narrows a client to some instruments. An empty list
// subscribes to everything.
type subscribeMessage struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments"`
}

type client struct {
	conn *websocket.Conn
	send chan *models.Signal

	mu     sync.RWMutex
	filter map[string]struct{}
}

func (c *client) wants(instrument string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.filter) == 0 {
		return true
	}
	_, ok := c.filter[instrument]
	return ok
}

func (c *client) subscribe(instruments []string) {
	f := make(map[string]struct{}, len(instruments))
	for _, i := range instruments {
		f[i] = struct{}{}
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// Hub fans emitted signals out to websocket subscribers. Slow clients whose
// buffer fills up are disconnected.
type Hub struct {
	logger *xlogger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(logger *xlogger.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues s for every client subscribed to its instrument.
func (h *Hub) Broadcast(s *models.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(s.Candidate.Instrument) {
			continue
		}
		select {
		case c.send <- s:
		default:
			h.logger.Warn("ws client too slow, disconnecting", xlogger.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Serve upgrades the request and streams signals until the client leaves.
func (h *Hub) Serve(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	c := &client{conn: conn, send: make(chan *models.Signal, sendBuffer)}
	if q := ctx.QueryParam("instrument"); q != "" {
		c.subscribe([]string{q})
	}
	if !h.add(c) {
		_ = conn.Close()
		return nil
	}
	h.logger.Debug("ws client connected", xlogger.String("remote", conn.RemoteAddr().String()))

	go h.readLoop(c)
	h.writeLoop(c)
	return nil
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg subscribeMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "subscribe" {
			c.subscribe(msg.Instruments)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case s, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(s); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
