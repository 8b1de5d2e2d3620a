package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"simex/domain/book"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	clientSendSize = 256
)

// Hub fans trade events out to connected websocket clients. Clients
// subscribe per instrument; a client with no subscriptions gets
// everything.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan wsTrade

	log *zap.Logger
}

type wsTrade struct {
	Type string `json:"type"`
	book.Trade
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan wsTrade, clientSendSize),
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("ws client connected", zap.String("remote", c.remote))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug("ws client disconnected", zap.String("remote", c.remote))

		case t := <-h.broadcast:
			msg, err := json.Marshal(t)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(t.Symbol) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow client; drop the message rather than stall.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastTrade queues a trade for fan-out. Non-blocking: if the hub
// is saturated the trade is dropped, matching the best-effort delivery
// model of the event queue.
func (h *Hub) BroadcastTrade(t book.Trade) {
	select {
	case h.broadcast <- wsTrade{Type: "trade", Trade: t}:
	default:
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, clientSendSize),
		remote:  r.RemoteAddr,
		symbols: make(map[string]struct{}),
	}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string

	mu      sync.RWMutex
	symbols map[string]struct{}
}

type clientCommand struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}
		switch cmd.Op {
		case "subscribe":
			c.mu.Lock()
			for _, s := range cmd.Symbols {
				c.symbols[s] = struct{}{}
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			for _, s := range cmd.Symbols {
				delete(c.symbols, s)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
