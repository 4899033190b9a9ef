package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	outBuffer  = 32
)

// Event is one message pushed to presentation clients.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Client is one connected websocket listener.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	Outgoing chan []byte
}

// Hub fans raffle events out to every connected client.
// A client that cannot keep up loses messages rather than stalling the hub.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	upgrader websocket.Upgrader

	sent    atomic.Int64
	dropped atomic.Int64
	joined  atomic.Int64
}

// New creates a hub. Call Run to start delivering events.
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves register/unregister/broadcast until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.Outgoing)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.joined.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.Outgoing)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.Outgoing <- msg:
					h.sent.Inc()
				default:
					h.dropped.Inc()
				}
			}
		}
	}
}

// Publish queues an event for every client. It never blocks.
func (h *Hub) Publish(kind string, payload any) {
	b, err := json.Marshal(Event{Type: kind, At: time.Now(), Payload: payload})
	if err != nil {
		logger.Warningf("hub: encode %s event: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Inc()
	}
}

// Stats are cumulative delivery counters.
type Stats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Joined  int64 `json:"joined"`
}

// Stats returns the current delivery counters.
func (h *Hub) Stats() Stats {
	return Stats{Sent: h.sent.Load(), Dropped: h.dropped.Load(), Joined: h.joined.Load()}
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("hub: upgrade: %v", err)
		return
	}
	c := &Client{hub: h, conn: conn, Outgoing: make(chan []byte, outBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// readPump only watches for close and pong frames; clients never send events.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
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

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Outgoing:
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
