package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog/log"
)

const (
	HUB_BUFFER    = 256
	WRITE_TIMEOUT = 10 * time.Second
)

type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Hub fans crash events out to websocket subscribers.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, HUB_BUFFER),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx ends. Once it returns,
// registering closes the new connection and unregistering is a no-op.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug().Str("component", "ws").Str("user_id", client.userID).Int("clients", n).Msg("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug().Str("component", "ws").Str("user_id", client.userID).Int("clients", n).Msg("client disconnected")

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("component", "ws").Str("type", ev.Type).Msg("marshal event")
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				go client.send(payload)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast never blocks the caller; events are dropped when the buffer is
// full.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Warn().Str("component", "ws").Str("type", ev.Type).Msg("broadcast buffer full, dropping event")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Debug().Err(err).Str("component", "ws").Str("user_id", c.userID).Msg("write failed")
	}
}

// SendInitialState pushes the current crash snapshot to a new subscriber.
func (c *Client) SendInitialState(snap CrashSnapshot) {
	payload, err := json.Marshal(Event{Type: "initial_state", Data: snap})
	if err != nil {
		return
	}
	c.send(payload)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{conn: conn, userID: userID}
	select {
	case h.register <- client:
	case <-h.done:
		if conn != nil {
			conn.Close()
		}
	}
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (c *Client) Pong() {
	c.send([]byte(`{"type":"pong"}`))
}
