package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Event is one message pushed to /ws subscribers, generalized from the
// teacher's agent-lifecycle Event to the job-lifecycle events recorded by
// pkg/queue.EventLog.
type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans out job lifecycle events to every connected /ws client, same
// register/unregister/broadcast shape as the teacher's WebSocketHub, with
// the per-agent topic subscription model dropped: a single job pipeline has
// no equivalent "channel" to subscribe by, so every client sees every event.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates an unstarted Hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's event loop until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now()
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- event:
				default:
					// client buffer full, drop rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast enqueues event for delivery to every connected client.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		// broadcast channel full; the live feed is best-effort, the job row
		// in Postgres remains authoritative.
	}
}

// ConnectionCount returns the number of connected /ws clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		c := &client{conn: conn, send: make(chan Event, 256)}
		s.hub.register <- c

		c.send <- Event{Type: "connected", Timestamp: time.Now()}

		go c.writePump()
		c.readPump(s.hub)
	}).ServeHTTP(w, r)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for event := range c.send {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := c.conn.Write(data); err != nil {
			return
		}
	}
}

// readPump only watches for disconnect; /ws is a one-way status feed, so any
// inbound frame other than a close is ignored.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	buf := make([]byte, 512)
	for {
		if _, err := c.conn.Read(buf); err != nil {
			return
		}
	}
}
