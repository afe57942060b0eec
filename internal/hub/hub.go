package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// sendBuffer is the per-connection outbound queue depth. A client that
	// falls this far behind is dropped rather than allowed to stall others.
	sendBuffer = 64

	// writeTimeout bounds a single frame write to a client socket.
	writeTimeout = 2 * time.Second
)

// connection is one live subscriber. Frames are queued on send and written
// by a single goroutine, which keeps per-entity emission order intact.
type connection struct {
	ID       string
	OpenedAt time.Time
	sock     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	closeOne sync.Once
}

// close signals the writer to stop and closes the socket. Safe to call from
// multiple goroutines.
func (c *connection) close() {
	c.closeOne.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

// Hub maintains the live connection set and broadcasts events to it.
// Delivery is best-effort: a disconnected client misses frames until it
// reconnects and re-fetches state through the query API.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*connection
	upgrader websocket.Upgrader
}

// New creates a hub with no connections.
func New() *Hub {
	return &Hub{
		conns: make(map[string]*connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Broadcast encodes the event once and queues it on every open connection.
// A connection whose buffer is full or whose socket errored is dropped
// without affecting delivery to the rest.
func (h *Hub) Broadcast(e Event) {
	frame, err := EncodeFrame(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event frame")
		return
	}

	h.mu.RLock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
		case c.send <- frame:
		default:
			log.Warn().Str("connectionId", c.ID).Str("event", e.EventType()).
				Msg("Subscriber send buffer full, dropping connection")
			h.remove(c)
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWS upgrades the request to a WebSocket subscriber connection and
// blocks until the client disconnects. The channel is server-to-client only;
// inbound frames are discarded.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &connection{
		ID:       uuid.NewString(),
		OpenedAt: time.Now(),
		sock:     sock,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[c.ID] = c
	total := len(h.conns)
	h.mu.Unlock()

	log.Debug().Str("connectionId", c.ID).Int("totalClients", total).
		Msg("Subscriber connected")

	go h.writeLoop(c)

	// Read loop exists only to observe the close handshake.
	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

// writeLoop drains the send queue onto the socket in FIFO order.
func (h *Hub) writeLoop(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Str("connectionId", c.ID).Err(err).
					Msg("Write to subscriber failed, removing")
				h.remove(c)
				return
			}
		}
	}
}

// remove deregisters and closes a connection. Safe under concurrent
// broadcast and repeat calls.
func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	_, present := h.conns[c.ID]
	delete(h.conns, c.ID)
	total := len(h.conns)
	h.mu.Unlock()

	c.close()

	if present {
		log.Debug().Str("connectionId", c.ID).Int("totalClients", total).
			Msg("Subscriber disconnected")
	}
}

// Close drops every connection. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
