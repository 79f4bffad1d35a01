package server

import (
	"net/http"
	"sync"
	"time"

	"signalml/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamEvent is one prediction published to connected stream clients.
type StreamEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Signal       string    `json:"signal"`
	Probability  float64   `json:"probability"`
	Confidence   int       `json:"confidence"`
	ModelVersion string    `json:"modelVersion"`
}

// Hub fans predictions out to websocket clients. Publish never blocks
// the request path: when the broadcast channel is full the event is
// dropped. Clients whose writes fail are evicted.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan StreamEvent
	done      chan struct{}
	closeOnce sync.Once
	gauge     metrics.Gauge
}

// NewHub creates a stream hub. The gauge tracks connected clients and
// may be nil.
func NewHub(gauge metrics.Gauge) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan StreamEvent, 100),
		done:      make(chan struct{}),
		gauge:     gauge,
	}
}

// Run drives the broadcaster until Close is called. It is meant to run
// in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

// Publish enqueues an event for broadcast, dropping it when the channel
// is full.
func (h *Hub) Publish(ev StreamEvent) {
	select {
	case h.broadcast <- ev:
	default:
		log.Debug().Msg("Stream broadcast channel full, dropping event")
	}
}

// Handle upgrades the request onto the stream. The connection is held
// open until the client disconnects or the hub closes.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Stream upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	if h.gauge != nil {
		h.gauge.Set(float64(count))
	}
	log.Info().Int("clients", count).Msg("Stream client connected")

	// Reader loop exists only to detect disconnects; inbound messages
	// are discarded.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount reports the number of connected stream clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Close shuts the broadcaster down and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.clientsMu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.clientsMu.Unlock()
		if h.gauge != nil {
			h.gauge.Set(0)
		}
	})
}

func (h *Hub) fanOut(ev StreamEvent) {
	h.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clientsMu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("Stream write failed, evicting client")
			h.remove(conn)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	conn.Close()
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.clientsMu.Unlock()
	if h.gauge != nil {
		h.gauge.Set(float64(count))
	}
}
