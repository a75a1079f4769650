// Package feed streams ensemble decisions to connected dashboards over WebSocket.
package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"icu-risk/internal/ensemble"
)

const (
	EventPredictionNew = "prediction:new"
	EventCriticalAlert = "alert:critical"

	defaultBufferSize = 100
	writeTimeout      = 5 * time.Second
)

// Metrics tracks connected clients and delivered events.
type Metrics interface {
	FeedClientsSet(n int)
	FeedBroadcastsInc()
}

// Event is one message on the feed.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Data      ensemble.Decision `json:"data"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub fans decisions out to WebSocket clients. The broadcaster goroutine is the only
// writer on client connections.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan Event
	stop      chan struct{}
	isRunning bool
	mu        sync.Mutex
	metrics   Metrics
}

// NewHub creates a hub buffering up to bufferSize pending events.
func NewHub(metrics Metrics, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, bufferSize),
		metrics:   metrics,
	}
}

// Start launches the broadcaster. A stopped hub can be started again.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isRunning {
		return fmt.Errorf("feed hub is already running")
	}
	h.stop = make(chan struct{})
	go h.broadcaster(h.stop)
	h.isRunning = true
	log.Info().Msg("Decision feed started")
	return nil
}

// Stop ends the broadcaster and closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isRunning {
		return
	}
	close(h.stop)

	h.clientsMu.Lock()
	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientsMu.Unlock()
	h.reportClients(0)

	h.isRunning = false
	log.Info().Msg("Decision feed stopped")
}

// Publish queues a decision for broadcast. Critical decisions also raise an alert.
// It never blocks: events are dropped while the buffer is full.
func (h *Hub) Publish(d ensemble.Decision) {
	now := time.Now().UTC()
	h.enqueue(Event{ID: uuid.NewString(), Type: EventPredictionNew, Data: d, Timestamp: now})

	if d.RiskLevel == ensemble.Critical {
		h.enqueue(Event{
			ID:        uuid.NewString(),
			Type:      EventCriticalAlert,
			Data:      d,
			Message:   fmt.Sprintf("Critical patient incoming: risk score %.1f%%", d.RiskScore*100),
			Timestamp: now,
		})
	}
}

func (h *Hub) enqueue(e Event) {
	select {
	case h.broadcast <- e:
	default:
		log.Warn().Str("event", e.Type).Str("id", e.ID).Msg("Feed buffer full, dropping event")
	}
}

func (h *Hub) broadcaster(stop <-chan struct{}) {
	for {
		select {
		case e := <-h.broadcast:
			h.broadcastToClients(e)
		case <-stop:
			return
		}
	}
}

func (h *Hub) broadcastToClients(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal feed event")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Dropping feed client after failed write")
			client.Close()
			delete(h.clients, client)
		}
	}
	h.reportClients(len(h.clients))

	if h.metrics != nil {
		h.metrics.FeedBroadcastsInc()
	}
}

// HandleWebSocket upgrades the request and keeps the client registered until it
// disconnects. Incoming messages are ignored.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	// the HTTP server's read timeout would otherwise end idle subscriptions
	conn.SetReadDeadline(time.Time{})

	h.clientsMu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.reportClients(n)

	log.Debug().Str("remote", r.RemoteAddr).Int("clients", n).Msg("Feed client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	n = len(h.clients)
	h.clientsMu.Unlock()
	h.reportClients(n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) reportClients(n int) {
	if h.metrics != nil {
		h.metrics.FeedClientsSet(n)
	}
}
