package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncproxy_connected_clients",
		Help: "Number of currently connected event stream clients",
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncproxy_broadcasts_total",
		Help: "Total messages broadcast to clients by type",
	}, []string{"type"})

	droppedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncproxy_dropped_messages_total",
		Help: "Total broadcast messages dropped due to slow clients",
	})
)

// clientBuffer bounds the per-client outbound queue. A client that cannot
// keep up loses messages rather than blocking the broadcaster.
const clientBuffer = 16

// heartbeatInterval keeps idle SSE connections from being reaped by
// intermediaries.
const heartbeatInterval = 25 * time.Second

// Hub tracks connected clients and broadcasts messages to all of them.
// Registration is ephemeral: a client exists only while its stream is open.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan Message
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]chan Message),
		logger:  logger,
	}
}

// Register adds a client and returns its id, receive channel, and a
// deregistration func.
func (h *Hub) Register() (string, <-chan Message, func()) {
	id := uuid.NewString()
	ch := make(chan Message, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	connectedClients.Inc()
	h.logger.Debug().Str("client_id", id).Msg("Client connected")

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.clients[id]; ok {
			delete(h.clients, id)
			close(ch)
			connectedClients.Dec()
		}
		h.mu.Unlock()
		h.logger.Debug().Str("client_id", id).Msg("Client disconnected")
	}

	return id, ch, cancel
}

// Broadcast sends a message to every connected client. Sends never block:
// a full client buffer drops the message for that client.
func (h *Hub) Broadcast(msg Message) {
	broadcastsTotal.WithLabelValues(msg.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			droppedMessagesTotal.Inc()
			h.logger.Warn().
				Str("client_id", id).
				Str("type", msg.Type).
				Msg("Dropped message for slow client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SyncSuccess implements queue.Notifier.
func (h *Hub) SyncSuccess(id, url string) {
	h.Broadcast(Message{Type: TypeSyncSuccess, ID: id, URL: url})
}

// SyncFailed implements queue.Notifier.
func (h *Hub) SyncFailed(id string) {
	h.Broadcast(Message{Type: TypeSyncFailed, ID: id})
}

// SyncDeadLetter implements queue.Notifier.
func (h *Hub) SyncDeadLetter(id, url string) {
	h.Broadcast(Message{Type: TypeSyncDeadLetter, ID: id, URL: url})
}

// ServeSSE streams hub messages to one client as server-sent events until
// the client disconnects.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_, ch, cancel := h.Register()
	defer cancel()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
