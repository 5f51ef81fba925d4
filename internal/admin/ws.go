package admin

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/md"
)

// RoutingEvent is one MD routing decision rendered for the live-tail feed.
type RoutingEvent struct {
	At          time.Time `json:"at"`
	Channel     uint64    `json:"channel"`
	Sender      uint64    `json:"sender"`
	MessageType uint16    `json:"message_type"`
	Outcome     string    `json:"outcome"`
	PayloadSize int       `json:"payload_size"`
}

// upgrader mirrors the teacher's zero-value websocket.Upgrader; this is a
// read-only ops side-channel rather than the client-facing game transport,
// so it accepts same-origin admin tooling without a custom CheckOrigin.
var upgrader = websocket.Upgrader{}

// Hub fans routing events out to every connected admin websocket client,
// adapted from the teacher's broadcast-channel client registry pattern in
// main.go, simplified to a one-way tail (no inbound client messages).
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	logger  *logging.Logger
}

type hubClient struct {
	send chan RoutingEvent
}

// NewHub constructs an empty broadcast hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.L()
	}
	return &Hub{clients: make(map[*hubClient]struct{}), logger: logger}
}

// Observer adapts the hub into an md.RoutingObserver, suitable for
// md.WithObserver.
func (h *Hub) Observer() md.RoutingObserver {
	return func(outcome string, handle md.MessageHandle) {
		h.Broadcast(RoutingEvent{
			At:          time.Now().UTC(),
			Channel:     uint64(handle.Channel),
			Sender:      uint64(handle.Sender),
			MessageType: handle.MessageType,
			Outcome:     outcome,
			PayloadSize: len(handle.Payload),
		})
	}
}

// Broadcast fans ev out to every connected client, dropping it for any
// client whose send buffer is full rather than blocking the router.
func (h *Hub) Broadcast(ev RoutingEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

func (h *Hub) register() *hubClient {
	c := &hubClient{send: make(chan RoutingEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// LiveTailHandler upgrades to a websocket and streams RoutingEvent JSON
// frames to the client until it disconnects. The cluster's real wire
// protocol stays raw TCP per spec §6; this is purely an ops side-channel
// (§A.2).
func (h *HandlerSet) LiveTailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.AdminToken != "" && !h.authorise(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.hub == nil {
			http.Error(w, "live tail unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("admin: websocket upgrade failed", logging.Error(err))
			return
		}
		defer conn.Close()

		client := h.hub.register()
		defer h.hub.unregister(client)

		for ev := range client.send {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
