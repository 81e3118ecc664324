// Package notifications provides real-time delivery of post events to connected clients.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"socialfeed/internal/middleware"
	"socialfeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Post event actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ChannelPosts is the envelope type every post event is sent under.
const ChannelPosts = "posts"

var (
	ErrTotalLimit   = errors.New("server connection limit reached")
	ErrUserLimit    = errors.New("user connection limit reached")
	ErrHubShutdown  = errors.New("hub is shut down")
	errUnknownEvent = errors.New("unknown post action")
)

// PostEvent describes one create, update or delete. Post is the post body for
// create and update and the post id for delete.
type PostEvent struct {
	Action string `json:"action"`
	Post   any    `json:"post"`
}

// Envelope is the frame written to every websocket client.
type Envelope struct {
	Type    string    `json:"type"`
	Payload PostEvent `json:"payload"`
}

// Hub maps userID -> set of Clients and fans post events out to all of them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*Client]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "feed hub" }

// Register a connection for a given userID. Returns the Client or error if limits exceeded.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubShutdown
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrTotalLimit
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		return nil, ErrUserLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()

	return client, nil
}

// UnregisterClient removes client and closes its send channel. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
	}
	client.closeSend()
}

// ConnectionCount returns the number of registered clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// BroadcastAll sends message to every connected websocket client and returns how many accepted it.
func (h *Hub) BroadcastAll(message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, clients := range h.conns {
		for c := range clients {
			if c.TrySend(message) {
				delivered++
			}
		}
	}
	return delivered
}

// BroadcastPosts encodes ev in the posts envelope and pushes it to every client.
// Clients that are not connected at this moment never see the event.
func (h *Hub) BroadcastPosts(ctx context.Context, ev PostEvent) error {
	switch ev.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return fmt.Errorf("%w: %q", errUnknownEvent, ev.Action)
	}

	data, err := json.Marshal(Envelope{Type: ChannelPosts, Payload: ev})
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}

	delivered := h.BroadcastAll(data)
	observability.BroadcastEventsTotal.WithLabelValues(ev.Action).Inc()
	middleware.Logger.DebugContext(ctx, "post event broadcast",
		"action", ev.Action, "delivered", delivered)
	return nil
}

// Shutdown closes every client and rejects new registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]map[*Client]struct{})
	observability.WebSocketConnectionsTotal.Sub(float64(h.totalConns))
	h.totalConns = 0
	h.mu.Unlock()

	// WritePump owns the connection; closing Send makes it send the close frame.
	for _, userConns := range conns {
		for client := range userConns {
			client.closeSend()
		}
	}
	return nil
}
