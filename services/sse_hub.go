// services/sse_hub.go
package services

import (
	"sync"

	"github.com/google/uuid"
)

type SSEEventType string

const (
	EventPlayerJoined  SSEEventType = "player_joined"
	EventPlayerLeft    SSEEventType = "player_left"
	EventMatchStarted  SSEEventType = "match_started"
	EventMatchEnded    SSEEventType = "match_ended"
	EventEloUpdate     SSEEventType = "elo_update"
	EventSessionEnded  SSEEventType = "session_ended"
	EventSessionInvite SSEEventType = "session_invite"
)

// SSEEvent is a tagged payload fanned out to subscribed connections.
type SSEEvent struct {
	Type SSEEventType `json:"type"`
	Data interface{}  `json:"data"`
}

// SSEClient is one live transport connection and the scopes it listens on.
// A client always belongs to a user and may additionally be scoped to a
// session and/or a match.
type SSEClient struct {
	ID            string
	UserID        string
	PlaySessionID string
	MatchID       string

	events chan SSEEvent
}

// Events is the delivery channel; it is closed when the client is
// deregistered or the hub shuts down.
func (c *SSEClient) Events() <-chan SSEEvent { return c.events }

// Hub is the in-process pub/sub registry for SSE connections. It is an
// explicitly constructed service with a bounded lifetime: created at boot,
// drained via Shutdown. All maps are guarded by a single mutex since
// broadcasts, registration and teardown interleave freely.
type Hub struct {
	mu             sync.Mutex
	closed         bool
	clients        map[string]*SSEClient
	sessionClients map[string]map[string]struct{}
	matchClients   map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:        make(map[string]*SSEClient),
		sessionClients: make(map[string]map[string]struct{}),
		matchClients:   make(map[string]map[string]struct{}),
	}
}

// clientBuffer bounds per-connection delivery. A client that falls this far
// behind is treated as dead and dropped.
const clientBuffer = 16

// Register adds a connection for userID, optionally scoped to a session
// and/or match (empty string = unscoped).
func (h *Hub) Register(userID, playSessionID, matchID string) *SSEClient {
	client := &SSEClient{
		ID:            uuid.NewString(),
		UserID:        userID,
		PlaySessionID: playSessionID,
		MatchID:       matchID,
		events:        make(chan SSEEvent, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(client.events)
		return client
	}

	h.clients[client.ID] = client
	if playSessionID != "" {
		if h.sessionClients[playSessionID] == nil {
			h.sessionClients[playSessionID] = make(map[string]struct{})
		}
		h.sessionClients[playSessionID][client.ID] = struct{}{}
	}
	if matchID != "" {
		if h.matchClients[matchID] == nil {
			h.matchClients[matchID] = make(map[string]struct{})
		}
		h.matchClients[matchID][client.ID] = struct{}{}
	}
	return client
}

func (h *Hub) Deregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(clientID)
}

func (h *Hub) removeLocked(clientID string) {
	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	if client.PlaySessionID != "" {
		set := h.sessionClients[client.PlaySessionID]
		delete(set, clientID)
		if len(set) == 0 {
			delete(h.sessionClients, client.PlaySessionID)
		}
	}
	if client.MatchID != "" {
		set := h.matchClients[client.MatchID]
		delete(set, clientID)
		if len(set) == 0 {
			delete(h.matchClients, client.MatchID)
		}
	}
	delete(h.clients, clientID)
	close(client.events)
}

// deliverLocked pushes an event to one client; a full buffer means the
// connection stopped draining, so the client is dropped. At-most-once,
// best-effort.
func (h *Hub) deliverLocked(clientID string, event SSEEvent) {
	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	select {
	case client.events <- event:
	default:
		h.removeLocked(clientID)
	}
}

// BroadcastToSession fans an event out to every connection scoped to the
// session. Delivery failures never affect the triggering request.
func (h *Hub) BroadcastToSession(playSessionID string, event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID := range h.sessionClients[playSessionID] {
		h.deliverLocked(clientID, event)
	}
}

func (h *Hub) BroadcastToMatch(matchID string, event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID := range h.matchClients[matchID] {
		h.deliverLocked(clientID, event)
	}
}

func (h *Hub) BroadcastToUser(userID string, event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID, client := range h.clients {
		if client.UserID == userID {
			h.deliverLocked(clientID, event)
		}
	}
}

// ClientCount reports connections for a scope; both IDs empty counts all.
func (h *Hub) ClientCount(playSessionID, matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if playSessionID != "" {
		return len(h.sessionClients[playSessionID])
	}
	if matchID != "" {
		return len(h.matchClients[matchID])
	}
	return len(h.clients)
}

// Shutdown drains the hub: every client channel is closed and further
// registrations are rejected.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for clientID := range h.clients {
		h.removeLocked(clientID)
	}
}
