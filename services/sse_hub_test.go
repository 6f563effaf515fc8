package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, client *SSEClient) SSEEvent {
	t.Helper()
	select {
	case event, ok := <-client.Events():
		require.True(t, ok, "client channel closed unexpectedly")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return SSEEvent{}
	}
}

func assertNoEvent(t *testing.T, client *SSEClient) {
	t.Helper()
	select {
	case event, ok := <-client.Events():
		if ok {
			t.Fatalf("unexpected event: %v", event)
		}
	default:
	}
}

func TestHubBroadcastToSessionScopesDelivery(t *testing.T) {
	hub := NewHub()
	inSession := hub.Register("user-1", "session-1", "")
	otherSession := hub.Register("user-2", "session-2", "")
	unscoped := hub.Register("user-3", "", "")

	hub.BroadcastToSession("session-1", SSEEvent{Type: EventPlayerJoined, Data: "hi"})

	event := recvEvent(t, inSession)
	assert.Equal(t, EventPlayerJoined, event.Type)
	assertNoEvent(t, otherSession)
	assertNoEvent(t, unscoped)
}

func TestHubBroadcastToMatch(t *testing.T) {
	hub := NewHub()
	inMatch := hub.Register("user-1", "", "match-1")
	sessionOnly := hub.Register("user-1", "session-1", "")

	hub.BroadcastToMatch("match-1", SSEEvent{Type: EventMatchEnded})

	assert.Equal(t, EventMatchEnded, recvEvent(t, inMatch).Type)
	assertNoEvent(t, sessionOnly)
}

func TestHubBroadcastToUserReachesAllConnections(t *testing.T) {
	hub := NewHub()
	a := hub.Register("user-1", "session-1", "")
	b := hub.Register("user-1", "", "match-1")
	other := hub.Register("user-2", "", "")

	hub.BroadcastToUser("user-1", SSEEvent{Type: EventEloUpdate})

	assert.Equal(t, EventEloUpdate, recvEvent(t, a).Type)
	assert.Equal(t, EventEloUpdate, recvEvent(t, b).Type)
	assertNoEvent(t, other)
}

func TestHubDeregisterClosesChannelAndStopsDelivery(t *testing.T) {
	hub := NewHub()
	client := hub.Register("user-1", "session-1", "")

	hub.Deregister(client.ID)

	_, ok := <-client.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount("session-1", ""))

	// Broadcasting after teardown is a no-op
	hub.BroadcastToSession("session-1", SSEEvent{Type: EventPlayerLeft})
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	hub := NewHub()
	client := hub.Register("user-1", "session-1", "")

	// Fill the buffer without draining, then overflow it
	for i := 0; i < clientBuffer+1; i++ {
		hub.BroadcastToSession("session-1", SSEEvent{Type: EventPlayerJoined, Data: i})
	}

	assert.Equal(t, 0, hub.ClientCount("session-1", ""), "stalled client should be dropped")

	// The buffered events are still readable, then the channel closes
	for i := 0; i < clientBuffer; i++ {
		recvEvent(t, client)
	}
	_, ok := <-client.Events()
	assert.False(t, ok)
}

func TestHubShutdownDrainsEverything(t *testing.T) {
	hub := NewHub()
	a := hub.Register("user-1", "session-1", "")
	b := hub.Register("user-2", "", "match-1")

	hub.Shutdown()

	_, ok := <-a.Events()
	assert.False(t, ok)
	_, ok = <-b.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount("", ""))

	// Registration after shutdown hands back a closed client
	late := hub.Register("user-3", "", "")
	_, ok = <-late.Events()
	assert.False(t, ok)
}
