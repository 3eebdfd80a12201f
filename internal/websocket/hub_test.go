package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmeyer/session-scribe/internal/models"
)

func newTestClient(hub *Hub) *Client {
	client := &Client{Hub: hub, Send: make(chan []byte, 8)}
	hub.Register <- client
	return client
}

func receiveEvent(t *testing.T, client *Client) models.Event {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg struct {
			Action  string       `json:"action"`
			Payload models.Event `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		require.Equal(t, "event", msg.Action)
		return msg.Payload
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return models.Event{}
	}
}

func TestHubBroadcastsToUnsubscribedClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub)
	defer func() { hub.Unregister <- client }()

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ev := models.NewKeyPress(at, 0, "a", "a", models.Modifiers{})
	ev.Sequence = 1
	hub.BroadcastEvent(*ev)

	got := receiveEvent(t, client)
	assert.Equal(t, models.KindKeyPress, got.Kind)
	assert.Equal(t, uint64(1), got.Sequence)
}

func TestHubFiltersByKindSubscription(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub)
	defer func() { hub.Unregister <- client }()

	hub.UpdateSubscription(client, []models.Kind{models.KindWindowChange})

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	key := models.NewKeyPress(at, 0, "a", "a", models.Modifiers{})
	key.Sequence = 1
	hub.BroadcastEvent(*key)

	window := models.NewWindowChange(at, "Safari", "Docs", 0, "", "")
	window.Sequence = 2
	hub.BroadcastEvent(*window)

	got := receiveEvent(t, client)
	assert.Equal(t, models.KindWindowChange, got.Kind, "filtered kinds are skipped")
	assert.Equal(t, uint64(2), got.Sequence)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := &Client{Hub: hub, Send: make(chan []byte)} // unbuffered, never read
	hub.Register <- slow

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ev := models.NewKeyPress(at, 0, "a", "a", models.Modifiers{})
	hub.BroadcastEvent(*ev)

	select {
	case _, open := <-slow.Send:
		assert.False(t, open, "slow client's channel is closed on drop")
	case <-time.After(time.Second):
		t.Fatal("slow client was not dropped")
	}
}
