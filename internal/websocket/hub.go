package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/models"
)

// subscription updates which event kinds a client wants to receive.
type subscription struct {
	client *Client
	kinds  []models.Kind
}

// Hub maintains the set of active clients and streams timeline events to
// them. A client with no subscription receives every event; a client that
// subscribed receives only the listed kinds. All client-set mutation happens
// on the Run goroutine.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Events ingested by the timeline bus, for fan-out.
	Events chan models.Event

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Subscription updates from clients.
	Subscribe chan subscription

	// Per-client set of subscribed kinds; empty set means everything.
	subscriptions map[*Client]map[models.Kind]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Events:        make(chan models.Event, 256),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Subscribe:     make(chan subscription),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[*Client]map[models.Kind]bool),
	}
}

// Run starts the Hub's processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Client connected")

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}

		case sub := <-h.Subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			kinds := make(map[models.Kind]bool, len(sub.kinds))
			for _, k := range sub.kinds {
				if k.Valid() {
					kinds[k] = true
				}
			}
			h.subscriptions[sub.client] = kinds
			log.Debug().Int("kinds", len(kinds)).Msg("Client subscription updated")

		case event := <-h.Events:
			h.fanOut(event)
		}
	}
}

// BroadcastEvent queues an event for fan-out. It never blocks the caller: if
// the hub is saturated the event is skipped for live streaming (the durable
// timeline is unaffected).
func (h *Hub) BroadcastEvent(event models.Event) {
	select {
	case h.Events <- event:
	default:
		log.Warn().Uint64("seq", event.Sequence).Msg("Live stream saturated, skipping event")
	}
}

// UpdateSubscription replaces a client's subscribed kinds.
func (h *Hub) UpdateSubscription(client *Client, kinds []models.Kind) {
	h.Subscribe <- subscription{client: client, kinds: kinds}
}

// fanOut delivers an event to every client whose subscription matches. Slow
// clients are dropped rather than allowed to block the hub.
func (h *Hub) fanOut(event models.Event) {
	message, err := json.Marshal(NewEventMessage(event))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event for live stream")
		return
	}

	for client := range h.clients {
		kinds := h.subscriptions[client]
		if len(kinds) > 0 && !kinds[event.Kind] {
			continue
		}
		select {
		case client.Send <- message:
		default:
			h.drop(client)
			log.Warn().Msg("Dropping slow websocket client")
		}
	}
}

// drop removes a client and closes its send channel. Caller is the Run
// goroutine.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	delete(h.subscriptions, client)
	close(client.Send)
}
