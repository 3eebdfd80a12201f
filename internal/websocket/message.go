package websocket

import "github.com/lmeyer/session-scribe/internal/models"

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// subscribePayload is the payload of a client "subscribe" message.
type subscribePayload struct {
	Kinds []models.Kind `json:"kinds"`
}

// NewEventMessage wraps a timeline event for the live stream.
func NewEventMessage(event models.Event) Message {
	return Message{Action: "event", Payload: event}
}

// NewErrorMessage wraps an error string for delivery to a client.
func NewErrorMessage(text string) Message {
	return Message{Action: "error", Payload: text}
}
