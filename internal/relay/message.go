package relay

import "github.com/pakachere/liveclass/internal/signaling"

// Message is an inbound client message tagged with the connection it arrived on.
type Message struct {
	signaling.Message

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client
}
