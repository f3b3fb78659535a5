package signaling

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is one relay message. Type is one of the relay-to-client message types and
// selects which of the other fields is set.
type Event struct {
	Type string

	Join        *JoinInfo      // join_success
	Participant Participant    // user_joined, user_left
	Signal      *SignalPayload // signal
	Chat        *ChatMessage   // chat_message
	Error       string         // error
}

// Handler decodes incoming relay messages and delivers them on Events in arrival order.
type Handler struct {
	client *Client

	// Events is closed after the last message once the connection is gone or Close is called.
	Events chan Event

	// Disconnected is closed once the relay connection is gone.
	Disconnected chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:       client,
		Events:       make(chan Event, 64),
		Disconnected: make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// Start routes messages until the connection ends or Close is called.
func (h *Handler) Start() {
	defer close(h.Disconnected)
	defer close(h.Events)

	for {
		select {
		case msg, ok := <-h.client.Incoming():
			if !ok {
				return
			}
			h.route(msg)
		case <-h.stop:
			return
		}
	}
}

func (h *Handler) route(msg *Message) {
	ev := Event{Type: msg.Type}

	switch msg.Type {
	case MessageTypeJoinSuccess:
		var info JoinInfo
		if !decode(msg, &info) {
			return
		}
		ev.Join = &info

	case MessageTypeUserJoined, MessageTypeUserLeft:
		ev.Participant = Participant{Name: msg.Name, Role: msg.Role}

	case MessageTypeSignal:
		var payload SignalPayload
		if !decode(msg, &payload) {
			return
		}
		ev.Signal = &payload

	case MessageTypeChatMessage:
		ev.Chat = &ChatMessage{RoomID: msg.RoomID, Sender: msg.Sender, Text: msg.Text}

	case MessageTypeError:
		var e ErrorPayload
		if !decode(msg, &e) || e.Error == "" {
			e.Error = "Unknown error from server"
		}
		ev.Error = e.Error

	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring relay message")
		return
	}

	select {
	case h.Events <- ev:
	case <-h.stop:
	}
}

func decode(msg *Message, v any) bool {
	if len(msg.Payload) == 0 {
		log.Warn().Str("type", msg.Type).Msg("relay message without payload")
		return false
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("ignoring malformed payload")
		return false
	}
	return true
}

// Close stops routing. Messages still queued on the connection are dropped.
func (h *Handler) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}
