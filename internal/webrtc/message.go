package webrtc

import "github.com/vmihailenco/msgpack/v5"

// ControlLabel is the label of the in-call data channel.
const ControlLabel = "control"

// Control message types.
const (
	MessageTypeHello  = "hello"
	MessageTypeHangup = "hangup"
)

// Message represents all control data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload introduces a participant once the channel opens.
type HelloPayload struct {
	DisplayName string `msgpack:"displayName"`
	Role        string `msgpack:"role"`
	Version     string `msgpack:"version"`
}

// HangupPayload is sent right before a participant closes the call.
type HangupPayload struct {
	Reason string `msgpack:"reason"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// Encode serialises m for the wire.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a wire frame.
func Decode(b []byte) (Message, error) {
	var m Message
	err := msgpack.Unmarshal(b, &m)
	return m, err
}
