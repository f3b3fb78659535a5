package signaling

import (
	"encoding/json"

	pion "github.com/pion/webrtc/v4"
)

// Message represents all websocket messages between the call client and the relay.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Role    string          `json:"role,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Text    string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom    = "join_room"
	MessageTypeLeaveRoom   = "leave_room"
	MessageTypeSignal      = "signal"
	MessageTypeChatMessage = "chat_message"

	MessageTypeJoinSuccess = "join_success"
	MessageTypeUserJoined  = "user_joined"
	MessageTypeUserLeft    = "user_left"
	MessageTypeError       = "error"
)

// Participant roles.
const (
	RoleTutor   = "tutor"
	RoleStudent = "student"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RoleTutor || r == RoleStudent
}

// Participant is a room member as seen by other members.
type Participant struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// JoinInfo is the join_success payload.
type JoinInfo struct {
	Participants []Participant `json:"participants"`
}

// SignalPayload represents the WebRTC signaling data (SDP offer/answer or ICE candidate).
// The relay forwards it without looking inside.
type SignalPayload struct {
	Type      string                 `json:"type,omitempty"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// IsDescription reports whether the payload carries a session description.
func (p *SignalPayload) IsDescription() bool {
	return p.SDP != ""
}

// ChatMessage is an inbound chat line.
type ChatMessage struct {
	RoomID string
	Sender string
	Text   string
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewErrorMessage builds an error message for the given text.
func NewErrorMessage(text string) *Message {
	b, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: MessageTypeError, Payload: b}
}

// EncodePayload marshals v into a message payload.
func EncodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
