package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pakachere/liveclass/internal/signaling"
)

// Hub is the central brain of the signaling relay.
// A single goroutine (Run) applies every membership change and broadcast, so a message is never
// delivered to a member that was already removed.
type Hub struct {
	registry *Registry
	metrics  *Metrics

	// clients are the connections whose send channel is still open.
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan *Message
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(registry *Registry, metrics *Metrics) *Hub {
	return &Hub{
		registry:   registry,
		metrics:    metrics,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Message),
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection and everything it owned.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues an inbound message. It returns false once the hub has stopped.
func (h *Hub) Dispatch(m *Message) bool {
	select {
	case h.inbound <- m:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		// No user_left on shutdown: every client loses the relay, not a peer.
		for c := range h.clients {
			delete(h.clients, c)
			h.metrics.connections.Dec()
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.connections.Inc()
			log.Debug().Str("conn", c.ID).Str("remote", c.remote()).Msg("client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				log.Debug().Str("conn", c.ID).Msg("client unregistered")
				h.drop(c)
			}

		case m := <-h.inbound:
			if _, ok := h.clients[m.client]; !ok {
				// Dropped while the message was in flight.
				continue
			}
			h.handle(m)
		}
	}
}

func (h *Hub) handle(m *Message) {
	switch m.Type {
	case signaling.MessageTypeJoinRoom:
		h.join(m)
	case signaling.MessageTypeLeaveRoom:
		h.leave(m.client)
	case signaling.MessageTypeSignal:
		h.relaySignal(m)
	case signaling.MessageTypeChatMessage:
		h.relayChat(m)
	default:
		log.Warn().Str("conn", m.client.ID).Str("type", m.Type).Msg("unknown message type")
		h.metrics.rejected.WithLabelValues("unknown_type").Inc()
	}
}

func (h *Hub) join(m *Message) {
	c := m.client
	if m.RoomID == "" {
		h.reject(c, "bad_request", "room_id is required")
		return
	}

	role := m.Role
	if role == "" {
		role = signaling.RoleStudent
	}
	if !signaling.ValidRole(role) {
		h.reject(c, "bad_request", "unknown role "+role)
		return
	}
	name := strings.TrimSpace(m.Name)
	if name == "" {
		name = strings.ToUpper(role[:1]) + role[1:]
	}

	if cur, ok := h.registry.RoomOf(c); ok && cur != m.RoomID {
		h.leave(c)
	}

	p := signaling.Participant{Name: name, Role: role}
	room, peers, joined, err := h.registry.Join(m.RoomID, c, p)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			h.reject(c, "room_not_found", "Room not found")
			return
		}
		h.reject(c, "bad_request", err.Error())
		return
	}
	if !joined {
		log.Debug().Str("conn", c.ID).Str("room", room.ID).Msg("duplicate join ignored")
		return
	}
	h.metrics.rooms.Set(float64(h.registry.Len()))

	log.Info().Str("conn", c.ID).Str("room", room.ID).Str("name", name).Str("role", role).
		Int("members", len(peers)+1).Msg("joined room")

	info, _ := signaling.EncodePayload(signaling.JoinInfo{Participants: room.Participants()})
	h.deliver(c, &signaling.Message{Type: signaling.MessageTypeJoinSuccess, RoomID: room.ID, Payload: info})

	notice := &signaling.Message{Type: signaling.MessageTypeUserJoined, RoomID: room.ID, Name: name, Role: role}
	for _, peer := range peers {
		h.deliver(peer, notice)
	}
}

// leave removes c from its room and tells the remaining members.
func (h *Hub) leave(c *Client) {
	room, p, rest, ok := h.registry.Leave(c)
	if !ok {
		return
	}
	h.metrics.rooms.Set(float64(h.registry.Len()))

	if len(rest) == 0 {
		log.Info().Str("room", room.ID).Msg("room deleted")
		return
	}
	log.Info().Str("conn", c.ID).Str("room", room.ID).Str("name", p.Name).Msg("left room")

	notice := &signaling.Message{Type: signaling.MessageTypeUserLeft, RoomID: room.ID, Name: p.Name, Role: p.Role}
	for _, peer := range rest {
		h.deliver(peer, notice)
	}
}

func (h *Hub) relaySignal(m *Message) {
	self, peers, ok := h.registry.Peers(m.RoomID, m.client)
	if !ok {
		log.Warn().Str("conn", m.client.ID).Str("room", m.RoomID).Msg("signal from non-member ignored")
		h.reject(m.client, "not_member", "You must join the room first")
		return
	}

	out := &signaling.Message{
		Type:    signaling.MessageTypeSignal,
		RoomID:  m.RoomID,
		Sender:  self.Name,
		Payload: m.Payload,
	}
	for _, peer := range peers {
		h.deliver(peer, out)
	}
	log.Debug().Str("conn", m.client.ID).Str("room", m.RoomID).Int("targets", len(peers)).Msg("signal relayed")
}

func (h *Hub) relayChat(m *Message) {
	self, peers, ok := h.registry.Peers(m.RoomID, m.client)
	if !ok {
		log.Warn().Str("conn", m.client.ID).Str("room", m.RoomID).Msg("chat from non-member ignored")
		h.reject(m.client, "not_member", "You must join the room first")
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		h.reject(m.client, "empty_chat", "Chat message cannot be empty")
		return
	}

	// The sender label is the registered name, whatever the client put in the frame.
	out := &signaling.Message{
		Type:   signaling.MessageTypeChatMessage,
		RoomID: m.RoomID,
		Sender: self.Name,
		Text:   m.Text,
	}
	for _, peer := range peers {
		h.deliver(peer, out)
	}
}

// reject tells the sender why its message was not relayed.
func (h *Hub) reject(c *Client, reason, text string) {
	h.metrics.rejected.WithLabelValues(reason).Inc()
	h.deliver(c, signaling.NewErrorMessage(text))
}

// deliver queues msg for c without blocking the hub.
// A client that cannot keep up is disconnected.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
		if msg.Type != signaling.MessageTypeError {
			h.metrics.relayed.WithLabelValues(msg.Type).Inc()
		}
	default:
		log.Warn().Str("conn", c.ID).Msg("send buffer full, dropping client")
		h.drop(c)
	}
}

// drop leaves the room, closes the send channel and forgets the client.
// The write pump then closes the socket, which ends the read pump.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	h.metrics.connections.Dec()
	h.leave(c)
	close(c.send)
}
