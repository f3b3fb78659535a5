package relay

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/pakachere/liveclass/internal/signaling"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInOtherRoom  = errors.New("connection is already in another room")
)

// Room is a named group of connections that see each other's signaling traffic.
type Room struct {
	ID        string
	SessionID string
	CreatedAt time.Time

	members []member
}

type member struct {
	client *Client
	signaling.Participant
}

func (r *Room) index(c *Client) int {
	for i, m := range r.members {
		if m.client == c {
			return i
		}
	}
	return -1
}

// Participants lists the members in join order.
func (r *Room) Participants() []signaling.Participant {
	out := make([]signaling.Participant, len(r.members))
	for i, m := range r.members {
		out[i] = m.Participant
	}
	return out
}

// RoomSummary describes a room for listings.
type RoomSummary struct {
	RoomID       string    `json:"room_id"`
	SessionID    string    `json:"session_id,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	Reserved     bool      `json:"reserved"`
}

// Registry maps room ids to their members.
//
// A room is live while it has members and is deleted when the last one leaves.
// Rooms created through Create and not joined yet are reservations: they expire after the
// configured TTL and become live on first join.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	byClient map[*Client]*Room
	reserved *cache.Cache

	requireReservation bool
	newID              func() string
}

// NewRegistry creates a registry. A non-positive ttl keeps reservations until joined.
func NewRegistry(ttl time.Duration, requireReservation bool) *Registry {
	exp, cleanup := ttl, ttl
	if ttl <= 0 {
		exp, cleanup = cache.NoExpiration, 0
	}
	return &Registry{
		rooms:              make(map[string]*Room),
		byClient:           make(map[*Client]*Room),
		reserved:           cache.New(exp, cleanup),
		requireReservation: requireReservation,
		newID:              func() string { return uuid.NewString() },
	}
}

// Create registers a fresh room for a session and returns it.
// The room is registered before its id is handed out.
func (r *Registry) Create(sessionID string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.newID()
		if _, ok := r.rooms[id]; ok {
			continue
		}
		if _, ok := r.reserved.Get(id); ok {
			continue
		}
		room := &Room{ID: id, SessionID: sessionID, CreatedAt: time.Now()}
		r.reserved.SetDefault(id, room)
		return room
	}
}

// Exists reports whether id names a live or reserved room.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.rooms[id]; ok {
		return true
	}
	_, ok := r.reserved.Get(id)
	return ok
}

// Members returns the participants of a room, or false if it does not exist.
func (r *Registry) Members(id string) ([]signaling.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if room, ok := r.rooms[id]; ok {
		return room.Participants(), true
	}
	if _, ok := r.reserved.Get(id); ok {
		return []signaling.Participant{}, true
	}
	return nil, false
}

// Join adds c to room id, creating the room if needed.
// It returns the room, the other members, and whether c was added; joining a room c is already
// in is a no-op.
func (r *Registry) Join(id string, c *Client, p signaling.Participant) (*Room, []*Client, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byClient[c]; ok {
		if cur.ID != id {
			return nil, nil, false, ErrInOtherRoom
		}
		return cur, others(cur, c), false, nil
	}

	room, ok := r.rooms[id]
	if !ok {
		if v, found := r.reserved.Get(id); found {
			room = v.(*Room)
			r.reserved.Delete(id)
		} else if r.requireReservation {
			return nil, nil, false, ErrRoomNotFound
		} else {
			room = &Room{ID: id, CreatedAt: time.Now()}
		}
		r.rooms[id] = room
	}

	room.members = append(room.members, member{client: c, Participant: p})
	r.byClient[c] = room
	return room, others(room, c), true, nil
}

// Leave removes c from its room. The room is deleted when c was its last member.
func (r *Registry) Leave(c *Client) (room *Room, p signaling.Participant, rest []*Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok = r.byClient[c]
	if !ok {
		return nil, p, nil, false
	}
	delete(r.byClient, c)

	i := room.index(c)
	p = room.members[i].Participant
	room.members = append(room.members[:i], room.members[i+1:]...)

	if len(room.members) == 0 {
		delete(r.rooms, room.ID)
	}
	return room, p, others(room, c), true
}

// Peers returns the other members of room id and c's registered identity.
// ok is false unless c is currently a member of that room.
func (r *Registry) Peers(id string, c *Client) (self signaling.Participant, peers []*Client, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, in := r.byClient[c]
	if !in || room.ID != id {
		return self, nil, false
	}
	return room.members[room.index(c)].Participant, others(room, c), true
}

// RoomOf returns the id of the room c is in.
func (r *Registry) RoomOf(c *Client) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.byClient[c]
	if !ok {
		return "", false
	}
	return room.ID, true
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Snapshot lists live rooms and pending reservations, oldest first.
func (r *Registry) Snapshot() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomSummary, 0, len(r.rooms))
	for _, room := range r.rooms {
		names := make([]string, len(room.members))
		for i, m := range room.members {
			names[i] = m.Name
		}
		out = append(out, RoomSummary{
			RoomID:       room.ID,
			SessionID:    room.SessionID,
			Participants: names,
			CreatedAt:    room.CreatedAt,
		})
	}
	for _, item := range r.reserved.Items() {
		room := item.Object.(*Room)
		out = append(out, RoomSummary{
			RoomID:       room.ID,
			SessionID:    room.SessionID,
			Participants: []string{},
			CreatedAt:    room.CreatedAt,
			Reserved:     true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func others(room *Room, c *Client) []*Client {
	out := make([]*Client, 0, len(room.members))
	for _, m := range room.members {
		if m.client != c {
			out = append(out, m.client)
		}
	}
	return out
}
