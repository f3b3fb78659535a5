package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pakachere/liveclass/internal/relay"
	"github.com/pakachere/liveclass/internal/signaling"
)

func newTestServer(t *testing.T, requireReservation bool) (*httptest.Server, *relay.Registry) {
	t.Helper()
	promReg := prometheus.NewRegistry()
	registry := relay.NewRegistry(time.Minute, requireReservation)
	hub := relay.NewHub(registry, relay.NewMetrics(promReg))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(Options{
		Hub:        hub,
		Registry:   registry,
		Gatherer:   promReg,
		SendBuffer: 16,
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, registry
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCreateRoom(t *testing.T) {
	srv, registry := newTestServer(t, false)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "ok", path: "/video/create", body: `{"session_id":"42"}`, status: http.StatusOK},
		{name: "api alias", path: "/api/video/create", body: `{"session_id":"42"}`, status: http.StatusOK},
		{name: "missing session", path: "/video/create", body: `{}`, status: http.StatusBadRequest},
		{name: "blank session", path: "/video/create", body: `{"session_id":"  "}`, status: http.StatusBadRequest},
		{name: "bad json", path: "/video/create", body: `{`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := post(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, out["error"])
				return
			}
			id, _ := out["room_id"].(string)
			require.NotEmpty(t, id)
			assert.True(t, registry.Exists(id))
		})
	}
}

func TestCreateRoomRejectsGet(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/video/create")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestListRooms(t *testing.T) {
	srv, registry := newTestServer(t, false)
	room := registry.Create("s-1")

	resp, err := http.Get(srv.URL + "/video/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out listRoomsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Rooms, 1)
	assert.Equal(t, room.ID, out.Rooms[0].RoomID)
	assert.Equal(t, "s-1", out.Rooms[0].SessionID)
	assert.True(t, out.Rooms[0].Reserved)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "liveclass_relay_connections")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) signaling.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m signaling.Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWebsocketRelay(t *testing.T) {
	srv, registry := newTestServer(t, true)
	status, out := post(t, srv.URL+"/video/create", `{"session_id":"7"}`)
	require.Equal(t, http.StatusOK, status)
	roomID := out["room_id"].(string)

	tutor := dial(t, srv)
	student := dial(t, srv)

	require.NoError(t, tutor.WriteJSON(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: roomID, Name: "Ada", Role: "tutor"}))
	assert.Equal(t, signaling.MessageTypeJoinSuccess, read(t, tutor).Type)

	// A malformed frame is ignored and the connection stays usable.
	require.NoError(t, student.WriteMessage(websocket.TextMessage, []byte("{not json")))

	require.NoError(t, student.WriteJSON(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: roomID, Name: "Bo", Role: "student"}))
	assert.Equal(t, signaling.MessageTypeJoinSuccess, read(t, student).Type)

	joined := read(t, tutor)
	assert.Equal(t, signaling.MessageTypeUserJoined, joined.Type)
	assert.Equal(t, "Bo", joined.Name)

	require.NoError(t, student.WriteJSON(signaling.Message{Type: signaling.MessageTypeChatMessage, RoomID: roomID, Text: "hi"}))
	chat := read(t, tutor)
	assert.Equal(t, "Bo", chat.Sender)
	assert.Equal(t, "hi", chat.Text)

	student.Close()
	left := read(t, tutor)
	assert.Equal(t, signaling.MessageTypeUserLeft, left.Type)

	members, ok := registry.Members(roomID)
	require.True(t, ok)
	assert.Len(t, members, 1)
}

func TestWebsocketUnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t, true)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(signaling.Message{Type: signaling.MessageTypeJoinRoom, RoomID: "missing"}))
	m := read(t, conn)
	assert.Equal(t, signaling.MessageTypeError, m.Type)
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"class.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "https://class.example.com", want: true},
		{origin: "https://CLASS.example.com", want: true},
		{origin: "https://evil.example.com", want: false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), tt.origin)
	}

	assert.True(t, checkOrigin(nil)(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}
