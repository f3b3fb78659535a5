package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pakachere/liveclass/internal/relay"
)

// Options wires the router to the relay.
type Options struct {
	Hub      *relay.Hub
	Registry *relay.Registry
	Gatherer prometheus.Gatherer

	// SendBuffer is the outbound queue length of every connection.
	SendBuffer int

	// AllowedOrigins lists the hosts allowed to open a websocket; empty allows any.
	AllowedOrigins []string
}

type createRoomRequest struct {
	SessionID string `json:"session_id"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

type listRoomsResponse struct {
	Rooms []relay.RoomSummary `json:"rooms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns the relay's HTTP handler.
func NewRouter(o Options) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", ServeWs(o))
	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	if o.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	for _, prefix := range []string{"/video", "/api/video"} {
		r.HandleFunc(prefix+"/create", createRoomHandler(o.Registry)).Methods(http.MethodPost)
		r.HandleFunc(prefix+"/rooms", listRoomsHandler(o.Registry)).Methods(http.MethodGet)
	}
	return r
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
func ServeWs(o Options) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     checkOrigin(o.AllowedOrigins),
	}
	buffer := o.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		client := relay.NewClient(o.Hub, conn, buffer)
		if !o.Hub.Register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func createRoomHandler(registry *relay.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
			return
		}
		sessionID := strings.TrimSpace(req.SessionID)
		if sessionID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Session ID is required"})
			return
		}

		room := registry.Create(sessionID)
		log.Info().Str("room", room.ID).Str("session", sessionID).Msg("room created")
		writeJSON(w, http.StatusOK, createRoomResponse{RoomID: room.ID})
	}
}

func listRoomsHandler(registry *relay.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listRoomsResponse{Rooms: registry.Snapshot()})
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

// checkOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests whose origin host is listed.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := make(map[string]struct{}, len(allowed))
	for _, h := range allowed {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}
