package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pakachere/liveclass/internal/dns"
)

// Room is one entry of the relay's room listing.
type Room struct {
	RoomID       string    `json:"room_id"`
	SessionID    string    `json:"session_id,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	Reserved     bool      `json:"reserved"`
}

// Client talks to the relay's REST endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the relay at baseURL (scheme and host, no path).
// A nil resolver uses the system resolver only.
func New(baseURL string, resolver *dns.Resolver) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if resolver != nil {
		transport.DialContext = resolver.DialContext
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: 15 * time.Second},
	}
}

// CreateRoom asks the relay for a new room bound to sessionID and returns its id.
func (c *Client) CreateRoom(ctx context.Context, sessionID string) (string, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return "", err
	}

	var out struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/video/create", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	if out.RoomID == "" {
		return "", errors.New("server returned no room id")
	}
	return out.RoomID, nil
}

// ListRooms returns the rooms currently open on the relay.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var out struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/video/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
