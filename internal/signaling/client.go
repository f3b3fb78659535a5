package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pakachere/liveclass/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed relay connection.
var ErrClosed = errors.New("relay connection closed")

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	conn     *websocket.Conn
	incoming chan *Message
	outgoing chan *Message
	done     chan struct{}
	stopped  chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the relay at serverURL.
// A nil resolver uses the system resolver only.
func Dial(ctx context.Context, serverURL string, resolver *dns.Resolver) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if resolver != nil {
		dialer.NetDialContext = resolver.DialContext
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *Message, 16),
		outgoing: make(chan *Message, 16),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// readPump reads messages until the connection fails, then closes Incoming.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("ignoring malformed relay message")
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.stopped)
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.setErr(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setErr(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the relay.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.stopped:
		if err := c.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
}

// Join asks the relay to add this connection to a room.
func (c *Client) Join(roomID, name, role string) error {
	return c.Send(&Message{Type: MessageTypeJoinRoom, RoomID: roomID, Name: name, Role: role})
}

// Leave leaves the room without closing the connection.
func (c *Client) Leave(roomID string) error {
	return c.Send(&Message{Type: MessageTypeLeaveRoom, RoomID: roomID})
}

// SendSignal relays an SDP or ICE payload to the other room members.
func (c *Client) SendSignal(roomID string, payload *SignalPayload) error {
	b, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	return c.Send(&Message{Type: MessageTypeSignal, RoomID: roomID, Payload: b})
}

// SendChat relays a chat line to the other room members.
func (c *Client) SendChat(roomID, text string) error {
	return c.Send(&Message{Type: MessageTypeChatMessage, RoomID: roomID, Text: text})
}

// Incoming returns the channel for receiving messages. It is closed when the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
