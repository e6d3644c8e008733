package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roomdrop/roomdrop/internal/dns"
	"github.com/roomdrop/roomdrop/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 15 * time.Second
)

// ErrConnectionClosed is returned when the relay drops the connection for a
// reason other than the room rules.
var ErrConnectionClosed = errors.New("relay connection closed")

// Client is one participant's connection to the relay, bound to a room.
type Client struct {
	conn     *websocket.Conn
	roomID   string
	userID   string
	logger   *slog.Logger
	incoming chan Envelope
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Dial joins roomID as userID on the relay at wsURL. The ids travel as the
// two Sec-WebSocket-Protocol tokens.
func Dial(ctx context.Context, wsURL, roomID, userID string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if roomID == "" || userID == "" {
		return nil, protocol.ErrInvalidHandshakeMetadata
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{roomID, userID},
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("failed to connect: %w", protocol.ErrInvalidHandshakeMetadata)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		roomID:   roomID,
		userID:   userID,
		logger:   logger.With("room", roomID, "user", userID),
		incoming: make(chan Envelope, 32),
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected to relay")
	return c, nil
}

func (c *Client) RoomID() string { return c.roomID }
func (c *Client) UserID() string { return c.userID }

// readPump decodes relayed envelopes until the connection ends, then records
// why and closes Incoming.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(c.closeError(err))
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("ignoring undecodable relay message", "error", err)
			continue
		}

		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// closeError maps the relay's close frame to the room errors.
func (c *Client) closeError(err error) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.ClosePolicyViolation {
			switch ce.Text {
			case protocol.CloseReasonFull:
				return protocol.ErrRoomFull
			case protocol.CloseReasonNotMember:
				return protocol.ErrNotARoomMember
			}
		}
		return fmt.Errorf("%w: %d %s", ErrConnectionClosed, ce.Code, ce.Text)
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("relay write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send publishes s to the room tagged with this client's user id.
func (c *Client) Send(ctx context.Context, s Signal) error {
	data, err := json.Marshal(Envelope{UserID: c.userID, Data: s})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Incoming yields every envelope relayed to the room, own echoes included.
// It is closed when the connection ends; Err then tells why.
func (c *Client) Incoming() <-chan Envelope {
	return c.incoming
}

// Err returns the reason the connection ended, nil after Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close leaves the room with a normal close frame.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
