package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP blobs

	// SendQueueSize bounds the outbound queue of every connection. A subscriber
	// whose queue is full when a broadcast arrives is disconnected.
	SendQueueSize = 256
)

// Client is a relay session: one websocket connection bound to a room and user.
type Client struct {
	// Hub is a pointer to the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// RoomID and UserID come from the handshake sub-protocols.
	RoomID string
	UserID string

	// ConnectedAt is when the upgrade completed.
	ConnectedAt time.Time

	// Send is a buffered channel for all outbound messages.
	// The hub writes to this channel and WritePump drains it to the websocket.
	Send chan *Message

	// Owned by the hub goroutine. closeCode and closeReason are set before Send
	// is closed, so WritePump can read them once it observes the close.
	joined      bool
	closed      bool
	closeCode   int
	closeReason string
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, roomID, userID string) *Client {
	return &Client{
		Hub:         hub,
		Conn:        conn,
		RoomID:      roomID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		Send:        make(chan *Message, SendQueueSize),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug("read failed", "room", c.RoomID, "user", c.UserID, "error", err)
			}
			return
		}

		if !c.Hub.broadcast(&Message{Type: msgType, Data: data, client: c}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				code := c.closeCode
				if code == 0 {
					code = websocket.CloseNormalClosure
				}
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, c.closeReason))
				return
			}

			if err := c.Conn.WriteMessage(message.Type, message.Data); err != nil {
				c.Hub.logger.Debug("write failed", "room", c.RoomID, "user", c.UserID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
