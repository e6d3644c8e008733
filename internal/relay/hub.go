package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/roomdrop/roomdrop/internal/protocol"
)

// Hub is the relay's event loop. A single goroutine (Run) owns the room
// subscriber sets and every client's close state; the Registry it consults is
// shared with the room status endpoint.
type Hub struct {
	registry *Registry
	logger   *slog.Logger

	// rooms maps room IDs to the connections subscribed to them.
	rooms map[string]map[*Client]struct{}

	register chan *Client
	departed chan *Client
	inbound  chan *Message
	done     chan struct{}
}

// NewHub creates a Hub backed by registry.
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: registry,
		logger:   logger,
		rooms:    make(map[string]map[*Client]struct{}),
		register: make(chan *Client),
		departed: make(chan *Client),
		inbound:  make(chan *Message),
		done:     make(chan struct{}),
	}
}

// Registry returns the registry the hub admits clients against.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register hands a freshly upgraded client to the hub. It returns false if the
// hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.departed <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcast(m *Message) bool {
	select {
	case h.inbound <- m:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop and blocks until ctx is done, at
// which point every remaining connection is closed with CloseGoingAway.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.departed:
			h.handleUnregister(client)

		case message := <-h.inbound:
			h.handleMessage(message)

		case <-ctx.Done():
			for _, subscribers := range h.rooms {
				for client := range subscribers {
					h.leave(client)
					h.closeClient(client, websocket.CloseGoingAway, "server shutting down")
				}
			}
			h.rooms = make(map[string]map[*Client]struct{})
			return
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	if err := h.registry.Join(c.RoomID, c.UserID); err != nil {
		if errors.Is(err, protocol.ErrRoomFull) {
			h.logger.Info("room full, refusing connection", "room", c.RoomID, "user", c.UserID)
			h.closeClient(c, websocket.ClosePolicyViolation, protocol.CloseReasonFull)
			return
		}
		h.logger.Error("join failed", "room", c.RoomID, "user", c.UserID, "error", err)
		h.closeClient(c, websocket.CloseInternalServerErr, err.Error())
		return
	}

	c.joined = true
	subscribers, ok := h.rooms[c.RoomID]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.rooms[c.RoomID] = subscribers
	}
	subscribers[c] = struct{}{}

	h.logger.Info("client joined", "room", c.RoomID, "user", c.UserID, "remote", c.Conn.RemoteAddr().String())
}

func (h *Hub) handleUnregister(c *Client) {
	if c.joined {
		h.logger.Info("client left", "room", c.RoomID, "user", c.UserID)
	}
	h.leave(c)
	h.closeClient(c, websocket.CloseNormalClosure, "")
}

func (h *Hub) handleMessage(m *Message) {
	sender := m.client
	if sender.closed {
		return
	}

	if !h.registry.IsMember(sender.RoomID, sender.UserID) {
		h.logger.Warn("message from non-member", "room", sender.RoomID, "user", sender.UserID)
		// The registry already forgot this user; a later Leave must not evict a
		// newer connection reusing the same id.
		sender.joined = false
		h.leave(sender)
		h.closeClient(sender, websocket.ClosePolicyViolation, protocol.CloseReasonNotMember)
		return
	}

	for client := range h.rooms[sender.RoomID] {
		select {
		case client.Send <- m:
		default:
			h.logger.Warn("send queue full, dropping subscriber", "room", client.RoomID, "user", client.UserID)
			h.leave(client)
			h.closeClient(client, websocket.CloseTryAgainLater, "send queue full")
		}
	}
}

// leave drops c from its room's subscribers and, if it was admitted, from the
// registry.
func (h *Hub) leave(c *Client) {
	if subscribers, ok := h.rooms[c.RoomID]; ok {
		delete(subscribers, c)
		if len(subscribers) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	if c.joined {
		h.registry.Leave(c.RoomID, c.UserID)
		c.joined = false
	}
}

// closeClient closes c's send queue exactly once, which makes WritePump emit a
// close frame carrying code and reason.
func (h *Hub) closeClient(c *Client, code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.Send)
}

// Logger returns the hub's logger.
func (h *Hub) Logger() *slog.Logger {
	return h.logger
}
