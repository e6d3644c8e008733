package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomdrop/roomdrop/internal/protocol"
)

// connPair returns the server and client ends of one websocket connection.
func connPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestSlowSubscriberIsDisconnected(t *testing.T) {
	const roomID = "123456"

	registry := NewRegistry()
	hub := NewHub(registry, nil)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go hub.Run(ctx)

	// The slow subscriber's write pump is not running, so nothing drains
	// its queue.
	slowConn, slowPeer := connPair(t)
	slow := NewClient(hub, slowConn, roomID, "slow")
	require.True(t, hub.Register(slow))

	fastConn, fastPeer := connPair(t)
	fast := NewClient(hub, fastConn, roomID, "fast")
	require.True(t, hub.Register(fast))
	go fast.WritePump()
	go fast.ReadPump()
	go func() {
		for {
			if _, _, err := fastPeer.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return registry.Lookup(roomID) == protocol.RoomStatus{Valid: true, Full: true}
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i <= SendQueueSize; i++ {
		require.NoError(t, fastPeer.WriteMessage(websocket.TextMessage, []byte(strconv.Itoa(i))))
	}

	require.Eventually(t, func() bool {
		return !registry.IsMember(roomID, "slow")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, registry.IsMember(roomID, "fast"))
	assert.Equal(t, protocol.RoomStatus{Valid: true, Full: false}, registry.Lookup(roomID))

	// Draining the queue delivers what was accepted, then the close frame.
	go slow.WritePump()

	slowPeer.SetReadDeadline(time.Now().Add(5 * time.Second))
	received := 0
	var closeErr *websocket.CloseError
	for {
		_, data, err := slowPeer.ReadMessage()
		if err != nil {
			require.True(t, errors.As(err, &closeErr), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, strconv.Itoa(received), string(data))
		received++
	}

	assert.Equal(t, SendQueueSize, received)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
}

func TestFastSubscriberKeepsReceivingAfterOverflow(t *testing.T) {
	const roomID = "654321"

	registry := NewRegistry()
	hub := NewHub(registry, nil)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go hub.Run(ctx)

	slowConn, _ := connPair(t)
	require.True(t, hub.Register(NewClient(hub, slowConn, roomID, "slow")))

	fastConn, fastPeer := connPair(t)
	fast := NewClient(hub, fastConn, roomID, "fast")
	require.True(t, hub.Register(fast))
	go fast.WritePump()
	go fast.ReadPump()

	require.Eventually(t, func() bool {
		return registry.Lookup(roomID).Full
	}, 2*time.Second, 10*time.Millisecond)

	echoes := make(chan string, 2*SendQueueSize)
	go func() {
		for {
			_, data, err := fastPeer.ReadMessage()
			if err != nil {
				return
			}
			echoes <- string(data)
		}
	}()

	for i := 0; i <= SendQueueSize+10; i++ {
		require.NoError(t, fastPeer.WriteMessage(websocket.TextMessage, []byte(strconv.Itoa(i))))
	}

	for i := 0; i <= SendQueueSize+10; i++ {
		select {
		case got := <-echoes:
			assert.Equal(t, strconv.Itoa(i), got)
		case <-time.After(2 * time.Second):
			t.Fatalf("echo %d not delivered", i)
		}
	}
	assert.False(t, registry.IsMember(roomID, "slow"))
}
