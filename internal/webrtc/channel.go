package webrtc

import (
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/roomdrop/roomdrop/internal/transfer"
)

// Channel adapts a pion DataChannel to transfer.Channel. Messages that
// arrive before OnMessage is set are queued and replayed.
type Channel struct {
	dc *pion.DataChannel

	mu      sync.Mutex
	handler func(transfer.Message)
	queued  []transfer.Message
}

var _ transfer.Channel = (*Channel)(nil)

func newChannel(dc *pion.DataChannel) *Channel {
	c := &Channel{dc: dc}
	dc.OnMessage(c.receive)
	return c
}

func (c *Channel) receive(msg pion.DataChannelMessage) {
	m := transfer.Message{IsString: msg.IsString, Data: msg.Data}

	c.mu.Lock()
	h := c.handler
	if h == nil {
		c.queued = append(c.queued, m)
	}
	c.mu.Unlock()

	if h != nil {
		h(m)
	}
}

// OnMessage sets the handler and delivers anything queued so far. pion
// calls receive from a single goroutine, so replay keeps arrival order as
// long as OnMessage is set once.
func (c *Channel) OnMessage(f func(transfer.Message)) {
	c.mu.Lock()
	queued := c.queued
	c.queued = nil
	c.mu.Unlock()

	for _, m := range queued {
		f(m)
	}

	c.mu.Lock()
	// Pick up anything that raced in during replay before going live.
	for len(c.queued) > 0 {
		more := c.queued
		c.queued = nil
		c.mu.Unlock()
		for _, m := range more {
			f(m)
		}
		c.mu.Lock()
	}
	c.handler = f
	c.mu.Unlock()
}

func (c *Channel) Send(data []byte) error {
	if c.dc.ReadyState() != pion.DataChannelStateOpen {
		return transfer.ErrChannelClosed
	}
	return c.dc.Send(data)
}

func (c *Channel) SendText(s string) error {
	if c.dc.ReadyState() != pion.DataChannelStateOpen {
		return transfer.ErrChannelClosed
	}
	return c.dc.SendText(s)
}

func (c *Channel) BufferedAmount() uint64 {
	return c.dc.BufferedAmount()
}

func (c *Channel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.dc.SetBufferedAmountLowThreshold(threshold)
}

func (c *Channel) OnBufferedAmountLow(f func()) {
	c.dc.OnBufferedAmountLow(f)
}

// OnClose registers f for when the data channel closes.
func (c *Channel) OnClose(f func()) {
	c.dc.OnClose(f)
}

func (c *Channel) Close() error {
	return c.dc.Close()
}
