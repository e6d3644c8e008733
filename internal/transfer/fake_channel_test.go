package transfer

import (
	"slices"
	"sync"
)

// fakeChannel records outbound frames. When accumulate is set, every Send
// grows the buffered amount until drain is called.
type fakeChannel struct {
	mu         sync.Mutex
	sent       []Message
	buffered   uint64
	threshold  uint64
	accumulate bool
	onLow      func()
	onMessage  func(Message)
	peer       *fakeChannel
	closed     bool
}

func (c *fakeChannel) Send(data []byte) error {
	return c.send(Binary(slices.Clone(data)))
}

func (c *fakeChannel) SendText(s string) error {
	return c.send(Text(s))
}

func (c *fakeChannel) send(m Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.sent = append(c.sent, m)
	if c.accumulate {
		c.buffered += uint64(len(m.Data))
	}
	peer := c.peer
	c.mu.Unlock()

	if peer != nil {
		peer.deliver(m)
	}
	return nil
}

func (c *fakeChannel) deliver(m Message) {
	c.mu.Lock()
	h := c.onMessage
	c.mu.Unlock()
	if h != nil {
		h(m)
	}
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *fakeChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = threshold
}

func (c *fakeChannel) OnBufferedAmountLow(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLow = f
}

func (c *fakeChannel) OnMessage(f func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// drain empties the buffer, stops accumulating and fires the low callback.
func (c *fakeChannel) drain() {
	c.mu.Lock()
	c.buffered = 0
	c.accumulate = false
	low := c.onLow
	c.mu.Unlock()
	if low != nil {
		low()
	}
}

func (c *fakeChannel) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

func (c *fakeChannel) binaryCount() int {
	n := 0
	for _, m := range c.messages() {
		if !m.IsString {
			n++
		}
	}
	return n
}

func pipe() (*fakeChannel, *fakeChannel) {
	a, b := &fakeChannel{}, &fakeChannel{}
	a.peer, b.peer = b, a
	return a, b
}
