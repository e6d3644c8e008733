package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
)

// room is an in-memory relay: every envelope reaches every member.
type room struct {
	mu      sync.Mutex
	members []*fakeSignaler
}

func (r *room) join(userID string) *fakeSignaler {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeSignaler{room: r, userID: userID, incoming: make(chan signaling.Envelope, 64)}
	r.members = append(r.members, s)
	return s
}

func (r *room) broadcast(env signaling.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		m.incoming <- env
	}
}

type fakeSignaler struct {
	room     *room
	userID   string
	incoming chan signaling.Envelope

	mu   sync.Mutex
	sent []signaling.Signal
	err  error
}

func (s *fakeSignaler) UserID() string { return s.userID }

func (s *fakeSignaler) Send(_ context.Context, sig signaling.Signal) error {
	s.mu.Lock()
	s.sent = append(s.sent, sig)
	s.mu.Unlock()
	if s.room != nil {
		s.room.broadcast(signaling.Envelope{UserID: s.userID, Data: sig})
	}
	return nil
}

func (s *fakeSignaler) Incoming() <-chan signaling.Envelope { return s.incoming }

func (s *fakeSignaler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSignaler) closeWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.incoming)
}

func (s *fakeSignaler) sentOfType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sig := range s.sent {
		if sig.Type == typ {
			n++
		}
	}
	return n
}

var errWrongState = errors.New("wrong signaling state")

// fakeTransport enforces the offer/answer state rules of a real peer
// connection and opens its channel once both descriptions are applied.
// Like the pion transport, Rollback throws the connection away: a new
// generation starts in the stable state and nothing from the old one
// survives.
type fakeTransport struct {
	id string

	mu          sync.Mutex
	offers      int
	generation  int
	local       *signaling.SessionDescription
	haveOffer   bool
	remote      *signaling.SessionDescription
	candidates  []*signaling.ICECandidate
	rollbacks   int
	closed      bool
	onCandidate func(*signaling.ICECandidate)
	onState     func(ConnectionState)
	onChannel   func(transfer.Channel)
	channel     *fakeChannel
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id, channel: &fakeChannel{}}
}

func (t *fakeTransport) CreateOffer(context.Context) (signaling.SessionDescription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote != nil || t.haveOffer {
		return signaling.SessionDescription{}, errWrongState
	}
	t.offers++
	sd := signaling.SessionDescription{
		Type: "offer",
		SDP:  fmt.Sprintf("v=0\r\no=- %s%d %d IN IP4 0.0.0.0\r\n", t.id, t.generation, t.offers),
	}
	t.local = &sd
	t.haveOffer = true
	return sd, nil
}

func (t *fakeTransport) AcceptOffer(_ context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	t.mu.Lock()
	if t.haveOffer {
		t.mu.Unlock()
		return signaling.SessionDescription{}, errWrongState
	}
	t.remote = &offer
	sd := signaling.SessionDescription{Type: "answer", SDP: fmt.Sprintf("answer-%s-%d", t.id, t.generation)}
	t.local = &sd
	t.mu.Unlock()

	t.open()
	return sd, nil
}

func (t *fakeTransport) AcceptAnswer(answer signaling.SessionDescription) error {
	t.mu.Lock()
	if !t.haveOffer {
		t.mu.Unlock()
		return errWrongState
	}
	t.haveOffer = false
	t.remote = &answer
	t.mu.Unlock()

	t.open()
	return nil
}

// Rollback is only valid with a pending local offer and replaces the whole
// connection.
func (t *fakeTransport) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveOffer || t.remote != nil {
		return errWrongState
	}
	t.generation++
	t.haveOffer = false
	t.local = nil
	t.remote = nil
	t.candidates = nil
	t.rollbacks++
	return nil
}

// LocalDescription includes the candidates gathered since the description
// was created, so a re-published offer differs from the first one.
func (t *fakeTransport) LocalDescription() *signaling.SessionDescription {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.local == nil {
		return nil
	}
	sd := *t.local
	sd.SDP += "a=candidate:1 1 udp 2130706431 192.0.2.1 50000 typ host\r\n"
	return &sd
}

func (t *fakeTransport) AddCandidate(c *signaling.ICECandidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote == nil {
		return errWrongState
	}
	t.candidates = append(t.candidates, c)
	return nil
}

func (t *fakeTransport) OnCandidate(f func(*signaling.ICECandidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = f
}

func (t *fakeTransport) OnConnectionState(f func(ConnectionState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = f
}

func (t *fakeTransport) OnChannel(f func(transfer.Channel)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChannel = f
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) open() {
	t.mu.Lock()
	onState, onChannel := t.onState, t.onChannel
	t.mu.Unlock()
	if onState != nil {
		onState(ConnectionConnected)
	}
	if onChannel != nil {
		onChannel(t.channel)
	}
}

func (t *fakeTransport) setState(cs ConnectionState) {
	t.mu.Lock()
	onState := t.onState
	t.mu.Unlock()
	onState(cs)
}

func (t *fakeTransport) emitCandidate(c *signaling.ICECandidate) {
	t.mu.Lock()
	f := t.onCandidate
	t.mu.Unlock()
	f(c)
}

func (t *fakeTransport) snapshot() (candidates []*signaling.ICECandidate, rollbacks int, closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*signaling.ICECandidate(nil), t.candidates...), t.rollbacks, t.closed
}

func (t *fakeTransport) remoteSDP() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remote == nil {
		return ""
	}
	return t.remote.SDP
}

type fakeChannel struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeChannel) Send([]byte) error                    { return nil }
func (c *fakeChannel) SendText(string) error                { return nil }
func (c *fakeChannel) BufferedAmount() uint64               { return 0 }
func (c *fakeChannel) SetBufferedAmountLowThreshold(uint64) {}
func (c *fakeChannel) OnBufferedAmountLow(func())           {}
func (c *fakeChannel) OnMessage(func(transfer.Message))     {}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
