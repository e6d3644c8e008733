// Package link brings a peer-to-peer channel up by exchanging offers,
// answers and candidates over the relay.
//
// Both participants run the same code and both send an offer as soon as
// they connect. When offers cross, the participant with the smaller user id
// is polite: it rolls back its own offer and answers the other one. The
// impolite side ignores the crossing offer and re-sends its own, which also
// reaches a peer that joined after the first offer went out.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
)

// State of a Link.
type State int

const (
	Unconnected State = iota
	Negotiating
	Open
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Negotiating:
		return "negotiating"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrTransportFailure is reported when the transport fails or closes
	// while the link is in use.
	ErrTransportFailure = errors.New("transport failure")
	ErrLinkClosed       = errors.New("link closed")
	ErrAlreadyStarted   = errors.New("link already started")
)

// Link owns one transport and negotiates it through a Signaler.
type Link struct {
	transport Transport
	signaler  Signaler
	userID    string
	logger    *slog.Logger

	ready chan struct{}
	done  chan struct{}

	mu         sync.Mutex
	state      State
	connState  ConnectionState
	channel    transfer.Channel
	err        error
	haveOffer  bool
	remoteSet  bool
	lastRemote string
	pending    []*signaling.ICECandidate

	// OnConnectionState, if set, sees every transport state change.
	OnConnectionState func(ConnectionState)
}

func New(t Transport, s Signaler, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		transport: t,
		signaler:  s,
		userID:    s.UserID(),
		logger:    logger.With("user", s.UserID()),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		state:     Unconnected,
		connState: ConnectionNew,
	}
}

// Start publishes this side's offer and handles relayed envelopes in the
// background until ctx ends, the relay goes away or the link is closed.
// There is no negotiation timeout; callers bound Wait with ctx.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Unconnected {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.state = Negotiating
	l.mu.Unlock()

	l.transport.OnCandidate(func(c *signaling.ICECandidate) {
		if err := l.signaler.Send(ctx, signaling.CandidateSignal(c)); err != nil {
			l.logger.Debug("failed to publish candidate", "error", err)
		}
	})
	l.transport.OnConnectionState(l.connectionStateChanged)
	l.transport.OnChannel(l.channelOpened)

	offer, err := l.transport.CreateOffer(ctx)
	if err != nil {
		l.fail(fmt.Errorf("create offer: %w", err))
		return err
	}
	l.mu.Lock()
	l.haveOffer = true
	l.mu.Unlock()

	if err := l.signaler.Send(ctx, signaling.OfferSignal(offer)); err != nil {
		l.fail(fmt.Errorf("publish offer: %w", err))
		return err
	}

	go l.run(ctx)
	return nil
}

func (l *Link) run(ctx context.Context) {
	incoming := l.signaler.Incoming()
	for {
		select {
		case env, ok := <-incoming:
			if !ok {
				l.relayGone()
				return
			}
			l.handle(ctx, env)
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

// relayGone fails a link that is still negotiating. An open link keeps
// working without the relay.
func (l *Link) relayGone() {
	err := l.signaler.Err()
	if l.State() == Open {
		l.logger.Debug("relay connection ended", "error", err)
		return
	}
	if err == nil {
		err = signaling.ErrConnectionClosed
	}
	l.fail(err)
}

func (l *Link) handle(ctx context.Context, env signaling.Envelope) {
	if env.UserID == l.userID {
		return
	}

	switch env.Data.Type {
	case signaling.TypeOffer:
		if env.Data.Offer != nil {
			l.handleOffer(ctx, env.UserID, *env.Data.Offer)
		}
	case signaling.TypeAnswer:
		if env.Data.Answer != nil {
			l.handleAnswer(*env.Data.Answer)
		}
	case signaling.TypeCandidate:
		l.handleCandidate(env.Data.Candidate)
	default:
		l.logger.Debug("ignoring signal", "type", env.Data.Type, "from", env.UserID)
	}
}

func (l *Link) handleOffer(ctx context.Context, from string, offer signaling.SessionDescription) {
	l.mu.Lock()
	duplicate := sameOffer(offer.SDP, l.lastRemote)
	haveOffer := l.haveOffer
	l.mu.Unlock()

	if duplicate {
		return
	}

	if haveOffer {
		if l.userID > from {
			// Impolite: keep our offer and make sure the peer has it.
			if local := l.transport.LocalDescription(); local != nil {
				if err := l.signaler.Send(ctx, signaling.OfferSignal(*local)); err != nil {
					l.logger.Debug("failed to re-publish offer", "error", err)
				}
			}
			return
		}

		l.logger.Debug("offers crossed, rolling back", "peer", from)
		if err := l.transport.Rollback(); err != nil {
			l.fail(fmt.Errorf("rollback: %w", err))
			return
		}
		l.mu.Lock()
		l.haveOffer = false
		l.mu.Unlock()
	}

	answer, err := l.transport.AcceptOffer(ctx, offer)
	if err != nil {
		l.fail(fmt.Errorf("accept offer: %w", err))
		return
	}
	l.remoteApplied(offer.SDP)

	if err := l.signaler.Send(ctx, signaling.AnswerSignal(answer)); err != nil {
		l.logger.Debug("failed to publish answer", "error", err)
	}
}

func (l *Link) handleAnswer(answer signaling.SessionDescription) {
	l.mu.Lock()
	haveOffer := l.haveOffer
	l.mu.Unlock()

	if !haveOffer {
		l.logger.Debug("ignoring stale answer")
		return
	}

	if err := l.transport.AcceptAnswer(answer); err != nil {
		l.fail(fmt.Errorf("accept answer: %w", err))
		return
	}
	l.mu.Lock()
	l.haveOffer = false
	l.mu.Unlock()
	l.remoteApplied("")
}

// sameOffer reports whether two offers are the same session version. A
// re-published offer keeps its origin line but may list more candidates.
func sameOffer(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if oa, ob := originLine(a), originLine(b); oa != "" && ob != "" {
		return oa == ob
	}
	return a == b
}

func originLine(sdp string) string {
	for line := range strings.Lines(sdp) {
		if strings.HasPrefix(line, "o=") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// remoteApplied records the applied remote offer, if any, and flushes the
// candidates that arrived before it.
func (l *Link) remoteApplied(offerSDP string) {
	l.mu.Lock()
	if offerSDP != "" {
		l.lastRemote = offerSDP
	}
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		l.addCandidate(c)
	}
}

func (l *Link) handleCandidate(c *signaling.ICECandidate) {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.addCandidate(c)
}

func (l *Link) addCandidate(c *signaling.ICECandidate) {
	if err := l.transport.AddCandidate(c); err != nil {
		l.logger.Debug("ignoring candidate", "error", err)
	}
}

func (l *Link) channelOpened(ch transfer.Channel) {
	l.mu.Lock()
	if l.state != Negotiating {
		l.mu.Unlock()
		return
	}
	l.state = Open
	l.channel = ch
	l.mu.Unlock()

	l.logger.Debug("peer channel open")
	close(l.ready)
}

func (l *Link) connectionStateChanged(cs ConnectionState) {
	l.mu.Lock()
	l.connState = cs
	state := l.state
	l.mu.Unlock()

	l.logger.Debug("connection state changed", "state", cs)
	if l.OnConnectionState != nil {
		l.OnConnectionState(cs)
	}

	if (cs == ConnectionFailed || cs == ConnectionClosed) && (state == Negotiating || state == Open) {
		l.fail(fmt.Errorf("%w: connection %s", ErrTransportFailure, cs))
	}
}

func (l *Link) fail(err error) {
	l.mu.Lock()
	if l.state == Closed || l.state == Failed {
		l.mu.Unlock()
		return
	}
	l.state = Failed
	l.err = err
	l.mu.Unlock()

	l.logger.Debug("link failed", "error", err)
	close(l.done)
}

// Wait blocks until the data channel is open.
func (l *Link) Wait(ctx context.Context) (transfer.Channel, error) {
	select {
	case <-l.ready:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.channel, nil
	case <-l.done:
		return nil, l.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the link fails or is closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns why the link stopped, ErrLinkClosed after Close.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) ConnectionState() ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connState
}

// Close closes the data channel, then the transport, and resets the link.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.state == Closed {
		l.mu.Unlock()
		return nil
	}
	wasDone := l.state == Failed
	l.state = Closed
	if l.err == nil {
		l.err = ErrLinkClosed
	}
	ch := l.channel
	l.channel = nil
	l.mu.Unlock()

	if !wasDone {
		close(l.done)
	}

	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	errs = append(errs, l.transport.Close())

	l.mu.Lock()
	l.connState = ConnectionNew
	l.haveOffer = false
	l.remoteSet = false
	l.lastRemote = ""
	l.pending = nil
	l.mu.Unlock()

	return errors.Join(errs...)
}
