// Package webrtc implements link.Transport and transfer.Channel on a pion
// PeerConnection with a single pre-negotiated data channel.
package webrtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/link"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/utils"
)

const (
	channelLabel = "roomdrop"
	channelID    = 0
)

// Transport is a PeerConnection plus its data channel. Both peers create
// the channel as negotiated with the same id, so it opens exactly once on
// each side whichever peer ends up offering.
//
// pion cannot roll a local offer back, so Rollback replaces the whole
// PeerConnection. Callbacks from a replaced connection are dropped.
type Transport struct {
	build  func() (*pion.PeerConnection, error)
	logger *slog.Logger

	mu          sync.Mutex
	pc          *pion.PeerConnection
	channel     *Channel
	open        bool
	onChannel   func(transfer.Channel)
	onCandidate func(*signaling.ICECandidate)
	onState     func(link.ConnectionState)
}

var _ link.Transport = (*Transport)(nil)

// NewPeerConnection builds a PeerConnection from the ICE settings in cfg.
func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// NewTransport creates the PeerConnection and its data channel.
func NewTransport(cfg *config.Config, logger *slog.Logger) (*Transport, error) {
	return newTransport(func() (*pion.PeerConnection, error) {
		return NewPeerConnection(cfg)
	}, logger)
}

func newTransport(build func() (*pion.PeerConnection, error), logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{build: build, logger: logger}
	pc, ch, err := t.connect()
	if err != nil {
		return nil, err
	}
	t.pc, t.channel = pc, ch
	return t, nil
}

// connect builds a PeerConnection with the negotiated channel and routes its
// callbacks to the handlers registered on t.
func (t *Transport) connect() (*pion.PeerConnection, *Channel, error) {
	pc, err := t.build()
	if err != nil {
		return nil, nil, err
	}

	ordered, negotiated := true, true
	id := uint16(channelID)
	dc, err := pc.CreateDataChannel(channelLabel, &pion.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, nil, fmt.Errorf("create data channel: %w", err)
	}
	ch := newChannel(dc)

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		t.mu.Lock()
		f := t.onCandidate
		current := t.pc == pc
		t.mu.Unlock()
		if !current || f == nil {
			return
		}
		f(toCandidate(c))
	})

	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		t.mu.Lock()
		f := t.onState
		current := t.pc == pc
		t.mu.Unlock()
		if !current || f == nil {
			return
		}
		f(connectionState(s))
	})

	dc.OnOpen(func() {
		t.mu.Lock()
		current := t.pc == pc
		if current {
			t.open = true
		}
		f := t.onChannel
		t.mu.Unlock()
		if !current {
			return
		}

		t.logger.Debug("data channel open", "label", dc.Label())
		if f != nil {
			f(ch)
		}
	})
	return pc, ch, nil
}

func (t *Transport) conn() *pion.PeerConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pc
}

func (t *Transport) CreateOffer(context.Context) (signaling.SessionDescription, error) {
	pc := t.conn()
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toSignaling(*pc.LocalDescription()), nil
}

func (t *Transport) AcceptOffer(_ context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	pc := t.conn()
	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toSignaling(*pc.LocalDescription()), nil
}

func (t *Transport) AcceptAnswer(answer signaling.SessionDescription) error {
	if err := t.conn().SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Rollback drops the pending local offer by replacing the PeerConnection
// with a fresh one in the stable state. Candidates of the old connection
// already sent to the peer simply never connect.
func (t *Transport) Rollback() error {
	old := t.conn()
	if old.SignalingState() != pion.SignalingStateHaveLocalOffer {
		return fmt.Errorf("rollback: no pending local offer (state %s)", old.SignalingState())
	}

	pc, ch, err := t.connect()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	t.mu.Lock()
	t.pc, t.channel, t.open = pc, ch, false
	t.mu.Unlock()

	if err := old.Close(); err != nil {
		t.logger.Debug("closing replaced peer connection", "error", err)
	}
	return nil
}

func (t *Transport) LocalDescription() *signaling.SessionDescription {
	desc := t.conn().LocalDescription()
	if desc == nil {
		return nil
	}
	sd := toSignaling(*desc)
	return &sd
}

// AddCandidate adds a remote candidate. pion needs no end-of-candidates
// marker, so nil is accepted and dropped.
func (t *Transport) AddCandidate(c *signaling.ICECandidate) error {
	if c.EndOfCandidates() {
		return nil
	}
	return t.conn().AddICECandidate(pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *Transport) OnCandidate(f func(*signaling.ICECandidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = f
}

func (t *Transport) OnConnectionState(f func(link.ConnectionState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = f
}

func (t *Transport) OnChannel(f func(transfer.Channel)) {
	t.mu.Lock()
	t.onChannel = f
	open, ch := t.open, t.channel
	t.mu.Unlock()

	if open {
		f(ch)
	}
}

func (t *Transport) Close() error {
	return t.conn().Close()
}

func toCandidate(c *pion.ICECandidate) *signaling.ICECandidate {
	if c == nil {
		return nil
	}
	init := c.ToJSON()
	return &signaling.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func toSignaling(desc pion.SessionDescription) signaling.SessionDescription {
	return signaling.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func connectionState(s pion.PeerConnectionState) link.ConnectionState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return link.ConnectionChecking
	case pion.PeerConnectionStateConnected:
		return link.ConnectionConnected
	case pion.PeerConnectionStateDisconnected:
		return link.ConnectionDisconnected
	case pion.PeerConnectionStateFailed:
		return link.ConnectionFailed
	case pion.PeerConnectionStateClosed:
		return link.ConnectionClosed
	}
	return link.ConnectionNew
}
