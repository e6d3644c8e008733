package link

import (
	"context"

	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
)

// ConnectionState is the transport's own connectivity state. It is reported
// for diagnostics and only drives the link on failure.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionChecking     ConnectionState = "checking"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// Transport is the peer-to-peer half driven by a Link. internal/webrtc
// implements it on a pion PeerConnection.
type Transport interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer(ctx context.Context) (signaling.SessionDescription, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(ctx context.Context, offer signaling.SessionDescription) (signaling.SessionDescription, error)
	// AcceptAnswer completes a negotiation started with CreateOffer.
	AcceptAnswer(answer signaling.SessionDescription) error
	// Rollback discards a pending local offer.
	Rollback() error
	// LocalDescription is the current local description including the
	// candidates gathered so far, or nil.
	LocalDescription() *signaling.SessionDescription
	// AddCandidate adds a remote candidate; nil marks the end of candidates.
	AddCandidate(c *signaling.ICECandidate) error

	OnCandidate(f func(*signaling.ICECandidate))
	OnConnectionState(f func(ConnectionState))
	// OnChannel fires once the data channel is open.
	OnChannel(f func(transfer.Channel))

	Close() error
}

// Signaler carries envelopes to and from the room. *signaling.Client
// implements it.
type Signaler interface {
	UserID() string
	Send(ctx context.Context, s signaling.Signal) error
	Incoming() <-chan signaling.Envelope
	Err() error
}
