package cmd

import (
	"context"
	"log/slog"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/link"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/webrtc"
	"github.com/spf13/cobra"
)

// peerFlags are the connection flags shared by the peer commands.
type peerFlags struct {
	server   string
	stun     string
	turn     string
	turnUser string
	turnPass string
	relay    bool
}

func (f *peerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.server, "server", "S", "", "Relay server URL (overrides ROOMDROP_SERVER)")
	cmd.Flags().StringVar(&f.stun, "stun", "", "Custom STUN server")
	cmd.Flags().StringVar(&f.turn, "turn", "", "Custom TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVar(&f.relay, "relay", false, "Force relay mode (TURN only)")
}

func (f *peerFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ServerURL:  f.server,
		STUNServer: f.stun,
		TURNServer: f.turn,
		TURNUser:   f.turnUser,
		TURNPass:   f.turnPass,
		ForceRelay: f.relay,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

// Session is one peer's membership in a room: the relay connection and the
// link negotiated over it.
type Session struct {
	Relay *signaling.Client
	Link  *link.Link
}

// OpenSession joins roomID on the relay and starts negotiating the peer link.
func OpenSession(ctx context.Context, cfg *config.Config, roomID string, logger *slog.Logger) (*Session, error) {
	relay, err := signaling.Dial(ctx, cfg.WebSocketURL, roomID, signaling.NewUserID(), logger)
	if err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	transport, err := webrtc.NewTransport(cfg, logger)
	if err != nil {
		relay.Close()
		return nil, transfer.NewError("create peer connection", err)
	}

	l := link.New(transport, relay, logger)
	l.OnConnectionState = func(cs link.ConnectionState) {
		logger.Debug("peer connection state", "state", cs)
	}
	if err := l.Start(ctx); err != nil {
		l.Close()
		relay.Close()
		return nil, transfer.NewError("start negotiation", err)
	}

	return &Session{Relay: relay, Link: l}, nil
}

// WaitForPeer blocks until the data channel to the other participant opens.
// A relay refusal (room full, not a member) surfaces here.
func (s *Session) WaitForPeer(ctx context.Context) (transfer.Channel, error) {
	ch, err := s.Link.Wait(ctx)
	if err != nil {
		return nil, transfer.NewError("connect to peer", err)
	}
	return ch, nil
}

// Close tears down the link (channel first, then transport) and leaves the
// room.
func (s *Session) Close() {
	s.Link.Close()
	s.Relay.Close()
}

// closeNotifier is implemented by channels that report the remote closing.
type closeNotifier interface {
	OnClose(func())
}
