// Package server exposes the relay over HTTP: the room status endpoint, the
// signaling websocket and a health probe.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/roomdrop/roomdrop/internal/relay"
)

const shutdownTimeout = 5 * time.Second

// Server runs the hub and the HTTP listener together.
type Server struct {
	Addr   string
	Hub    *relay.Hub
	logger *slog.Logger
}

// New builds a Server with a fresh registry and hub.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Addr:   addr,
		Hub:    relay.NewHub(relay.NewRegistry(), logger),
		logger: logger,
	}
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln until ctx is cancelled, then shuts
// both down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.Hub.Run(hubCtx)

	httpServer := &http.Server{
		Handler:           Routes(s.Hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server running", "url", "http://"+ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; stopping the
	// hub closes them.
	stopHub()
	err := httpServer.Shutdown(shutdownCtx)
	s.logger.Info("server stopped")
	return err
}
