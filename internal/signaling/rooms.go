package signaling

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/roomdrop/roomdrop/internal/dns"
	"github.com/roomdrop/roomdrop/internal/protocol"
)

const statusRetries = 3

// Rooms queries the relay's room status endpoint.
type Rooms struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	// generate produces candidate room ids; swapped in tests.
	generate func() (string, error)
}

// NewRooms returns a status client for the relay at baseURL (http or https).
func NewRooms(baseURL string, logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.DialContext

	return &Rooms{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Transport: transport, Timeout: 10 * time.Second},
		logger:   logger,
		generate: GenerateRoomID,
	}
}

// Status reports whether roomID exists and whether it is full. Transient
// failures (network, 5xx) are retried with exponential backoff.
func (r *Rooms) Status(ctx context.Context, roomID string) (protocol.RoomStatus, error) {
	var status protocol.RoomStatus
	endpoint := r.baseURL + protocol.RoomsPath + url.PathEscape(roomID)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			r.logger.Debug("room status request failed", "room", roomID, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("room status: server returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("room status: server returned %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return backoff.Permanent(fmt.Errorf("room status: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, statusRetries), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return protocol.RoomStatus{}, err
	}
	return status, nil
}

// CheckJoinable fails with ErrRoomNotFound or ErrRoomFull when roomID cannot
// be joined.
func (r *Rooms) CheckJoinable(ctx context.Context, roomID string) error {
	if !protocol.ValidRoomID(roomID) {
		return fmt.Errorf("room %q: %w", roomID, protocol.ErrRoomNotFound)
	}

	status, err := r.Status(ctx, roomID)
	if err != nil {
		return err
	}
	switch {
	case !status.Valid:
		return fmt.Errorf("room %s: %w", roomID, protocol.ErrRoomNotFound)
	case status.Full:
		return fmt.Errorf("room %s: %w", roomID, protocol.ErrRoomFull)
	}
	return nil
}

// CreateRoomID draws random ids until the relay reports one as unused. There
// is no attempt limit; only ctx stops the loop.
func (r *Rooms) CreateRoomID(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := r.generate()
		if err != nil {
			return "", err
		}

		status, err := r.Status(ctx, id)
		if err != nil {
			return "", err
		}
		if !status.Valid {
			return id, nil
		}
		r.logger.Debug("room id taken, retrying", "room", id)
	}
}

// GenerateRoomID returns a random protocol.RoomIDLength-digit id.
func GenerateRoomID() (string, error) {
	limit := big.NewInt(1)
	for range protocol.RoomIDLength {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	return fmt.Sprintf("%0*d", protocol.RoomIDLength, n.Int64()), nil
}

// NewUserID returns a fresh per-connection participant id.
func NewUserID() string {
	return uuid.NewString()
}
