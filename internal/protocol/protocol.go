// Package protocol holds the constants and errors shared by the relay server and
// the CLI peers: room id format, relay close reasons and the room status payload.
package protocol

import (
	"errors"
	"strings"
)

const (
	// RoomIDLength is the number of digits in a room id.
	RoomIDLength = 6

	// RoomCapacity is the maximum number of participants in a room.
	RoomCapacity = 2

	// SocketPath is the relay's WebSocket endpoint.
	SocketPath = "/socket"

	// RoomsPath prefixes the room status endpoint: GET /rooms/{id}.
	RoomsPath = "/rooms/"
)

// Close reasons sent by the relay with websocket.ClosePolicyViolation.
const (
	CloseReasonFull      = "full"
	CloseReasonNotMember = "Not in room"
)

var (
	ErrRoomNotFound             = errors.New("room not found")
	ErrRoomFull                 = errors.New("room is full")
	ErrInvalidHandshakeMetadata = errors.New("invalid handshake metadata")
	ErrNotARoomMember           = errors.New("not a room member")
)

// RoomStatus is the body of GET /rooms/{id}.
type RoomStatus struct {
	Valid bool `json:"valid"`
	Full  bool `json:"full"`
}

// ParseHandshake extracts the room and user ids from a Sec-WebSocket-Protocol
// header value of the form "<roomId>, <userId>".
func ParseHandshake(header string) (roomID, userID string, err error) {
	if header == "" {
		return "", "", ErrInvalidHandshakeMetadata
	}

	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return "", "", ErrInvalidHandshakeMetadata
	}

	roomID = strings.TrimSpace(parts[0])
	userID = strings.TrimSpace(parts[1])
	if roomID == "" || userID == "" {
		return "", "", ErrInvalidHandshakeMetadata
	}
	return roomID, userID, nil
}

// ValidRoomID reports whether id is a RoomIDLength-digit numeric string.
func ValidRoomID(id string) bool {
	if len(id) != RoomIDLength {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
