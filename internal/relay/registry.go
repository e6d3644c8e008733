package relay

import (
	"sync"

	"github.com/roomdrop/roomdrop/internal/protocol"
)

// Room is the set of participants that joined a room id.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Users holds the joined participant ids.
	Users map[string]struct{}
}

// Registry maps room ids to their participants. It is the single source of
// truth for both the room status endpoint and the relay admission check.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Lookup reports whether the room exists and whether it is at capacity.
func (r *Registry) Lookup(roomID string) protocol.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return protocol.RoomStatus{}
	}
	return protocol.RoomStatus{Valid: true, Full: len(room.Users) >= protocol.RoomCapacity}
}

// Join adds userID to the room, creating the room on first join. Joining a room
// the user is already in is a no-op.
func (r *Registry) Join(roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.rooms[roomID] = &Room{
			ID:    roomID,
			Users: map[string]struct{}{userID: {}},
		}
		return nil
	}

	if _, member := room.Users[userID]; member {
		return nil
	}
	if len(room.Users) >= protocol.RoomCapacity {
		return protocol.ErrRoomFull
	}
	room.Users[userID] = struct{}{}
	return nil
}

// Leave removes userID from the room and deletes the room once it is empty.
func (r *Registry) Leave(roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Users, userID)
	if len(room.Users) == 0 {
		delete(r.rooms, roomID)
	}
}

// IsMember reports whether userID currently belongs to the room.
func (r *Registry) IsMember(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, member := room.Users[userID]
	return member
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
