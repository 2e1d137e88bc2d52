package presence

import (
	"errors"
	"strings"
	"sync"
)

// ErrNoRooms is returned when a selector is built from an empty room list.
var ErrNoRooms = errors.New("room list is empty")

// RoomSelector cycles deterministically through a fixed room list.
// The cursor wraps to zero at the end; it never goes out of range.
type RoomSelector struct {
	mu     sync.Mutex
	rooms  []string
	cursor int
}

// NewRoomSelector copies rooms. At least one room is required.
func NewRoomSelector(rooms []string) (*RoomSelector, error) {
	if len(rooms) == 0 {
		return nil, ErrNoRooms
	}
	cp := make([]string, len(rooms))
	copy(cp, rooms)
	return &RoomSelector{rooms: cp}, nil
}

// Current returns the room at the cursor.
func (r *RoomSelector) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[r.cursor]
}

// Cursor returns the cursor index.
func (r *RoomSelector) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Advance moves to the next room, wrapping, and returns it.
func (r *RoomSelector) Advance() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = (r.cursor + 1) % len(r.rooms)
	return r.rooms[r.cursor]
}

// Len returns the number of rooms.
func (r *RoomSelector) Len() int {
	return len(r.rooms)
}

// BuildURL substitutes roomID into a template containing placeholder once.
func BuildURL(template, placeholder, roomID string) string {
	return strings.Replace(template, placeholder, roomID, 1)
}
