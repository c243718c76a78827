package domain

import (
	"sort"
	"time"
)

// Session server side state of one live connection
type Session struct {
	ID       string
	Username string
	Rooms    map[string]struct{}
	JoinedAt time.Time
}

// InRoom check session joined room
func (s Session) InRoom(room string) bool {
	_, ok := s.Rooms[room]
	return ok
}

// RoomList returns joined rooms sorted by name
func (s Session) RoomList() []string {
	rooms := make([]string, 0, len(s.Rooms))
	for r := range s.Rooms {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return rooms
}

// TypingEntry one session typing in one room
type TypingEntry struct {
	SessionID string
	Username  string
	Room      string
	ExpiresAt time.Time
}
