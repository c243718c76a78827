package repository

import (
	"fmt"
	"sync"
	"time"

	"chat_relay_service/internal/chat/domain"
)

// SessionRepository definition live connection -> user identity and room membership
type SessionRepository interface {
	Register(sessionID, username string) (domain.Session, error)
	JoinRoom(sessionID, room string) error
	LeaveRoom(sessionID, room string) error
	Unregister(sessionID string) (domain.Session, error)
	Get(sessionID string) (domain.Session, bool)
	MembersOf(room string) []string
	All() []string
	Count() int
	RoomCount() int
}

type sessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	// room -> set of session id, kept in step with Session.Rooms
	rooms map[string]map[string]struct{}
	now   func() time.Time
}

// NewSessionRepository create in-memory SessionRepository
func NewSessionRepository() SessionRepository {
	return &sessionRepository{
		sessions: make(map[string]*domain.Session),
		rooms:    make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (r *sessionRepository) Register(sessionID, username string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		return domain.Session{}, fmt.Errorf("register %s: %w", sessionID, domain.ErrDuplicateSession)
	}
	s := &domain.Session{
		ID:       sessionID,
		Username: username,
		Rooms:    make(map[string]struct{}),
		JoinedAt: r.now(),
	}
	r.sessions[sessionID] = s
	return copySession(s), nil
}

func (r *sessionRepository) JoinRoom(sessionID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("join %s: %w", room, domain.ErrUnknownSession)
	}
	s.Rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[sessionID] = struct{}{}
	return nil
}

func (r *sessionRepository) LeaveRoom(sessionID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("leave %s: %w", room, domain.ErrUnknownSession)
	}
	delete(s.Rooms, room)
	r.dropMember(room, sessionID)
	return nil
}

func (r *sessionRepository) Unregister(sessionID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, fmt.Errorf("unregister %s: %w", sessionID, domain.ErrUnknownSession)
	}
	for room := range s.Rooms {
		r.dropMember(room, sessionID)
	}
	delete(r.sessions, sessionID)
	return *s, nil
}

// dropMember caller holds r.mu
func (r *sessionRepository) dropMember(room, sessionID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *sessionRepository) Get(sessionID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return copySession(s), true
}

func (r *sessionRepository) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *sessionRepository) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *sessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomCount rooms with at least one member
func (r *sessionRepository) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func copySession(s *domain.Session) domain.Session {
	out := *s
	out.Rooms = make(map[string]struct{}, len(s.Rooms))
	for room := range s.Rooms {
		out.Rooms[room] = struct{}{}
	}
	return out
}
