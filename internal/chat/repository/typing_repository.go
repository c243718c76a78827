package repository

import (
	"sort"
	"sync"
	"time"

	"chat_relay_service/internal/chat/domain"
)

// TypingRepository definition per room ephemeral typing state keyed by session
type TypingRepository interface {
	StartTyping(sessionID, username, room string)
	StopTyping(sessionID, room string) (string, bool)
	ClearSession(sessionID string) []domain.TypingEntry
	TypingUsernames(room string) []string
	// Expire 移除 now 之前到期的 entry
	Expire(now time.Time) []domain.TypingEntry
}

type typingRepository struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	rooms map[string]map[string]domain.TypingEntry
}

// NewTypingRepository create TypingRepository, ttl <= 0 disables expiry
func NewTypingRepository(ttl time.Duration, now func() time.Time) TypingRepository {
	if now == nil {
		now = time.Now
	}
	return &typingRepository{
		ttl:   ttl,
		now:   now,
		rooms: make(map[string]map[string]domain.TypingEntry),
	}
}

func (r *typingRepository) StartTyping(sessionID, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.rooms[room]
	if !ok {
		entries = make(map[string]domain.TypingEntry)
		r.rooms[room] = entries
	}
	entry := domain.TypingEntry{SessionID: sessionID, Username: username, Room: room}
	if r.ttl > 0 {
		entry.ExpiresAt = r.now().Add(r.ttl)
	}
	entries[sessionID] = entry
}

func (r *typingRepository) StopTyping(sessionID, room string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rooms[room][sessionID]
	if !ok {
		return "", false
	}
	r.remove(room, sessionID)
	return entry.Username, true
}

func (r *typingRepository) ClearSession(sessionID string) []domain.TypingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared []domain.TypingEntry
	for room, entries := range r.rooms {
		if entry, ok := entries[sessionID]; ok {
			cleared = append(cleared, entry)
			r.remove(room, sessionID)
		}
	}
	sortEntries(cleared)
	return cleared
}

func (r *typingRepository) TypingUsernames(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, entry := range r.rooms[room] {
		if expired(entry, now) {
			continue
		}
		if _, dup := seen[entry.Username]; dup {
			continue
		}
		seen[entry.Username] = struct{}{}
		names = append(names, entry.Username)
	}
	sort.Strings(names)
	return names
}

func (r *typingRepository) Expire(now time.Time) []domain.TypingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var gone []domain.TypingEntry
	for room, entries := range r.rooms {
		for id, entry := range entries {
			if expired(entry, now) {
				gone = append(gone, entry)
				r.remove(room, id)
			}
		}
	}
	sortEntries(gone)
	return gone
}

// remove caller holds r.mu
func (r *typingRepository) remove(room, sessionID string) {
	delete(r.rooms[room], sessionID)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
	}
}

func expired(e domain.TypingEntry, now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func sortEntries(entries []domain.TypingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Room != entries[j].Room {
			return entries[i].Room < entries[j].Room
		}
		return entries[i].SessionID < entries[j].SessionID
	})
}
