package repository

import (
	"sync"

	"chat_relay_service/pkg"
)

// ReactionRepository definition per message reaction ledger and read receipts
type ReactionRepository interface {
	AddReaction(messageID int64, symbol, username string) bool
	RemoveReaction(messageID int64, symbol, username string) bool
	Reactions(messageID int64) map[string][]string
	ReactionUsers(messageID int64, symbol string) []string
	MarkRead(messageID int64, username string) bool
	Readers(messageID int64) []string
	// Forget 清掉已被淘汰訊息的 reaction 與已讀
	Forget(messageIDs ...int64)
}

type reactionRepository struct {
	mu        sync.RWMutex
	reactions map[int64]map[string][]string
	readers   map[int64][]string
}

// NewReactionRepository create in-memory ReactionRepository
func NewReactionRepository() ReactionRepository {
	return &reactionRepository{
		reactions: make(map[int64]map[string][]string),
		readers:   make(map[int64][]string),
	}
}

func (r *reactionRepository) AddReaction(messageID int64, symbol, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.reactions[messageID]
	if !ok {
		ledger = make(map[string][]string)
		r.reactions[messageID] = ledger
	}
	if pkg.Contains(ledger[symbol], username) {
		return false
	}
	ledger[symbol] = append(ledger[symbol], username)
	return true
}

func (r *reactionRepository) RemoveReaction(messageID int64, symbol, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ledger, ok := r.reactions[messageID]
	if !ok {
		return false
	}
	users := ledger[symbol]
	kept := make([]string, 0, len(users))
	for _, u := range users {
		if u != username {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(users) {
		return false
	}
	if len(kept) == 0 {
		// only the symbol goes, other symbols on the message stay
		delete(ledger, symbol)
	} else {
		ledger[symbol] = kept
	}
	return true
}

func (r *reactionRepository) Reactions(messageID int64) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.reactions[messageID]))
	for symbol, users := range r.reactions[messageID] {
		out[symbol] = append([]string(nil), users...)
	}
	return out
}

func (r *reactionRepository) ReactionUsers(messageID int64, symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.reactions[messageID][symbol]...)
}

func (r *reactionRepository) MarkRead(messageID int64, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pkg.Contains(r.readers[messageID], username) {
		return false
	}
	r.readers[messageID] = append(r.readers[messageID], username)
	return true
}

func (r *reactionRepository) Readers(messageID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.readers[messageID]...)
}

func (r *reactionRepository) Forget(messageIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		delete(r.reactions, id)
		delete(r.readers, id)
	}
}
