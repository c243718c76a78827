package repository

import (
	"strings"
	"sync"

	"chat_relay_service/internal/chat/domain"
)

// MessageRepository definition per room bounded message log
type MessageRepository interface {
	// Append 寫到 room 尾端, 回傳被擠掉的舊訊息
	Append(room string, msg domain.Message) []domain.Message
	// Tail most recent limit messages, oldest first
	Tail(room string, limit int) []domain.Message
	// Page up to limit messages ending offset back from the newest, newest first
	Page(room string, offset, limit int) ([]domain.Message, bool)
	// Search case-insensitive substring over body or sender, oldest first
	Search(room, query string) []domain.Message
	Len(room string) int
}

type messageRepository struct {
	mu       sync.RWMutex
	capacity int
	logs     map[string]*roomLog
}

// NewMessageRepository create in-memory MessageRepository keeping capacity messages per room
func NewMessageRepository(capacity int) MessageRepository {
	if capacity <= 0 {
		capacity = 100
	}
	return &messageRepository{
		capacity: capacity,
		logs:     make(map[string]*roomLog),
	}
}

func (r *messageRepository) Append(room string, msg domain.Message) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.logs[room]
	if !ok {
		l = &roomLog{buf: make([]domain.Message, r.capacity)}
		r.logs[room] = l
	}
	if evicted, ok := l.push(msg); ok {
		return []domain.Message{evicted}
	}
	return nil
}

func (r *messageRepository) Tail(room string, limit int) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.logs[room]
	if !ok || limit <= 0 {
		return []domain.Message{}
	}
	start := l.size - limit
	if start < 0 {
		start = 0
	}
	return l.slice(start, l.size)
}

func (r *messageRepository) Page(room string, offset, limit int) ([]domain.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.logs[room]
	if !ok || offset < 0 || limit <= 0 || offset >= l.size {
		return []domain.Message{}, false
	}

	end := l.size - offset
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := l.slice(start, end)
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, start > 0
}

func (r *messageRepository) Search(room, query string) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.logs[room]
	if !ok {
		return []domain.Message{}
	}

	q := strings.ToLower(query)
	results := make([]domain.Message, 0)
	for i := 0; i < l.size; i++ {
		m := l.at(i)
		if strings.Contains(strings.ToLower(m.Body), q) || strings.Contains(strings.ToLower(m.Sender), q) {
			results = append(results, m)
		}
	}
	return results
}

func (r *messageRepository) Len(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if l, ok := r.logs[room]; ok {
		return l.size
	}
	return 0
}

// roomLog fixed size ring, oldest at head
type roomLog struct {
	buf  []domain.Message
	head int
	size int
}

func (l *roomLog) push(m domain.Message) (domain.Message, bool) {
	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = m
		l.size++
		return domain.Message{}, false
	}
	evicted := l.buf[l.head]
	l.buf[l.head] = m
	l.head = (l.head + 1) % len(l.buf)
	return evicted, true
}

// at i-th oldest message
func (l *roomLog) at(i int) domain.Message {
	return l.buf[(l.head+i)%len(l.buf)]
}

func (l *roomLog) slice(start, end int) []domain.Message {
	out := make([]domain.Message, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, l.at(i))
	}
	return out
}
