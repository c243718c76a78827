package app

import (
	"sync"

	"chat_relay_service/internal/chat/domain"
	"chat_relay_service/internal/chat/repository"
	"chat_relay_service/pkg/logger"

	"go.uber.org/zap"
)

// Sink per connection outbound queue. Send must not block; false means the
// event was dropped (queue full or connection gone).
type Sink interface {
	Send(env domain.Envelope) bool
}

// Hub room broadcaster, fans one event out to the sessions it targets
type Hub struct {
	sessions repository.SessionRepository

	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewHub create Hub resolving room membership through sessions
func NewHub(sessions repository.SessionRepository) *Hub {
	return &Hub{
		sessions: sessions,
		sinks:    make(map[string]Sink),
	}
}

// Attach 連線建立時登記 sink, user_join 之前也能收到 ToOne
func (h *Hub) Attach(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[sessionID] = sink
}

// Detach 之後不再投遞給這個連線
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, sessionID)
}

// Connections number of attached connections, identified or not
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// ToRoom delivers to every session joined to room, returns how many accepted it
func (h *Hub) ToRoom(room string, event domain.Event, payload interface{}) int {
	return h.deliver(h.sessions.MembersOf(room), event, payload)
}

// ToAll delivers to every registered session regardless of room
func (h *Hub) ToAll(event domain.Event, payload interface{}) int {
	return h.deliver(h.sessions.All(), event, payload)
}

// ToOne delivers only to sessionID
func (h *Hub) ToOne(sessionID string, event domain.Event, payload interface{}) bool {
	return h.deliver([]string{sessionID}, event, payload) == 1
}

func (h *Hub) deliver(targets []string, event domain.Event, payload interface{}) int {
	if len(targets) == 0 {
		return 0
	}
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		logger.Log.Error("broadcast encode failed", zap.String("event", string(event)), zap.Error(err))
		return 0
	}

	// snapshot, no lock held while sending
	h.mu.RLock()
	sinks := make([]Sink, 0, len(targets))
	ids := make([]string, 0, len(targets))
	for _, id := range targets {
		if s, ok := h.sinks[id]; ok {
			sinks = append(sinks, s)
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for i, s := range sinks {
		if s.Send(env) {
			delivered++
			continue
		}
		logger.Log.Debug("event dropped", zap.String("event", string(event)), zap.String("sessionID", ids[i]))
	}
	return delivered
}
