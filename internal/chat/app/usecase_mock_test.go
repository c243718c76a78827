package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chat_relay_service/internal/chat/domain"
	"chat_relay_service/internal/chat/repository"
	"chat_relay_service/pkg/logger"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// === 測試用 sink, 記錄收到的 envelope ===
type recordSink struct {
	mu     sync.Mutex
	events []domain.Envelope
	full   bool
}

func (s *recordSink) Send(env domain.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.events = append(s.events, env)
	return true
}

func (s *recordSink) all() []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Envelope(nil), s.events...)
}

// named envelopes with the given event, in arrival order
func (s *recordSink) named(event domain.Event) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range s.all() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (s *recordSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

type testChat struct {
	chat      *ChatUseCase
	hub       *Hub
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	typing    repository.TypingRepository
	reactions repository.ReactionRepository
	clock     *time.Time
}

func newTestChat(t *testing.T, capacity int, mirror repository.EventPublisher) *testChat {
	t.Helper()
	logger.SetNewNop()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tc := &testChat{clock: &now}
	clock := func() time.Time { return *tc.clock }

	tc.sessions = repository.NewSessionRepository()
	tc.messages = repository.NewMessageRepository(capacity)
	tc.typing = repository.NewTypingRepository(8*time.Second, clock)
	tc.reactions = repository.NewReactionRepository()
	tc.hub = NewHub(tc.sessions)
	query := NewQueryUseCase(tc.messages, 20, 100)

	tc.chat = NewChatUseCase(tc.sessions, tc.messages, tc.typing, tc.reactions, tc.hub, query, mirror, ChatOptions{
		MaxBodyLength: 5000,
		MaxFileBytes:  1024,
		MirrorPrefix:  "chat:room:",
	})
	tc.chat.now = clock
	return tc
}

func (tc *testChat) connect(id string) *recordSink {
	sink := &recordSink{}
	tc.chat.Connect(id, sink)
	return sink
}

// join connects and identifies id as username
func (tc *testChat) join(t *testing.T, id, username string) *recordSink {
	t.Helper()
	sink := tc.connect(id)
	require.NoError(t, tc.send(id, domain.UserJoin, username))
	return sink
}

func (tc *testChat) send(id string, event domain.Event, payload interface{}) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return tc.chat.Handle(context.Background(), id, env)
}

func (tc *testChat) advance(d time.Duration) {
	*tc.clock = tc.clock.Add(d)
}

func decodeData[T any](t *testing.T, env domain.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func jsonInto(env domain.Envelope, v interface{}) error {
	return json.Unmarshal(env.Data, v)
}
