package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"chat_relay_service/internal/chat/domain"
	"chat_relay_service/internal/chat/repository"
	"chat_relay_service/pkg/logger"

	"go.uber.org/zap"
)

// MaxUsernameLength longest accepted username, in runes
const MaxUsernameLength = 50

// ChatOptions limits applied by ChatUseCase
type ChatOptions struct {
	MaxBodyLength int
	MaxFileBytes  int
	// MirrorPrefix channel prefix for the event mirror, e.g. "chat:room:"
	MirrorPrefix string
}

// ChatUseCase 事件分派: 解析 session, 改一個 store, 再交給 Hub 廣播
type ChatUseCase struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	typing    repository.TypingRepository
	reactions repository.ReactionRepository
	hub       *Hub
	query     *QueryUseCase
	mirror    repository.EventPublisher

	ids  *domain.IDGenerator
	opts ChatOptions
	now  func() time.Time
}

// NewChatUseCase init chat use case, mirror may be nil
func NewChatUseCase(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	typing repository.TypingRepository,
	reactions repository.ReactionRepository,
	hub *Hub,
	query *QueryUseCase,
	mirror repository.EventPublisher,
	opts ChatOptions,
) *ChatUseCase {
	return &ChatUseCase{
		sessions:  sessions,
		messages:  messages,
		typing:    typing,
		reactions: reactions,
		hub:       hub,
		query:     query,
		mirror:    mirror,
		ids:       domain.NewIDGenerator(nil),
		opts:      opts,
		now:       time.Now,
	}
}

// Connect registers the outbound sink of a new, still unidentified connection
func (uc *ChatUseCase) Connect(sessionID string, sink Sink) {
	uc.hub.Attach(sessionID, sink)
	logger.Log.Debug("connection attached", zap.String("sessionID", sessionID))
}

// Handle routes one inbound event. A failure is reported to the sender as an
// error event and returned; the connection stays usable.
func (uc *ChatUseCase) Handle(ctx context.Context, sessionID string, env domain.Envelope) error {
	err := uc.dispatch(ctx, sessionID, env)
	if err != nil {
		uc.ReplyError(sessionID, env.Event, err)
	}
	return err
}

// ReplyError sends error{event, message} to the sender only
func (uc *ChatUseCase) ReplyError(sessionID string, event domain.Event, err error) {
	uc.hub.ToOne(sessionID, domain.ErrorEvt, domain.ErrorPayload{Event: event, Message: err.Error()})
}

func (uc *ChatUseCase) dispatch(ctx context.Context, sessionID string, env domain.Envelope) error {
	switch env.Event {
	case domain.UserJoin:
		var req domain.NameRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.userJoin(sessionID, req.Value())

	case domain.JoinRoom, domain.LeaveRoom:
		var req domain.NameRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		if env.Event == domain.JoinRoom {
			return uc.joinRoom(sessionID, req.Value())
		}
		return uc.leaveRoom(sessionID, req.Value())

	case domain.SendMessage:
		var req domain.SendMessageRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.sendMessage(ctx, sessionID, req)

	case domain.SendFile:
		var req domain.SendFileRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.sendFile(ctx, sessionID, req)

	case domain.Typing, domain.StopTyping:
		var req domain.TypingRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.setTyping(sessionID, req, env.Event == domain.Typing)

	case domain.AddReaction, domain.RemoveReaction:
		var req domain.ReactionRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.react(sessionID, req, env.Event == domain.AddReaction)

	case domain.MarkAsRead:
		var req domain.ReadRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return uc.markRead(sessionID, req)

	case domain.GetMessages:
		var req domain.GetMessagesRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		if _, err := uc.session(sessionID); err != nil {
			return err
		}
		uc.hub.ToOne(sessionID, domain.MessagesPageEvt, uc.query.GetMessages(req))
		return nil

	case domain.SearchMessages:
		var req domain.SearchRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		if _, err := uc.session(sessionID); err != nil {
			return err
		}
		uc.hub.ToOne(sessionID, domain.SearchResultsEvt, uc.query.SearchMessages(req))
		return nil
	}

	return fmt.Errorf("%q: %w", env.Event, domain.ErrUnknownEvent)
}

func (uc *ChatUseCase) userJoin(sessionID, username string) error {
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength || !utf8.ValidString(username) {
		return domain.ErrInvalidUsername
	}
	if _, err := uc.sessions.Register(sessionID, username); err != nil {
		return err
	}
	uc.hub.ToAll(domain.UserJoined, domain.UserPayload{Username: username})
	logger.Log.Info("user joined", zap.String("sessionID", sessionID), zap.String("username", username))
	return nil
}

func (uc *ChatUseCase) joinRoom(sessionID, room string) error {
	room = domain.NormalizeRoom(room)
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	if err := uc.sessions.JoinRoom(sessionID, room); err != nil {
		return err
	}
	uc.hub.ToRoom(room, domain.UserJoinedRoom, domain.RoomPayload{Username: s.Username, Room: room})
	logger.Log.Debug("joined room", zap.String("username", s.Username), zap.String("room", room))
	return nil
}

func (uc *ChatUseCase) leaveRoom(sessionID, room string) error {
	room = domain.NormalizeRoom(room)
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	if err := uc.sessions.LeaveRoom(sessionID, room); err != nil {
		return err
	}
	uc.hub.ToRoom(room, domain.UserLeftRoom, domain.RoomPayload{Username: s.Username, Room: room})
	if _, wasTyping := uc.typing.StopTyping(sessionID, room); wasTyping {
		uc.hub.ToRoom(room, domain.StopTyping, domain.TypingPayload{Username: s.Username, Room: room})
	}
	logger.Log.Debug("left room", zap.String("username", s.Username), zap.String("room", room))
	return nil
}

func (uc *ChatUseCase) sendMessage(ctx context.Context, sessionID string, req domain.SendMessageRequest) error {
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	if err := uc.checkBody(req.Message); err != nil {
		return err
	}

	msg := uc.newMessage(s.Username, req.Message, req.Room)
	uc.store(ctx, msg)
	uc.broadcastScoped(req.Room, domain.ReceiveMessage, msg)
	return nil
}

func (uc *ChatUseCase) sendFile(ctx context.Context, sessionID string, req domain.SendFileRequest) error {
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	if err := uc.checkBody(req.Message); err != nil {
		return err
	}
	if req.FileName == "" {
		return fmt.Errorf("fileName required: %w", domain.ErrBadPayload)
	}
	if uc.opts.MaxFileBytes > 0 && len(req.FileData) > uc.opts.MaxFileBytes {
		return domain.ErrFileTooLarge
	}

	msg := uc.newMessage(s.Username, req.Message, req.Room)
	msg.Type = domain.MessageTypeFile
	msg.Attachment = &domain.Attachment{Name: req.FileName, MediaType: req.FileType, Payload: req.FileData}

	uc.store(ctx, msg)
	uc.broadcastScoped(req.Room, domain.ReceiveMessage, msg)
	uc.hub.ToOne(sessionID, domain.MessageDelivered, domain.DeliveredPayload{MessageID: msg.ID})
	return nil
}

// setTyping ignores the client supplied username and uses the session's own
func (uc *ChatUseCase) setTyping(sessionID string, req domain.TypingRequest, typing bool) error {
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	room := domain.NormalizeRoom(req.Room)

	event := domain.StopTyping
	if typing {
		event = domain.Typing
		uc.typing.StartTyping(sessionID, s.Username, room)
	} else {
		uc.typing.StopTyping(sessionID, room)
	}
	uc.broadcastScoped(req.Room, event, domain.TypingPayload{Username: s.Username, Room: room})
	return nil
}

func (uc *ChatUseCase) react(sessionID string, req domain.ReactionRequest, add bool) error {
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	if req.Reaction == "" {
		return fmt.Errorf("reaction required: %w", domain.ErrBadPayload)
	}

	id := int64(req.MessageID)
	event := domain.ReactionRemoved
	if add {
		event = domain.ReactionAdded
		uc.reactions.AddReaction(id, req.Reaction, s.Username)
	} else {
		uc.reactions.RemoveReaction(id, req.Reaction, s.Username)
	}
	uc.hub.ToRoom(domain.NormalizeRoom(req.Room), event, domain.ReactionPayload{
		MessageID: id,
		Reaction:  req.Reaction,
		Username:  s.Username,
	})
	return nil
}

func (uc *ChatUseCase) markRead(sessionID string, req domain.ReadRequest) error {
	s, err := uc.session(sessionID)
	if err != nil {
		return err
	}
	id := int64(req.MessageID)
	uc.reactions.MarkRead(id, s.Username)
	uc.hub.ToRoom(domain.NormalizeRoom(req.Room), domain.MessageRead, domain.ReadPayload{MessageID: id, Username: s.Username})
	return nil
}

// Disconnect tears a connection down. Safe to call more than once and for
// connections that never identified.
func (uc *ChatUseCase) Disconnect(sessionID string) {
	uc.hub.Detach(sessionID)
	cleared := uc.typing.ClearSession(sessionID)

	s, err := uc.sessions.Unregister(sessionID)
	if err != nil {
		logger.Log.Debug("disconnect without session", zap.String("sessionID", sessionID))
		return
	}

	// 每個房間各自通知, 中途失敗不回滾
	for _, room := range s.RoomList() {
		uc.hub.ToRoom(room, domain.UserLeftRoom, domain.RoomPayload{Username: s.Username, Room: room})
	}
	uc.hub.ToAll(domain.UserLeft, domain.UserPayload{Username: s.Username})
	for _, entry := range cleared {
		uc.broadcastTypingRoom(entry.Room, domain.TypingPayload{Username: entry.Username, Room: entry.Room})
	}
	logger.Log.Info("user left", zap.String("sessionID", sessionID), zap.String("username", s.Username))
}

// SweepTyping drops typing entries that outlived their ttl and tells the room
func (uc *ChatUseCase) SweepTyping(now time.Time) int {
	expired := uc.typing.Expire(now)
	for _, entry := range expired {
		uc.broadcastTypingRoom(entry.Room, domain.TypingPayload{Username: entry.Username, Room: entry.Room})
	}
	return len(expired)
}

// RunTypingSweeper calls SweepTyping every interval until ctx is done
func (uc *ChatUseCase) RunTypingSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			if n := uc.SweepTyping(t); n > 0 {
				logger.Log.Debug("typing expired", zap.Int("count", n))
			}
		}
	}
}

// Stats live counters for the /stats endpoint
func (uc *ChatUseCase) Stats() map[string]int {
	return map[string]int{
		"connections": uc.hub.Connections(),
		"sessions":    uc.sessions.Count(),
		"rooms":       uc.sessions.RoomCount(),
	}
}

func (uc *ChatUseCase) session(sessionID string) (domain.Session, error) {
	s, ok := uc.sessions.Get(sessionID)
	if !ok {
		return domain.Session{}, domain.ErrUnknownSession
	}
	return s, nil
}

func (uc *ChatUseCase) checkBody(body string) error {
	if uc.opts.MaxBodyLength > 0 && utf8.RuneCountInString(body) > uc.opts.MaxBodyLength {
		return domain.ErrMessageTooLong
	}
	return nil
}

func (uc *ChatUseCase) newMessage(sender, body, room string) domain.Message {
	return domain.Message{
		ID:        uc.ids.Next(),
		Sender:    sender,
		Body:      body,
		Room:      domain.NormalizeRoom(room),
		Timestamp: uc.now().UTC(),
		Type:      domain.MessageTypeText,
	}
}

// store appends to the room log, forgets ledgers of evicted messages and mirrors the message
func (uc *ChatUseCase) store(ctx context.Context, msg domain.Message) {
	evicted := uc.messages.Append(msg.Room, msg)
	if len(evicted) > 0 {
		ids := make([]int64, 0, len(evicted))
		for _, m := range evicted {
			ids = append(ids, m.ID)
		}
		uc.reactions.Forget(ids...)
	}

	if uc.mirror == nil {
		return
	}
	if err := uc.mirror.Publish(ctx, uc.opts.MirrorPrefix+msg.Room, msg); err != nil {
		logger.Log.Warn("mirror publish failed", zap.String("room", msg.Room), zap.Int64("messageID", msg.ID), zap.Error(err))
	}
}

// broadcastScoped roomless events go to everyone, the rest to the room
func (uc *ChatUseCase) broadcastScoped(rawRoom string, event domain.Event, payload interface{}) {
	if rawRoom == "" {
		uc.hub.ToAll(event, payload)
		return
	}
	uc.hub.ToRoom(rawRoom, event, payload)
}

// broadcastTypingRoom synthetic stop_typing; the global key came from a roomless typing event
func (uc *ChatUseCase) broadcastTypingRoom(room string, payload domain.TypingPayload) {
	if room == domain.GlobalRoom {
		uc.hub.ToAll(domain.StopTyping, payload)
		return
	}
	uc.hub.ToRoom(room, domain.StopTyping, payload)
}

func decode(env domain.Envelope, v interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Event, errors.Join(domain.ErrBadPayload, err))
	}
	return nil
}
