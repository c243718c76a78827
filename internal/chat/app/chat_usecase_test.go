package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chat_relay_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChatUseCase_RoomMessageReachesMembersOnly(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	c := tc.join(t, "sc", "C")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sb", domain.JoinRoom, map[string]string{"roomName": "dev"}))
	a.reset()
	b.reset()
	c.reset()

	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "hi", Room: "dev"}))

	got := b.named(domain.ReceiveMessage)
	require.Len(t, got, 1)
	msg := decodeData[domain.Message](t, got[0])
	assert.Equal(t, "A", msg.Sender)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "dev", msg.Room)
	assert.Equal(t, domain.MessageTypeText, msg.Type)
	assert.Len(t, a.named(domain.ReceiveMessage), 1)
	assert.Empty(t, c.all())
	assert.Equal(t, 1, tc.messages.Len("dev"))
}

func TestChatUseCase_RoomlessMessageReachesEveryone(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	b.reset()

	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "anyone?"}))

	got := b.named(domain.ReceiveMessage)
	require.Len(t, got, 1)
	msg := decodeData[domain.Message](t, got[0])
	assert.Equal(t, domain.GlobalRoom, msg.Room)
	assert.Equal(t, 1, tc.messages.Len(domain.GlobalRoom))
}

func TestChatUseCase_UserJoinBroadcast(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	a.reset()
	anon := tc.connect("anon")

	tc.join(t, "sb", "B")

	joined := a.named(domain.UserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "B", decodeData[domain.UserPayload](t, joined[0]).Username)
	assert.Empty(t, anon.all(), "unidentified connections get no broadcasts")
}

func TestChatUseCase_UserJoinRejected(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	sink := tc.join(t, "sa", "A")
	sink.reset()

	err := tc.send("sa", domain.UserJoin, "A again")
	assert.ErrorIs(t, err, domain.ErrDuplicateSession)

	tc.connect("sb")
	assert.ErrorIs(t, tc.send("sb", domain.UserJoin, ""), domain.ErrInvalidUsername)
	assert.ErrorIs(t, tc.send("sb", domain.UserJoin, strings.Repeat("x", MaxUsernameLength+1)), domain.ErrInvalidUsername)
	assert.NoError(t, tc.send("sb", domain.UserJoin, strings.Repeat("é", MaxUsernameLength)))

	errs := sink.named(domain.ErrorEvt)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.UserJoin, decodeData[domain.ErrorPayload](t, errs[0]).Event)
}

func TestChatUseCase_UnknownSession(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	sink := tc.connect("anon")

	for _, ev := range []domain.Event{domain.JoinRoom, domain.SendMessage, domain.Typing, domain.MarkAsRead, domain.GetMessages, domain.SearchMessages} {
		err := tc.send("anon", ev, map[string]interface{}{"room": "dev", "roomName": "dev", "message": "x", "messageId": 1})
		assert.ErrorIs(t, err, domain.ErrUnknownSession, ev)
	}

	errs := sink.named(domain.ErrorEvt)
	require.Len(t, errs, 6)
	first := decodeData[domain.ErrorPayload](t, errs[0])
	assert.Equal(t, domain.JoinRoom, first.Event)
	assert.Contains(t, first.Message, domain.ErrUnknownSession.Error())
	assert.Equal(t, 0, tc.messages.Len("dev"))
}

func TestChatUseCase_UnknownEventAndBadPayload(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	sink := tc.join(t, "sa", "A")
	sink.reset()

	err := tc.chat.Handle(context.Background(), "sa", domain.Envelope{Event: "dance"})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	err = tc.chat.Handle(context.Background(), "sa", domain.Envelope{Event: domain.SendMessage, Data: []byte(`42`)})
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	err = tc.send("sa", domain.AddReaction, domain.ReactionRequest{MessageID: 1})
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	assert.Len(t, sink.named(domain.ErrorEvt), 3)
	assert.Empty(t, sink.named(domain.ReceiveMessage))
}

func TestChatUseCase_MessageTooLong(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")

	err := tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: strings.Repeat("a", 5001)})
	assert.ErrorIs(t, err, domain.ErrMessageTooLong)
	assert.Equal(t, 0, tc.messages.Len(domain.GlobalRoom))

	assert.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: ""}))
	assert.Equal(t, 1, tc.messages.Len(domain.GlobalRoom))
}

func TestChatUseCase_SendFile(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	a.reset()
	b.reset()

	err := tc.send("sa", domain.SendFile, domain.SendFileRequest{FileData: "AAAA"})
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	err = tc.send("sa", domain.SendFile, domain.SendFileRequest{FileName: "big.bin", FileData: strings.Repeat("A", 1025)})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	require.NoError(t, tc.send("sa", domain.SendFile, domain.SendFileRequest{
		Message:  "look",
		FileName: "cat.png",
		FileType: "image/png",
		FileData: "iVBORw0KGgo=",
	}))

	got := b.named(domain.ReceiveMessage)
	require.Len(t, got, 1)
	msg := decodeData[domain.Message](t, got[0])
	assert.Equal(t, domain.MessageTypeFile, msg.Type)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "cat.png", msg.Attachment.Name)
	assert.Equal(t, "image/png", msg.Attachment.MediaType)

	acks := a.named(domain.MessageDelivered)
	require.Len(t, acks, 1)
	assert.Equal(t, msg.ID, decodeData[domain.DeliveredPayload](t, acks[0]).MessageID)
	assert.Empty(t, b.named(domain.MessageDelivered))
}

func TestChatUseCase_JoinThenLeaveRestoresMembers(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	before := tc.sessions.MembersOf("dev")
	b.reset()

	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sa", domain.LeaveRoom, "dev"))

	assert.ElementsMatch(t, before, tc.sessions.MembersOf("dev"))
	assert.Len(t, b.named(domain.UserJoinedRoom), 1)
	left := b.named(domain.UserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, domain.RoomPayload{Username: "A", Room: "dev"}, decodeData[domain.RoomPayload](t, left[0]))
}

func TestChatUseCase_TypingUsesSessionUsername(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	b.reset()

	require.NoError(t, tc.send("sa", domain.Typing, domain.TypingRequest{Username: "mallory", Room: "dev"}))

	got := b.named(domain.Typing)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypingPayload{Username: "A", Room: "dev"}, decodeData[domain.TypingPayload](t, got[0]))
	assert.Equal(t, []string{"A"}, tc.typing.TypingUsernames("dev"))

	require.NoError(t, tc.send("sa", domain.StopTyping, domain.TypingRequest{Room: "dev"}))
	assert.Len(t, b.named(domain.StopTyping), 1)
	assert.Empty(t, tc.typing.TypingUsernames("dev"))
}

func TestChatUseCase_TypingExpires(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sa", domain.Typing, domain.TypingRequest{Room: "dev"}))
	b.reset()

	tc.advance(5 * time.Second)
	assert.Equal(t, 0, tc.chat.SweepTyping(*tc.clock))

	tc.advance(4 * time.Second)
	assert.Equal(t, 1, tc.chat.SweepTyping(*tc.clock))

	stops := b.named(domain.StopTyping)
	require.Len(t, stops, 1)
	assert.Equal(t, "A", decodeData[domain.TypingPayload](t, stops[0]).Username)
	assert.Equal(t, 0, tc.chat.SweepTyping(*tc.clock))
}

func TestChatUseCase_LeaveRoomClearsTyping(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sa", domain.Typing, domain.TypingRequest{Room: "dev"}))
	b.reset()

	require.NoError(t, tc.send("sa", domain.LeaveRoom, "dev"))

	assert.Len(t, b.named(domain.StopTyping), 1)
	assert.Empty(t, tc.typing.TypingUsernames("dev"))
}

func TestChatUseCase_Disconnect(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	b := tc.join(t, "sb", "B")
	for _, room := range []string{"dev", "ops"} {
		require.NoError(t, tc.send("sa", domain.JoinRoom, room))
	}
	require.NoError(t, tc.send("sb", domain.JoinRoom, "dev"))
	require.NoError(t, tc.send("sa", domain.Typing, domain.TypingRequest{Room: "dev"}))
	a.reset()
	b.reset()

	tc.chat.Disconnect("sa")

	leftRoom := b.named(domain.UserLeftRoom)
	require.Len(t, leftRoom, 1, "B only shares dev with A")
	assert.Equal(t, "dev", decodeData[domain.RoomPayload](t, leftRoom[0]).Room)
	left := b.named(domain.UserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "A", decodeData[domain.UserPayload](t, left[0]).Username)
	assert.Len(t, b.named(domain.StopTyping), 1)

	assert.Equal(t, []string{"sb"}, tc.sessions.MembersOf("dev"))
	assert.Empty(t, tc.sessions.MembersOf("ops"))
	assert.Empty(t, tc.typing.TypingUsernames("dev"))

	require.NoError(t, tc.send("sb", domain.SendMessage, domain.SendMessageRequest{Message: "bye", Room: "dev"}))
	assert.Empty(t, a.all(), "no broadcast targets a disconnected session")

	b.reset()
	tc.chat.Disconnect("sa")
	tc.chat.Disconnect("never-seen")
	assert.Empty(t, b.all())
}

func TestChatUseCase_ReactionsAndReads(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	tc.join(t, "sb", "B")
	for _, id := range []string{"sa", "sb"} {
		require.NoError(t, tc.send(id, domain.JoinRoom, "dev"))
	}
	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "ship it", Room: "dev"}))
	msg := decodeData[domain.Message](t, a.named(domain.ReceiveMessage)[0])
	a.reset()

	req := domain.ReactionRequest{MessageID: domain.MessageID(msg.ID), Reaction: "👍", Room: "dev"}
	require.NoError(t, tc.send("sb", domain.AddReaction, req))
	require.NoError(t, tc.send("sb", domain.AddReaction, req))
	assert.Equal(t, []string{"B"}, tc.reactions.ReactionUsers(msg.ID, "👍"))

	added := a.named(domain.ReactionAdded)
	require.Len(t, added, 2)
	assert.Equal(t, domain.ReactionPayload{MessageID: msg.ID, Reaction: "👍", Username: "B"}, decodeData[domain.ReactionPayload](t, added[0]))

	require.NoError(t, tc.send("sb", domain.RemoveReaction, req))
	assert.Empty(t, tc.reactions.Reactions(msg.ID))
	assert.Len(t, a.named(domain.ReactionRemoved), 1)

	require.NoError(t, tc.send("sb", domain.MarkAsRead, domain.ReadRequest{MessageID: domain.MessageID(msg.ID), Room: "dev"}))
	assert.Equal(t, []string{"B"}, tc.reactions.Readers(msg.ID))
	reads := a.named(domain.MessageRead)
	require.Len(t, reads, 1)
	assert.Equal(t, domain.ReadPayload{MessageID: msg.ID, Username: "B"}, decodeData[domain.ReadPayload](t, reads[0]))
}

func TestChatUseCase_EvictionForgetsLedgers(t *testing.T) {
	tc := newTestChat(t, 3, nil)
	a := tc.join(t, "sa", "A")

	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "first"}))
	first := decodeData[domain.Message](t, a.named(domain.ReceiveMessage)[0])
	require.NoError(t, tc.send("sa", domain.AddReaction, domain.ReactionRequest{MessageID: domain.MessageID(first.ID), Reaction: "🔥"}))
	require.NoError(t, tc.send("sa", domain.MarkAsRead, domain.ReadRequest{MessageID: domain.MessageID(first.ID)}))
	require.NotEmpty(t, tc.reactions.Reactions(first.ID))

	for i := 0; i < 3; i++ {
		require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "more"}))
	}

	assert.Equal(t, 3, tc.messages.Len(domain.GlobalRoom))
	assert.Empty(t, tc.reactions.Reactions(first.ID))
	assert.Empty(t, tc.reactions.Readers(first.ID))

	tail := tc.messages.Tail(domain.GlobalRoom, 3)
	require.Len(t, tail, 3)
	assert.NotEqual(t, first.ID, tail[0].ID)
}

func TestChatUseCase_UniqueIDsUnderBurst(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")

	for i := 0; i < 50; i++ {
		require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "burst"}))
	}

	seen := map[int64]bool{}
	var last int64
	for _, env := range a.named(domain.ReceiveMessage) {
		id := decodeData[domain.Message](t, env).ID
		assert.False(t, seen[id])
		assert.Greater(t, id, last)
		seen[id], last = true, id
	}
	assert.Len(t, seen, 50)
}

func TestChatUseCase_GetMessagesAndSearch(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	a := tc.join(t, "sa", "A")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))
	for _, body := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: body, Room: "dev"}))
	}
	a.reset()

	require.NoError(t, tc.send("sa", domain.GetMessages, map[string]interface{}{"room": "dev", "limit": 2}))
	pages := a.named(domain.MessagesPageEvt)
	require.Len(t, pages, 1)
	page := decodeData[domain.MessagesPage](t, pages[0])
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "gamma", page.Messages[0].Body)
	assert.True(t, page.HasMore)

	require.NoError(t, tc.send("sa", domain.SearchMessages, domain.SearchRequest{Query: "A", Room: "dev"}))
	results := a.named(domain.SearchResultsEvt)
	require.Len(t, results, 1)
	assert.Len(t, decodeData[domain.SearchResults](t, results[0]).Results, 3, "sender A matches every message")
}

func TestChatUseCase_MirrorPublishes(t *testing.T) {
	pub := new(mockEventPublisher)
	pub.On("Publish", mock.Anything, "chat:room:dev", mock.AnythingOfType("domain.Message")).Return(nil).Once()
	pub.On("Publish", mock.Anything, "chat:room:global", mock.AnythingOfType("domain.Message")).Return(errors.New("redis down")).Once()

	tc := newTestChat(t, 100, pub)
	a := tc.join(t, "sa", "A")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))

	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "to dev", Room: "dev"}))
	require.NoError(t, tc.send("sa", domain.SendMessage, domain.SendMessageRequest{Message: "to all"}))

	pub.AssertExpectations(t)
	assert.Len(t, a.named(domain.ReceiveMessage), 2, "mirror failure does not block delivery")
}

func TestChatUseCase_Stats(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	tc.join(t, "sa", "A")
	tc.connect("anon")
	require.NoError(t, tc.send("sa", domain.JoinRoom, "dev"))

	assert.Equal(t, map[string]int{"connections": 2, "sessions": 1, "rooms": 1}, tc.chat.Stats())
}

func TestChatUseCase_RunTypingSweeperStops(t *testing.T) {
	tc := newTestChat(t, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		tc.chat.RunTypingSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
