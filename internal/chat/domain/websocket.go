package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Event websocket event name
type Event string

// inbound, client -> server
const (
	// UserJoin identify the connection with a username
	UserJoin Event = "user_join"
	// JoinRoom websocket event join_room
	JoinRoom Event = "join_room"
	// LeaveRoom websocket event leave_room
	LeaveRoom Event = "leave_room"
	// SendMessage websocket event send_message
	SendMessage Event = "send_message"
	// SendFile websocket event send_file
	SendFile Event = "send_file"
	// Typing websocket event typing, also re-broadcast under the same name
	Typing Event = "typing"
	// StopTyping websocket event stop_typing, also re-broadcast under the same name
	StopTyping Event = "stop_typing"
	// AddReaction websocket event add_reaction
	AddReaction Event = "add_reaction"
	// RemoveReaction websocket event remove_reaction
	RemoveReaction Event = "remove_reaction"
	// MarkAsRead websocket event mark_as_read
	MarkAsRead Event = "mark_as_read"
	// GetMessages websocket event get_messages
	GetMessages Event = "get_messages"
	// SearchMessages websocket event search_messages
	SearchMessages Event = "search_messages"
)

// outbound, server -> client
const (
	UserJoined       Event = "user_joined"
	UserLeft         Event = "user_left"
	UserJoinedRoom   Event = "user_joined_room"
	UserLeftRoom     Event = "user_left_room"
	ReceiveMessage   Event = "receive_message"
	ReactionAdded    Event = "reaction_added"
	ReactionRemoved  Event = "reaction_removed"
	MessageRead      Event = "message_read"
	MessageDelivered Event = "message_delivered"
	MessagesPageEvt  Event = "messages_page"
	SearchResultsEvt Event = "search_results"
	ErrorEvt         Event = "error"
)

// Envelope one websocket text frame: {"event": "...", "data": ...}
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an Envelope
func NewEnvelope(event Event, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// MessageID accepts both 1700000000000 and "1700000000000" on the wire
type MessageID int64

// UnmarshalJSON decode number or quoted number
func (id *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("messageId: %w", err)
	}
	*id = MessageID(n)
	return nil
}

// NameRequest payload of user_join / join_room / leave_room.
// The bare string form ("alice") and the object form are both accepted.
type NameRequest struct {
	Username string `json:"username"`
	RoomName string `json:"roomName"`
}

// Value returns whichever field was set
func (r NameRequest) Value() string {
	if r.Username != "" {
		return r.Username
	}
	return r.RoomName
}

// UnmarshalJSON decode string or object
func (r *NameRequest) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.Username, r.RoomName = s, s
		return nil
	}
	type plain NameRequest
	return json.Unmarshal(b, (*plain)(r))
}

// SendMessageRequest payload of send_message
type SendMessageRequest struct {
	Message string `json:"message"`
	Room    string `json:"room"`
}

// SendFileRequest payload of send_file
type SendFileRequest struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileData string `json:"fileData"`
	Room     string `json:"room"`
}

// TypingRequest payload of typing / stop_typing
type TypingRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ReactionRequest payload of add_reaction / remove_reaction
type ReactionRequest struct {
	MessageID MessageID `json:"messageId"`
	Reaction  string    `json:"reaction"`
	Room      string    `json:"room"`
}

// ReadRequest payload of mark_as_read
type ReadRequest struct {
	MessageID MessageID `json:"messageId"`
	Room      string    `json:"room"`
}

// GetMessagesRequest payload of get_messages, nil means default
type GetMessagesRequest struct {
	Room   string `json:"room"`
	Offset *int   `json:"offset"`
	Limit  *int   `json:"limit"`
}

// SearchRequest payload of search_messages
type SearchRequest struct {
	Query string `json:"query"`
	Room  string `json:"room"`
}

// UserPayload user_joined / user_left
type UserPayload struct {
	Username string `json:"username"`
}

// RoomPayload user_joined_room / user_left_room
type RoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// TypingPayload typing / stop_typing
type TypingPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ReactionPayload reaction_added / reaction_removed
type ReactionPayload struct {
	MessageID int64  `json:"messageId"`
	Reaction  string `json:"reaction"`
	Username  string `json:"username"`
}

// ReadPayload message_read
type ReadPayload struct {
	MessageID int64  `json:"messageId"`
	Username  string `json:"username"`
}

// DeliveredPayload message_delivered
type DeliveredPayload struct {
	MessageID int64 `json:"messageId"`
}

// MessagesPage messages_page reply
type MessagesPage struct {
	Messages []Message `json:"messages"`
	Room     string    `json:"room"`
	HasMore  bool      `json:"hasMore"`
}

// SearchResults search_results reply
type SearchResults struct {
	Results []Message `json:"results"`
	Room    string    `json:"room"`
}

// ErrorPayload error reply to the sender
type ErrorPayload struct {
	Event   Event  `json:"event,omitempty"`
	Message string `json:"message"`
}
