package domain

import (
	"sync/atomic"
	"time"
)

// GlobalRoom is the implicit room used when an event carries no room
const GlobalRoom = "global"

// MessageType definition message kind
type MessageType string

const (
	// MessageTypeText plain text message
	MessageTypeText MessageType = "text"
	// MessageTypeFile message carrying an attachment
	MessageTypeFile MessageType = "file"
)

// Attachment 檔案訊息內容
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"type"`
	Payload   string `json:"data"`
}

// Message 表示一則聊天訊息, 建立後不再修改
type Message struct {
	ID         int64       `json:"id"`
	Sender     string      `json:"sender"`
	Body       string      `json:"message"`
	Room       string      `json:"room"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageType `json:"type"`
	Attachment *Attachment `json:"file,omitempty"`
}

// NormalizeRoom maps a missing room to GlobalRoom
func NormalizeRoom(room string) string {
	if room == "" {
		return GlobalRoom
	}
	return room
}

// IDGenerator hands out message ids that are millisecond timestamps when the
// clock allows it and strictly increasing always.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDGenerator create IDGenerator, now defaults to time.Now
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns max(now in ms, previous+1)
func (g *IDGenerator) Next() int64 {
	for {
		prev := g.last.Load()
		next := g.now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if g.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
