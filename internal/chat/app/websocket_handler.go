package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat_relay_service/internal/chat/domain"
	"chat_relay_service/pkg/config"
	"chat_relay_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChatWebsocketHandler one worker per websocket connection
type ChatWebsocketHandler struct {
	chat *ChatUseCase
	cfg  config.ConnectionConfig
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(chat *ChatUseCase, cfg config.ConnectionConfig) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{chat: chat, cfg: cfg}
}

// HandleConnection 是 WebSocket 連線的進入點, returns after the write pump has stopped
func (h *ChatWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	sessionID := uuid.New().String()
	client := newWSClient(sessionID, conn, h.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.chat.Connect(sessionID, client)
	go client.writePump()

	logger.Log.Info("websocket open", zap.String("sessionID", sessionID), zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		cancel()
		h.chat.Disconnect(sessionID)
		client.close()
		client.wait()
		_ = conn.Close()
		logger.Log.Info("websocket close", zap.String("sessionID", sessionID))
	}()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}
	if h.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		//server發出ping之後client連線正常會回pong
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	limiter := newLimiter(h.cfg)
	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("sessionID", sessionID), zap.Error(err))
			} else {
				//直接斷線 1006, read limit, deadline
				logger.Log.Warn("websocket read error", zap.String("sessionID", sessionID), zap.Error(err))
			}
			return
		}
		if h.cfg.PongWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		}
		h.execWebsocketAction(ctx, sessionID, limiter, mt, message)
	}
}

func (h *ChatWebsocketHandler) execWebsocketAction(ctx context.Context, sessionID string, limiter *rate.Limiter, mt int, msg []byte) {
	if mt != websocket.TextMessage {
		h.chat.ReplyError(sessionID, "", fmt.Errorf("text frames only: %w", domain.ErrBadPayload))
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
		h.chat.ReplyError(sessionID, "", fmt.Errorf("expected {\"event\",\"data\"}: %w", domain.ErrBadPayload))
		return
	}

	if limiter != nil && !limiter.Allow() {
		h.chat.ReplyError(sessionID, env.Event, domain.ErrRateLimited)
		logger.Log.Debug("rate limited", zap.String("sessionID", sessionID), zap.String("event", string(env.Event)))
		return
	}

	if err := h.chat.Handle(ctx, sessionID, env); err != nil {
		level := logger.Log.Warn
		if errors.Is(err, domain.ErrUnknownSession) || errors.Is(err, domain.ErrBadPayload) {
			level = logger.Log.Debug
		}
		level("websocket event rejected", zap.String("sessionID", sessionID), zap.String("event", string(env.Event)), zap.Error(err))
	}
}

func newLimiter(cfg config.ConnectionConfig) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

// wsConn write side of a websocket connection
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient Sink backed by a buffered queue and a single writer goroutine
type wsClient struct {
	id   string
	conn wsConn

	mu     sync.RWMutex
	closed bool
	send   chan domain.Envelope
	done   chan struct{}

	writeWait    time.Duration
	pingInterval time.Duration
}

func newWSClient(id string, conn wsConn, cfg config.ConnectionConfig) *wsClient {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &wsClient{
		id:           id,
		conn:         conn,
		send:         make(chan domain.Envelope, size),
		done:         make(chan struct{}),
		writeWait:    cfg.WriteWait,
		pingInterval: cfg.PingInterval,
	}
}

// Send 不阻塞, queue 滿了就丟
func (c *wsClient) Send(env domain.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) wait() {
	<-c.done
}

func (c *wsClient) writePump() {
	defer close(c.done)

	var tick <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				c.setWriteDeadline()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(env); err != nil {
				logger.Log.Debug("write message error", zap.String("sessionID", c.id), zap.Error(err))
				// unblocks the read loop, which then runs Disconnect
				_ = c.conn.Close()
				c.close()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.deadline())); err != nil {
				logger.Log.Debug("ping error", zap.String("sessionID", c.id), zap.Error(err))
				_ = c.conn.Close()
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) write(env domain.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.setWriteDeadline()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsClient) setWriteDeadline() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.deadline()))
}

func (c *wsClient) deadline() time.Duration {
	if c.writeWait > 0 {
		return c.writeWait
	}
	return 10 * time.Second
}
