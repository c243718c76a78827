package router

import (
	"chat_relay_service/internal/chat/app"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 chat service 路由
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, chat *app.ChatUseCase) {
	r.Get("/", ConnectCheck)
	r.Post("/debug", DebugLogFlag)
	r.Get("/stats", Stats(chat))

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws", websocket.New(chatWebsocket.HandleConnection))
}
