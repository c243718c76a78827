package router

import (
	"fmt"
	"strconv"

	"chat_relay_service/internal/chat/app"
	"chat_relay_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck liveness
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service running")
}

// DebugLogFlag toggle debug log flag, POST /debug?status=true
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.Info("debug", zap.Bool("status", status))
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// Stats live connection, session and room counters
func Stats(chat *app.ChatUseCase) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(chat.Stats())
	}
}
