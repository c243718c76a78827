package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_relay_service/internal/chat/app"
	"chat_relay_service/internal/chat/repository"
	"chat_relay_service/internal/chat/router"
	"chat_relay_service/pkg/config"
	"chat_relay_service/pkg/database"
	errprocess "chat_relay_service/pkg/err"
	"chat_relay_service/pkg/logger"
	testtool "chat_relay_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	env := config.Env()
	logger.Log = logger.Initialize(env.ChatService, env.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig(env.ChatService, env.ChatServiceYAMLPath, config.DefaultChat())
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	if env.ChatServicePort != "" {
		cfg.Port = env.ChatServicePort
	}
	logger.Log.SetDebugMode(env.IsLocal())
	testtool.StartPprof(cfg.Pprof, env.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 選用 Redis 事件鏡像
	var mirror repository.EventPublisher
	if cfg.Redis.Enabled {
		redisClient, err := newRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Log.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		mirror = repository.NewRedisPubSub(redisClient)
	}

	// 2. 初始化 Repository
	sessions := repository.NewSessionRepository()
	messages := repository.NewMessageRepository(cfg.History.MaxMessages)
	typing := repository.NewTypingRepository(cfg.Typing.TTL, time.Now)
	reactions := repository.NewReactionRepository()

	// 3. 初始化 UseCases
	hub := app.NewHub(sessions)
	query := app.NewQueryUseCase(messages, cfg.History.DefaultPageSize, cfg.History.MaxPageSize)
	chat := app.NewChatUseCase(sessions, messages, typing, reactions, hub, query, mirror, app.ChatOptions{
		MaxBodyLength: cfg.History.MaxBodyLength,
		MaxFileBytes:  cfg.History.MaxFileBytes,
		MirrorPrefix:  cfg.Redis.ChannelPrefix,
	})
	go chat.RunTypingSweeper(ctx, cfg.Typing.SweepInterval)

	// 4. 啟動 Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	r.Use(recover.New())
	r.Use(fiber_log.New())
	router.RegisterRoutes(r, app.NewChatWebsocketHandler(chat, cfg.Connection), chat)

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down chat service")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Errorf("shutdown:", err)
		}
	}()

	port := ":" + cfg.Port
	logger.Log.Info(fmt.Sprintf("Chat Service listening on %s", port))
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

func newRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	conn := database.RedisConnection{
		Addr:          c.Addr,
		MasterName:    c.MasterName,
		SentinelAddrs: c.SentinelAddrs,
		DB:            c.RedisDB,
		Connection:    database.Connection{RetryCount: 3, RetryInterval: time.Second},
	}
	if len(conn.SentinelAddrs) == 0 && conn.Addr == "" {
		conn.MasterName, conn.SentinelAddrs = config.RedisSentinelFromEnv()
	}
	if conn.Addr == "" && len(conn.SentinelAddrs) == 0 {
		return nil, errprocess.Set("redis enabled but neither addr nor sentinel configured")
	}
	rdb, err := database.NewRedisClient(ctx, conn)
	if err != nil {
		return nil, errprocess.Wrap(err, "redis connect", zap.String("addr", conn.Addr), zap.Strings("sentinels", conn.SentinelAddrs))
	}
	return rdb, nil
}
