package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/http/handlers"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/middleware"
	"github.com/likefeed/backend/internal/rbac"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	m *metrics.Metrics,
	rpcHandler *handlers.RPCHandler,
	contentHandler *handlers.ContentHandler,
	likeHandler *handlers.LikeHandler,
	walletHandler *handlers.WalletHandler,
	rewardHandler *handlers.RewardHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log, m))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "ws_clients": wsHub.Clients()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	authMw := middleware.AuthMiddleware(cfg, log)
	limitMw := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)

	// Function-call gateway; permission is checked per decoded operation.
	app.Post("/llm/execute", authMw, limitMw, rpcHandler.Execute)

	api := app.Group("/api/v1", authMw, limitMw)
	api.Post("/rpc", rpcHandler.Execute)

	// Content
	read := middleware.RequirePermission(rbac.PermReadContent)
	write := middleware.RequirePermission(rbac.PermWriteContent)
	api.Post("/posts", write, contentHandler.CreatePost)
	api.Get("/posts", read, contentHandler.ListPosts)
	api.Post("/comments", write, contentHandler.CreateComment)
	api.Get("/comments", read, contentHandler.ListComments)
	api.Get("/content", read, contentHandler.ListContent)

	// Rewards
	api.Post("/likes", middleware.RequirePermission(rbac.PermLike), likeHandler.Like)
	api.Post("/transfers", middleware.RequirePermission(rbac.PermTransfer), likeHandler.Transfer)
	api.Get("/rewards/:id", read, rewardHandler.GetAttempt)
	api.Get("/audit/:entityType/:entityId", middleware.RequirePermission(rbac.PermReadAudit), rewardHandler.GetAudit)

	// Wallets
	api.Put("/wallets", middleware.RequirePermission(rbac.PermRegisterWallet), walletHandler.Register)

	// WebSocket reward feed
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
