package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/db"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/gateway"
	apphttp "github.com/likefeed/backend/internal/http"
	"github.com/likefeed/backend/internal/http/dto"
	"github.com/likefeed/backend/internal/http/handlers"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/middleware"
	"github.com/likefeed/backend/internal/repositories"
	"github.com/likefeed/backend/internal/secret"
	"github.com/likefeed/backend/internal/services"
	"github.com/likefeed/backend/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.PostgresMaxConns)}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chain
	chainClient, err := dialChain(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to chain", zap.Error(err))
	}
	defer chainClient.Close()

	sealer, err := secret.NewSealer(cfg.WalletSealingKey)
	if err != nil {
		log.Fatal("invalid WALLET_SEALING_KEY", zap.Error(err))
	}

	m := metrics.New()

	// Repositories
	walletRepo := repositories.NewWalletRepo(pool, sealer)
	contentRepo := repositories.NewContentRepo(pool)
	rewardRepo := repositories.NewRewardRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	walletService := services.NewWalletService(walletRepo, auditRepo, publisher, log)
	contentService := services.NewContentService(contentRepo, auditRepo, publisher, log)
	settlementService := services.NewSettlementService(walletService, contentService, rewardRepo, chainClient, auditRepo, publisher, m, cfg, log)
	executor := gateway.NewExecutor(contentService, walletService, settlementService, log)

	// Handlers
	rpcHandler := handlers.NewRPCHandler(executor, log)
	contentHandler := handlers.NewContentHandler(contentService, log)
	likeHandler := handlers.NewLikeHandler(settlementService, log)
	walletHandler := handlers.NewWalletHandler(walletService, log)
	rewardHandler := handlers.NewRewardHandler(rewardRepo, auditRepo, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to reward stream", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 256 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "internal error"
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code, msg = fe.Code, fe.Message
			} else {
				log.Error("unhandled error", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, m, rpcHandler, contentHandler, likeHandler, walletHandler, rewardHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func dialChain(ctx context.Context, cfg *config.Config, log *zap.Logger) (*chain.Client, error) {
	cc := chain.Config{Timeout: cfg.RPCTimeout}
	if cfg.ChainID > 0 {
		cc.ChainID = big.NewInt(cfg.ChainID)
	}
	if cfg.UsesToken() {
		if !common.IsHexAddress(cfg.TokenAddress) {
			return nil, fmt.Errorf("TOKEN_ADDRESS %q is not an address", cfg.TokenAddress)
		}
		cc.Token = common.HexToAddress(cfg.TokenAddress)
	}
	return chain.Dial(ctx, cfg.RPCURL, cc, log)
}
