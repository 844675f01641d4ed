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
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/chain"
	"github.com/likefeed/backend/internal/config"
	"github.com/likefeed/backend/internal/db"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/metrics"
	"github.com/likefeed/backend/internal/reconciler"
	"github.com/likefeed/backend/internal/repositories"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	cc := chain.Config{Timeout: cfg.RPCTimeout}
	if cfg.ChainID > 0 {
		cc.ChainID = big.NewInt(cfg.ChainID)
	}
	if cfg.UsesToken() {
		cc.Token = common.HexToAddress(cfg.TokenAddress)
	}
	chainClient, err := chain.Dial(ctx, cfg.RPCURL, cc, log)
	if err != nil {
		log.Fatal("failed to connect to chain", zap.Error(err))
	}
	defer chainClient.Close()

	m := metrics.New()
	rec := reconciler.New(
		repositories.NewRewardRepo(pool),
		chainClient,
		events.NewRedisPublisher(rdb, log),
		m,
		reconciler.Options{
			Interval:     cfg.ReconcileInterval,
			Grace:        cfg.ReconcileGrace,
			AbandonAfter: cfg.ReconcileAbandonAfter,
			BatchSize:    cfg.ReconcileBatchSize,
		},
		log,
	)

	// Metrics and health
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	go func() {
		addr := fmt.Sprintf(":%s", cfg.ReconcilerPort)
		if err := app.Listen(addr); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("reconciler started",
		zap.Duration("interval", cfg.ReconcileInterval),
		zap.Duration("grace", cfg.ReconcileGrace),
		zap.Duration("abandon_after", cfg.ReconcileAbandonAfter),
	)

	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("reconciler stopped", zap.Error(err))
	}
	log.Info("shutting down reconciler")
	_ = app.Shutdown()
}
