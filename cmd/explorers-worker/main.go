package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spaceexplorers/internal/config"
	"spaceexplorers/internal/db"
	"spaceexplorers/internal/events"
	"spaceexplorers/internal/game"
	"spaceexplorers/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL,
		db.WithApplicationName("explorers-worker"),
		db.WithMaxConns(cfg.SweepConcurrency+2),
	)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	var opts []game.Option
	if cfg.RedisAddr != "" {
		bus, err := events.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			logger.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer bus.Close()
		opts = append(opts, game.WithPublisher(bus))
	}
	svc := game.NewService(store.NewPostgres(pool, logger), logger, opts...)

	if cfg.RunOnce {
		if err := sweep(ctx, svc, cfg.SweepConcurrency, logger); err != nil {
			logger.Error("sweep failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String(), "concurrency", cfg.SweepConcurrency)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := sweep(ctx, svc, cfg.SweepConcurrency, logger); err != nil {
				logger.Error("achievement sweep failed", "err", err)
			}
		}
	}
}

func sweep(ctx context.Context, svc *game.Service, concurrency int, logger *slog.Logger) error {
	start := time.Now()
	users, granted, err := svc.SweepAchievements(ctx, concurrency)
	if err != nil {
		return err
	}
	logger.Info("achievement sweep complete", "users", users, "granted", granted, "took", time.Since(start).String())
	return nil
}
