package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spaceexplorers/internal/api"
	"spaceexplorers/internal/auth"
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
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if cfg.StartupMigrate {
		if err := migrate(ctx, cfg.DatabaseURL); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.WithApplicationName("explorers-api"))
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	hub := events.NewHub(logger)
	var publisher events.Publisher = hub
	if cfg.RedisAddr != "" {
		bus, err := events.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			logger.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
			logger.Error("redis forwarder failed", "err", err)
			os.Exit(1)
		}
		publisher = bus
		logger.Info("redis event bus enabled", "channel", cfg.RedisChannel)
	}

	gameSvc := game.NewService(store.NewPostgres(pool, logger), logger,
		game.WithPublisher(publisher),
		game.WithEvaluationTimeout(cfg.EvaluationTimeout),
	)
	if cfg.StartupSeedCatalog {
		if err := gameSvc.SeedCatalog(ctx); err != nil {
			logger.Error("seed catalog failed", "err", err)
			os.Exit(1)
		}
	}

	var verifiers auth.Chain
	var accounts *auth.SupabaseClient
	if cfg.JWTSecret != "" {
		verifiers = append(verifiers, auth.NewJWTVerifier(cfg.JWTSecret))
	}
	if cfg.SupabaseURL != "" {
		accounts = auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		verifiers = append(verifiers, accounts)
	}

	server := api.New(cfg, logger, verifiers, accounts, gameSvc, hub)
	server.Limiter().StartCleanup(ctx, 5*time.Minute)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("explorers api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-stopped
	gameSvc.Wait()
	logger.Info("explorers api stopped")
}

func migrate(ctx context.Context, databaseURL string) error {
	sqlDB, err := db.OpenSQL(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.Apply(ctx, sqlDB)
}
