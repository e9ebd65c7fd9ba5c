package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type poolSettings struct {
	appName  string
	maxConns int32
	minConns int32
}

type PoolOption func(*poolSettings)

// WithApplicationName tags connections in pg_stat_activity.
func WithApplicationName(name string) PoolOption {
	return func(s *poolSettings) { s.appName = name }
}

func WithMaxConns(n int) PoolOption {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxConns = int32(n)
		}
	}
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	settings := poolSettings{appName: "space-explorers", maxConns: 20, minConns: 2}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.minConns > settings.maxConns {
		settings.minConns = settings.maxConns
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = settings.maxConns
	cfg.MinConns = settings.minConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute
	if settings.appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = settings.appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}
