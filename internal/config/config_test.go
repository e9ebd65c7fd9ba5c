package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("EXPLORERS_JWT_SECRET", "secret")

	_, err := LoadAPIFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadAPIFromEnvNeedsSomeAuth(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/explorers")
	t.Setenv("EXPLORERS_JWT_SECRET", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")

	_, err := LoadAPIFromEnv()
	require.Error(t, err)
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/explorers")
	t.Setenv("EXPLORERS_JWT_SECRET", "secret")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("PORT", "9090")
	t.Setenv("EXPLORERS_EVALUATION_TIMEOUT", "not-a-duration")
	t.Setenv("EXPLORERS_RATE_LIMIT_BURST", "")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.EvaluationTimeout)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.True(t, cfg.StartupMigrate)
	assert.Equal(t, "explorers-events", cfg.RedisChannel)
}

func TestLoadAPIFromEnvSupabasePair(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/explorers")
	t.Setenv("EXPLORERS_JWT_SECRET", "secret")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "")

	_, err := LoadAPIFromEnv()
	require.Error(t, err)
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/explorers")
	t.Setenv("EXPLORERS_SWEEP_EVERY", "30s")
	t.Setenv("EXPLORERS_SWEEP_CONCURRENCY", "0")
	t.Setenv("EXPLORERS_WORKER_RUN_ONCE", "true")

	cfg, err := LoadWorkerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SweepEvery)
	assert.Equal(t, 1, cfg.SweepConcurrency)
	assert.True(t, cfg.RunOnce)
}

func TestLoadCLIFromEnvTrimsSlash(t *testing.T) {
	t.Setenv("XPL_API_BASE_URL", "https://api.example.com/")
	assert.Equal(t, "https://api.example.com", LoadCLIFromEnv().APIBaseURL)
}
