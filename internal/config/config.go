package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr               string
	DatabaseURL        string
	SupabaseURL        string
	SupabaseAnonKey    string
	JWTSecret          string
	StartupMigrate     bool
	StartupSeedCatalog bool
	EvaluationTimeout  time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	RedisAddr          string
	RedisChannel       string
}

type WorkerConfig struct {
	DatabaseURL      string
	SweepEvery       time.Duration
	SweepConcurrency int
	RunOnce          bool
	RedisAddr        string
	RedisChannel     string
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadDotEnv reads a .env file from the working directory when one exists.
// Variables already present in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("EXPLORERS_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:               addr,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey:    strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		JWTSecret:          strings.TrimSpace(os.Getenv("EXPLORERS_JWT_SECRET")),
		StartupMigrate:     envBoolDefault("EXPLORERS_STARTUP_MIGRATE", true),
		StartupSeedCatalog: envBoolDefault("EXPLORERS_STARTUP_SEED_CATALOG", true),
		EvaluationTimeout:  envDurationDefault("EXPLORERS_EVALUATION_TIMEOUT", 10*time.Second),
		RateLimitRPS:       envFloatDefault("EXPLORERS_RATE_LIMIT_RPS", 10),
		RateLimitBurst:     envIntDefault("EXPLORERS_RATE_LIMIT_BURST", 20),
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisChannel:       envDefault("REDIS_CHANNEL", "explorers-events"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		if cfg.SupabaseURL == "" {
			return cfg, fmt.Errorf("SUPABASE_URL is required when EXPLORERS_JWT_SECRET is unset")
		}
		if cfg.SupabaseAnonKey == "" {
			return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required when EXPLORERS_JWT_SECRET is unset")
		}
	}
	if (cfg.SupabaseURL == "") != (cfg.SupabaseAnonKey == "") {
		return cfg, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY must be set together")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return cfg, fmt.Errorf("rate limit rps and burst must be positive")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SweepEvery:       envDurationDefault("EXPLORERS_SWEEP_EVERY", 10*time.Minute),
		SweepConcurrency: envIntDefault("EXPLORERS_SWEEP_CONCURRENCY", 8),
		RunOnce:          envBoolDefault("EXPLORERS_WORKER_RUN_ONCE", false),
		RedisAddr:        strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisChannel:     envDefault("REDIS_CHANNEL", "explorers-events"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 10 * time.Minute
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("XPL_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
