package infra

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credit ledger backends.
const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	// LogLevel overrides the environment default when it parses as a zerolog level.
	LogLevel             string
	Port                 string
	DatabaseURL          string
	DBMaxConns           int
	DBMinConns           int
	RedisURL             string
	CreditLedger         string
	JWTSecret            string
	GeoIPDBPath          string
	InferenceBaseURL     string
	InferenceAPIKey      string
	InferenceModel       string
	InferenceTimeout     time.Duration
	PollInterval         time.Duration
	FullStrengthAdapters []string
	CORSAllowedOrigins   []string
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	DefaultLocale        string
	// GenerationWait caps POST /v1/generations?wait=true. Kept below the
	// HTTP write timeout.
	GenerationWait time.Duration
	SessionIdleTTL time.Duration
	// AMQPURL enables publishing finished jobs to AMQPQueue.
	AMQPURL   string
	AMQPQueue string
	// AutoMigrate applies embedded schema migrations on startup.
	AutoMigrate bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:           getEnvInt("DB_MIN_CONNS", 1),
		RedisURL:             os.Getenv("REDIS_URL"),
		CreditLedger:         strings.ToLower(getEnv("CREDIT_LEDGER", LedgerPostgres)),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		GeoIPDBPath:          os.Getenv("GEOIP_DB_PATH"),
		InferenceBaseURL:     getEnv("INFERENCE_BASE_URL", "https://api.inference.example.com/v1"),
		InferenceAPIKey:      os.Getenv("INFERENCE_API_KEY"),
		InferenceModel:       getEnv("INFERENCE_MODEL", "sdxl-lora"),
		InferenceTimeout:     time.Second * time.Duration(getEnvInt("INFERENCE_TIMEOUT_SECONDS", 30)),
		PollInterval:         time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 1500)),
		FullStrengthAdapters: splitList(os.Getenv("FULL_STRENGTH_ADAPTERS")),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:        getEnv("DEFAULT_LOCALE", "en"),
		GenerationWait:       time.Second * time.Duration(getEnvInt("GENERATION_WAIT_SECONDS", 25)),
		SessionIdleTTL:       time.Minute * time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 60)),
		AMQPURL:              os.Getenv("AMQP_URL"),
		AMQPQueue:            getEnv("AMQP_QUEUE", "generation_events"),
		AutoMigrate:          getEnvBool("DB_AUTO_MIGRATE", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.CreditLedger {
	case LedgerPostgres:
	case LedgerRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when CREDIT_LEDGER=redis")
		}
	default:
		return nil, fmt.Errorf("unsupported CREDIT_LEDGER %q", cfg.CreditLedger)
	}

	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		cfg.DBMinConns = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.HTTPWriteTimeout > 0 && cfg.GenerationWait >= cfg.HTTPWriteTimeout {
		cfg.GenerationWait = cfg.HTTPWriteTimeout - time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// splitList parses a comma separated list, trimming blanks and duplicates.
func splitList(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
