package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	Debug       bool // Append underlying errors to internal error messages
	DatabaseUrl string

	// Redis enables the distributed per-key lock. Empty selects the
	// in-process lock, which is only correct with a single instance.
	RedisURL string
	LockTTL  time.Duration
	LockWait time.Duration

	// Bound on every billing, store and engine call
	ExternalCallTimeout time.Duration

	// CoffeeHouse engine
	EngineProvider       string // "http" or "mock"
	EngineURL            string
	EngineAPIKey         string
	EngineMaxRetries     int
	EngineRetryBaseDelay time.Duration

	// Renewal charges
	BillingProvider string // "stripe" or "none"
	StripeSecretKey string

	MaxImageBytes int64

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string

	// Per-IP request rate limit, independent of plan quotas
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		Debug:    getEnvBool("DEBUG", false),

		RedisURL: getEnv("REDIS_URL", ""),
		LockTTL:  getEnvDuration("LOCK_TTL", 30*time.Second),
		LockWait: getEnvDuration("LOCK_WAIT", 10*time.Second),

		ExternalCallTimeout: getEnvDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second),

		// Engine defaults to the in-process mock for development
		EngineProvider:       getEnv("ENGINE_PROVIDER", "mock"),
		EngineURL:            getEnv("ENGINE_URL", ""),
		EngineAPIKey:         getEnv("ENGINE_API_KEY", ""),
		EngineMaxRetries:     getEnvInt("ENGINE_MAX_RETRIES", 3),
		EngineRetryBaseDelay: getEnvDuration("ENGINE_RETRY_BASE_DELAY", 200*time.Millisecond),

		BillingProvider: getEnv("BILLING_PROVIDER", "none"),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),

		MaxImageBytes: int64(getEnvInt("MAX_IMAGE_BYTES", 8<<20)),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.EngineProvider {
	case "http":
		if cfg.EngineURL == "" {
			return fmt.Errorf("ENGINE_URL is required when ENGINE_PROVIDER is 'http'")
		}
		u, err := url.Parse(cfg.EngineURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ENGINE_URL must be an absolute http(s) URL, got: %s", cfg.EngineURL)
		}
	case "mock":
	default:
		return fmt.Errorf("ENGINE_PROVIDER must be either 'http' or 'mock', got: %s", cfg.EngineProvider)
	}

	switch cfg.BillingProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when BILLING_PROVIDER is 'stripe'")
		}
	case "none":
	default:
		return fmt.Errorf("BILLING_PROVIDER must be either 'stripe' or 'none', got: %s", cfg.BillingProvider)
	}

	if cfg.LockWait <= 0 {
		return fmt.Errorf("LOCK_WAIT must be positive, got: %s", cfg.LockWait)
	}
	if cfg.LockTTL <= cfg.ExternalCallTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed EXTERNAL_CALL_TIMEOUT (%s)", cfg.LockTTL, cfg.ExternalCallTimeout)
	}
	if cfg.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive, got: %d", cfg.MaxImageBytes)
	}
	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
