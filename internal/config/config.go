package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

// Config holds every setting read from the environment.
type Config struct {
	Port        string
	AppEnv      string
	LogLevel    string
	LogFormat   string
	DatabaseURL string
	RedisURL    string

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	HashCost                int
	FirebaseCredentialsPath string
	PriceCacheTTL           time.Duration

	WorkerInterval    time.Duration
	WorkerMetricsPort string
	CancelRetryDelay  time.Duration
	CancelMaxAttempts int
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		AppEnv:                  getEnv("APP_ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                os.Getenv("REDIS_URL"),
		GatewayBaseURL:          getEnv("GATEWAY_BASE_URL", "https://sandbox.asaas.com/api/v3"),
		GatewayAPIKey:           os.Getenv("GATEWAY_API_KEY"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		WorkerMetricsPort:       getEnv("WORKER_METRICS_PORT", "9091"),
	}

	var err error
	if cfg.GatewayTimeout, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PriceCacheTTL, err = getDuration("PRICE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WorkerInterval, err = getDuration("WORKER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CancelRetryDelay, err = getDuration("CANCEL_RETRY_DELAY", time.Minute); err != nil {
		return nil, err
	}
	if cfg.HashCost, err = getInt("HASH_COST", 12); err != nil {
		return nil, err
	}
	if cfg.CancelMaxAttempts, err = getInt("CANCEL_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.GatewayAPIKey == "" {
		missing = append(missing, "GATEWAY_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// GormLogLevel keeps SQL logging quiet outside development.
func (c *Config) GormLogLevel() logger.LogLevel {
	if c.IsProduction() {
		return logger.Error
	}
	if strings.EqualFold(c.LogLevel, "debug") {
		return logger.Info
	}
	return logger.Warn
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return n, nil
}
