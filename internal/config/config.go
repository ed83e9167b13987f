// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds the risk oracle server configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Storage. Postgres wins over Redis; with neither, state is in-memory.
	DatabaseURL    string
	RedisURL       string
	RedisPrefix    string
	MigrateOnStart bool

	// AdminAddress, when set, initializes the registry at startup the way a
	// contract deployment records its deployer.
	AdminAddress string

	// Security
	SignatureMaxSkew time.Duration
	CORSOrigins      []string
	RateLimitRPM     int

	// Freshness threshold for the health check
	StaleAfter time.Duration

	// Integrations
	OTLPEndpoint     string
	TraceSampleRatio float64
	KafkaBrokers     []string
	KafkaTopic       string
	WebhookURLs      []string
	WebhookSecret    string
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultRedisPrefix      = "riskoracle"
	DefaultSignatureMaxSkew = 5 * time.Minute
	DefaultStaleAfter       = 5 * time.Minute
	DefaultKafkaTopic       = "risk-updates"
	DefaultRateLimitRPM     = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisPrefix:      getEnv("REDIS_PREFIX", DefaultRedisPrefix),
		MigrateOnStart:   getEnvBool("MIGRATE_ON_START", false),
		AdminAddress:     os.Getenv("ADMIN_ADDRESS"),
		SignatureMaxSkew: getEnvDuration("SIGNATURE_MAX_SKEW", DefaultSignatureMaxSkew),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		StaleAfter:       getEnvDuration("STALE_AFTER", DefaultStaleAfter),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		KafkaBrokers:     getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:       getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		WebhookURLs:      getEnvList("WEBHOOK_URLS", nil),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.AdminAddress != "" && !common.IsHexAddress(c.AdminAddress) {
		return fmt.Errorf("ADMIN_ADDRESS must be a hex address")
	}
	if c.AdminAddress != "" && common.HexToAddress(c.AdminAddress) == (common.Address{}) {
		return fmt.Errorf("ADMIN_ADDRESS must not be the zero address")
	}
	if c.SignatureMaxSkew <= 0 {
		return fmt.Errorf("SIGNATURE_MAX_SKEW must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	for _, u := range c.WebhookURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("WEBHOOK_URLS entry %q must be an http(s) URL", u)
		}
	}
	return nil
}

// Admin returns the configured administrator, if any.
func (c *Config) Admin() (common.Address, bool) {
	if c.AdminAddress == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.AdminAddress), true
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
