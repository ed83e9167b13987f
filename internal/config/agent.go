package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AgentConfig holds configuration for the scoring agent that pushes
// computed scores to the oracle.
type AgentConfig struct {
	APIURL         string
	PrivateKey     string // Hex-encoded admin key, with or without 0x prefix
	Interval       time.Duration
	ProfilesPath   string // YAML validator profiles; built-in table when empty
	OverrideFile   string
	OverrideTarget string
	MaxAttempts    int
	LogLevel       string
	LogFormat      string
}

// Agent defaults
const (
	DefaultAPIURL         = "http://localhost:8080"
	DefaultAgentInterval  = 30 * time.Second
	DefaultOverrideFile   = "override.txt"
	DefaultOverrideTarget = "validator_1"
	DefaultMaxAttempts    = 3
)

// LoadAgent reads agent configuration from environment variables.
func LoadAgent() (*AgentConfig, error) {
	_ = godotenv.Load()

	cfg := &AgentConfig{
		APIURL:         getEnv("ORACLE_API_URL", DefaultAPIURL),
		PrivateKey:     os.Getenv("ORACLE_PRIVATE_KEY"),
		Interval:       getEnvDuration("AGENT_INTERVAL", DefaultAgentInterval),
		ProfilesPath:   os.Getenv("AGENT_PROFILES"),
		OverrideFile:   getEnv("AGENT_OVERRIDE_FILE", DefaultOverrideFile),
		OverrideTarget: getEnv("AGENT_OVERRIDE_TARGET", DefaultOverrideTarget),
		MaxAttempts:    int(getEnvInt64("AGENT_MAX_ATTEMPTS", DefaultMaxAttempts)),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required agent configuration is present
func (c *AgentConfig) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("ORACLE_PRIVATE_KEY is required")
	}
	if len(strings.TrimPrefix(c.PrivateKey, "0x")) != 64 {
		return fmt.Errorf("ORACLE_PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}
	if c.APIURL == "" {
		return fmt.Errorf("ORACLE_API_URL is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("AGENT_INTERVAL must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("AGENT_MAX_ATTEMPTS must be positive")
	}
	return nil
}
