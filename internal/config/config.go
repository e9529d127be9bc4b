package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the ecosync service.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"ECOSYNC_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Execution engine configuration
	Engine EngineConfig

	// Performance feedback thresholds
	Feedback FeedbackConfig

	// State synchronization
	Sync SyncConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// TTL applied to run summaries; ecosystem state is not expired
	SummaryTTL time.Duration `env:"REDIS_SUMMARY_TTL" envDefault:"24h"`
}

// LLMConfig holds LLM provider configuration for the built-in module handlers.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int     `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// EngineConfig holds execution engine configuration.
type EngineConfig struct {
	// WorkerLimit bounds concurrent module handlers per layer.
	// 0 means no bound beyond the layer size.
	WorkerLimit int `env:"ENGINE_WORKER_LIMIT" envDefault:"0"`

	// MaxGraphDepth caps transitive dependent expansion.
	MaxGraphDepth int `env:"ENGINE_MAX_GRAPH_DEPTH" envDefault:"10"`
}

// FeedbackConfig holds performance analysis thresholds.
type FeedbackConfig struct {
	HighLatency    time.Duration `env:"FEEDBACK_HIGH_LATENCY" envDefault:"10s"`
	MinSuccessRate float64       `env:"FEEDBACK_MIN_SUCCESS_RATE" envDefault:"0.8"`
	SlowModule     time.Duration `env:"FEEDBACK_SLOW_MODULE" envDefault:"5s"`
}

// SyncConfig holds state synchronizer configuration.
type SyncConfig struct {
	// MaxConflictRetries bounds optimistic write retries on EcosystemState.
	MaxConflictRetries int `env:"SYNC_MAX_CONFLICT_RETRIES" envDefault:"3"`
}

// TimeoutConfig holds execution timeout configuration.
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"600s"`
	ModuleTimeout   time.Duration `env:"TIMEOUT_MODULE" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required")
	}
	if c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	if c.Engine.WorkerLimit < 0 {
		return fmt.Errorf("engine worker limit must not be negative")
	}
	if c.Engine.MaxGraphDepth < 1 {
		return fmt.Errorf("max graph depth must be at least 1")
	}

	if c.Feedback.MinSuccessRate < 0 || c.Feedback.MinSuccessRate > 1 {
		return fmt.Errorf("min success rate must be in [0,1]: %f", c.Feedback.MinSuccessRate)
	}

	if c.Sync.MaxConflictRetries < 1 {
		return fmt.Errorf("sync conflict retries must be at least 1")
	}

	if c.Timeouts.ModuleTimeout <= 0 || c.Timeouts.RunTimeout <= 0 {
		return fmt.Errorf("module and run timeouts must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
