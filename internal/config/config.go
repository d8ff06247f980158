package config

import (
	"time"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/marketlens/v0/marketlens-defaults.yaml)
// Layer 2: User overrides (~/.config/marketlens/marketlens/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	News      NewsConfig      `mapstructure:"news"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// RateLimitConfig contains the token bucket and coordination window settings.
type RateLimitConfig struct {
	Buckets map[string]BucketConfig `mapstructure:"buckets"`
	Window  WindowConfig            `mapstructure:"window"`
}

// BucketConfig describes one traffic-class token bucket.
type BucketConfig struct {
	Capacity   float64 `mapstructure:"capacity"`
	RefillRate float64 `mapstructure:"refill_rate"`
	DailyQuota float64 `mapstructure:"daily_quota"`
	ResetHour  int     `mapstructure:"reset_hour"`
}

// WindowConfig caps short-burst admissions across a sliding window.
type WindowConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	MaxAdmits int           `mapstructure:"max_admits"`
	Span      time.Duration `mapstructure:"span"`
}

// RetryConfig contains retry orchestrator and circuit breaker settings.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	JitterFactor float64       `mapstructure:"jitter_factor"`

	RateLimitBaseDelay   time.Duration `mapstructure:"rate_limit_base_delay"`
	RateLimitMultiplier  float64       `mapstructure:"rate_limit_multiplier"`
	ServerErrorBaseDelay time.Duration `mapstructure:"server_error_base_delay"`
	QuotaExhaustedDelay  time.Duration `mapstructure:"quota_exhausted_delay"`

	RetryablePatterns    []string `mapstructure:"retryable_patterns"`
	NonRetryablePatterns []string `mapstructure:"non_retryable_patterns"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// NewsConfig contains upstream news API settings.
type NewsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	// See: gofulmen/docs/crucible-go/standards/observability/logging.md
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
