// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, storage, xivapi, etc.)
// - Defaults that run locally with no external dependencies
// - Validation up front so misconfiguration fails at startup, not mid-request
// - Every field settable from YAML and from XIVTRACKER_* environment variables
package models

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Cache type constants
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// DefaultXIVAPIBaseURL is the public XIVAPI endpoint.
const DefaultXIVAPIBaseURL = "https://xivapi.com"

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Character progress persistence
// - Logging: Structured logging and output configuration
// - Cache: Reference data caching (memory or Redis)
// - Metrics / Observability: Prometheus metrics and OpenTelemetry tracing
// - RateLimit: Inbound per-client request throttling
// - XIVAPI: Game data API client, including its outbound token bucket
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Storage       StorageConfig       `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	Cache         CacheConfig         `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" envPrefix:"OTEL_"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	XIVAPI        XIVAPIConfig        `yaml:"xivapi" json:"xivapi" envPrefix:"XIVAPI_"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" json:"port" env:"PORT"`
	Host            string        `yaml:"host" json:"host" env:"HOST"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	TLSEnabled      bool          `yaml:"tls_enabled" json:"tls_enabled" env:"TLS_ENABLED"`
	TLSCertFile     string        `yaml:"tls_cert_file" json:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile      string        `yaml:"tls_key_file" json:"tls_key_file" env:"TLS_KEY_FILE"`
	CORS            CORSConfig    `yaml:"cors" json:"cors" envPrefix:"CORS_"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" env:"ENABLED"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods" env:"ALLOWED_METHODS" envSeparator:","`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers" env:"ALLOWED_HEADERS" envSeparator:","`
	MaxAge         int      `yaml:"max_age" json:"max_age" env:"MAX_AGE"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type" env:"TYPE"`
	Path     string         `yaml:"path" json:"path" env:"PATH"` // sqlite database file
	Database DatabaseConfig `yaml:"database" json:"database" envPrefix:"DB_"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" env:"LEVEL"`
	Format   string `yaml:"format" json:"format" env:"FORMAT"`
	Output   string `yaml:"output" json:"output" env:"OUTPUT"`
	FilePath string `yaml:"file_path" json:"file_path" env:"FILE_PATH"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Type    string        `yaml:"type" json:"type" env:"TYPE"`
	TTL     time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
	Redis   RedisConfig   `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
	Memory  MemoryConfig  `yaml:"memory" json:"memory" envPrefix:"MEMORY_"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr" env:"ADDR"`
	Password  string `yaml:"password" json:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" json:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
}

type MemoryConfig struct {
	MaxSize         int           `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" json:"path" env:"PATH"`
	Port    int    `yaml:"port" json:"port" env:"PORT"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" json:"exporter" env:"EXPORTER"` // stdout | otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" env:"SAMPLE_RATE"`
}

// RateLimitConfig configures a token bucket limiter. The same shape is used
// for inbound HTTP throttling and for the outbound XIVAPI budget.
type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	MaxTokens       int           `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	RefillRate      float64       `yaml:"refill_rate" json:"refill_rate" env:"REFILL_RATE"`
	RefillInterval  time.Duration `yaml:"refill_interval" json:"refill_interval" env:"REFILL_INTERVAL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	BucketTTL       time.Duration `yaml:"bucket_ttl" json:"bucket_ttl" env:"BUCKET_TTL"`
}

// XIVAPIConfig configures the game data API client.
type XIVAPIConfig struct {
	BaseURL              string          `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	PrivateKey           string          `yaml:"private_key" json:"-" env:"PRIVATE_KEY"`
	Language             string          `yaml:"language" json:"language" env:"LANGUAGE"`
	UserAgent            string          `yaml:"user_agent" json:"user_agent" env:"USER_AGENT"`
	Timeout              time.Duration   `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	MaxRetries           int             `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	RetryInitialInterval time.Duration   `yaml:"retry_initial_interval" json:"retry_initial_interval" env:"RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration   `yaml:"retry_max_interval" json:"retry_max_interval" env:"RETRY_MAX_INTERVAL"`
	RateLimitKey         string          `yaml:"rate_limit_key" json:"rate_limit_key" env:"RATE_LIMIT_KEY"`
	RateLimit            RateLimitConfig `yaml:"rate_limit" json:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// NewDefaultConfig creates a configuration that runs locally out of the box.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory storage and cache: no external services required
// - XIVAPI budget of 20 requests per second: the public API's per-key allowance
// - Inbound limit of 60 requests per minute per client IP, bursting to 60
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/xivtracker.db",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
				AutoMigrate:     true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Enabled: true,
			Type:    CacheTypeMemory,
			TTL:     time.Hour,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "xivtracker:",
			},
			Memory: MemoryConfig{
				MaxSize:         5000,
				CleanupInterval: 10 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "xivtracker",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			MaxTokens:      60,
			RefillRate:     1,
			RefillInterval: time.Second,
		},
		XIVAPI: XIVAPIConfig{
			BaseURL:              DefaultXIVAPIBaseURL,
			Language:             "en",
			UserAgent:            "xivtracker",
			Timeout:              10 * time.Second,
			MaxRetries:           3,
			RetryInitialInterval: 250 * time.Millisecond,
			RetryMaxInterval:     5 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				MaxTokens:      20,
				RefillRate:     20,
				RefillInterval: time.Second,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.XIVAPI.Validate(); err != nil {
		return fmt.Errorf("invalid xivapi config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.ShutdownTimeout < 0 {
		return errors.New("shutdown timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeSQLite:
		if stc.Path == "" && stc.Database.DSN == "" {
			return errors.New("path or database DSN is required for sqlite storage")
		}
	case StorageTypePostgres:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Database.MaxOpenConns < 0 || stc.Database.MaxIdleConns < 0 {
		return errors.New("connection pool sizes cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (cc *CacheConfig) Validate() error {
	if !cc.Enabled {
		return nil
	}

	if cc.Type != CacheTypeMemory && cc.Type != CacheTypeRedis {
		return fmt.Errorf("invalid cache type: %s", cc.Type)
	}

	if cc.TTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	if cc.Type == CacheTypeRedis && cc.Redis.Addr == "" {
		return errors.New("Redis address is required when cache type is redis")
	}

	if cc.Type == CacheTypeMemory && cc.Memory.MaxSize < 0 {
		return errors.New("memory cache max size cannot be negative")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

// Validate checks the limiter settings when the limiter is enabled. The
// limiter re-validates on construction; this catches mistakes at load time
// with the config path in the message.
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	if rc.MaxTokens <= 0 {
		return errors.New("max tokens must be greater than 0")
	}
	if !(rc.RefillRate >= 0) {
		return errors.New("refill rate cannot be negative")
	}
	if rc.RefillInterval <= 0 {
		return errors.New("refill interval must be greater than 0")
	}
	if rc.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}
	if rc.BucketTTL < 0 {
		return errors.New("bucket TTL cannot be negative")
	}

	return nil
}

func (xc *XIVAPIConfig) Validate() error {
	u, err := url.Parse(xc.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base URL: %q", xc.BaseURL)
	}

	if xc.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}

	if xc.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}

	if xc.RetryInitialInterval < 0 || xc.RetryMaxInterval < 0 {
		return errors.New("retry intervals cannot be negative")
	}

	// Every outbound call spends a token, so the budget cannot be turned off.
	if !xc.RateLimit.Enabled {
		return errors.New("rate limit must be enabled")
	}
	if err := xc.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	return nil
}

// LimitKey returns the bucket key for outbound calls: the configured key, or
// the base URL host when none is set.
func (xc *XIVAPIConfig) LimitKey() string {
	if xc.RateLimitKey != "" {
		return xc.RateLimitKey
	}
	if u, err := url.Parse(xc.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return xc.BaseURL
}
