package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Test server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.ShutdownTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Test storage defaults
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, 25, config.Storage.Database.MaxOpenConns)
	assert.True(t, config.Storage.Database.AutoMigrate)

	// Test logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)

	// Test cache defaults
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, CacheTypeMemory, config.Cache.Type)
	assert.Equal(t, time.Hour, config.Cache.TTL)

	// Test observability defaults
	assert.Equal(t, "xivtracker", config.Observability.ServiceName)
	assert.False(t, config.Observability.Tracing.Enabled)

	// Test rate limit defaults
	assert.True(t, config.RateLimit.Enabled)
	assert.Equal(t, 60, config.RateLimit.MaxTokens)
	assert.Equal(t, 1.0, config.RateLimit.RefillRate)
	assert.Equal(t, time.Second, config.RateLimit.RefillInterval)

	// Test xivapi defaults
	assert.Equal(t, DefaultXIVAPIBaseURL, config.XIVAPI.BaseURL)
	assert.Equal(t, 3, config.XIVAPI.MaxRetries)
	assert.Equal(t, 20, config.XIVAPI.RateLimit.MaxTokens)
	assert.Equal(t, 20.0, config.XIVAPI.RateLimit.RefillRate)

	require.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server config: port must be between 1 and 65535",
		},
		{
			name:    "empty host",
			modify:  func(c *Config) { c.Server.Host = "" },
			wantErr: "host cannot be empty",
		},
		{
			name: "tls without cert",
			modify: func(c *Config) {
				c.Server.TLSEnabled = true
				c.Server.TLSKeyFile = "key.pem"
			},
			wantErr: "TLS cert file is required",
		},
		{
			name:    "unknown storage type",
			modify:  func(c *Config) { c.Storage.Type = "json" },
			wantErr: "invalid storage type: json",
		},
		{
			name:    "postgres without dsn",
			modify:  func(c *Config) { c.Storage.Type = StorageTypePostgres },
			wantErr: "database DSN is required for postgres storage",
		},
		{
			name: "sqlite without path",
			modify: func(c *Config) {
				c.Storage.Type = StorageTypeSQLite
				c.Storage.Path = ""
			},
			wantErr: "path or database DSN is required",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "invalid log level: trace",
		},
		{
			name:    "file output without path",
			modify:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "file path is required when output is file",
		},
		{
			name: "redis without addr",
			modify: func(c *Config) {
				c.Cache.Type = CacheTypeRedis
				c.Cache.Redis.Addr = ""
			},
			wantErr: "Redis address is required",
		},
		{
			name: "metrics bad port",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics port must be between 1 and 65535",
		},
		{
			name: "otlp without endpoint",
			modify: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.Exporter = "otlp"
			},
			wantErr: "OTLP endpoint is required",
		},
		{
			name:    "inbound zero max tokens",
			modify:  func(c *Config) { c.RateLimit.MaxTokens = 0 },
			wantErr: "invalid rate limit config: max tokens must be greater than 0",
		},
		{
			name:    "outbound negative refill rate",
			modify:  func(c *Config) { c.XIVAPI.RateLimit.RefillRate = -1 },
			wantErr: "invalid xivapi config: rate limit: refill rate cannot be negative",
		},
		{
			name:    "outbound zero refill interval",
			modify:  func(c *Config) { c.XIVAPI.RateLimit.RefillInterval = 0 },
			wantErr: "refill interval must be greater than 0",
		},
		{
			name:    "outbound limiter disabled",
			modify:  func(c *Config) { c.XIVAPI.RateLimit.Enabled = false },
			wantErr: "invalid xivapi config: rate limit must be enabled",
		},
		{
			name:    "bad base url",
			modify:  func(c *Config) { c.XIVAPI.BaseURL = "xivapi.com" },
			wantErr: "invalid base URL",
		},
		{
			name:    "zero timeout",
			modify:  func(c *Config) { c.XIVAPI.Timeout = 0 },
			wantErr: "timeout must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.modify(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRateLimitConfig_DisabledSkipsValidation(t *testing.T) {
	rc := RateLimitConfig{Enabled: false, MaxTokens: -5}
	assert.NoError(t, rc.Validate())
}

func TestRateLimitConfig_ZeroRefillRateAllowed(t *testing.T) {
	rc := RateLimitConfig{Enabled: true, MaxTokens: 10, RefillRate: 0, RefillInterval: time.Second}
	assert.NoError(t, rc.Validate())
}

func TestXIVAPIConfig_LimitKey(t *testing.T) {
	xc := XIVAPIConfig{BaseURL: "https://xivapi.com"}
	assert.Equal(t, "xivapi.com", xc.LimitKey())

	xc.BaseURL = "http://localhost:8081/api"
	assert.Equal(t, "localhost:8081", xc.LimitKey())

	xc.RateLimitKey = "shared"
	assert.Equal(t, "shared", xc.LimitKey())
}
