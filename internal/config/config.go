// Package config loads the service configuration. Values are layered:
// built-in defaults, then a YAML file, then a .env file and the process
// environment (XIVTRACKER_* variables), and the result is validated once.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xivtracker/internal/models"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "XIVTRACKER_"

// Options controls where Load looks for configuration.
type Options struct {
	// EnvFiles are loaded into the environment before parsing. Missing files
	// are skipped. Variables already set in the process win.
	EnvFiles []string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*models.Config, error) {
	return LoadWithOptions(configPath, Options{EnvFiles: []string{".env"}})
}

func LoadWithOptions(configPath string, opts Options) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	if err := loadFromEnvironment(config, opts.Environ); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// loadFromEnvironment overlays XIVTRACKER_* variables. Fields whose variable
// is unset keep their current value.
func loadFromEnvironment(config *models.Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	return env.ParseWithOptions(config, opts)
}

// SaveExample writes an example configuration file showing every section.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = ""
	config.XIVAPI.PrivateKey = "your-xivapi-private-key"
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	config.Observability.Tracing.OTLPEndpoint = "localhost:4317"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
