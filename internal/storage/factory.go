package storage

import (
	"context"
	"fmt"
	"log/slog"

	"xivtracker/internal/models"
)

// Factory creates storage instances from configuration.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new storage factory
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - memory: In-memory storage (for testing/development)
//   - sqlite: SQLite through GORM (single-node deployments)
//   - postgres: PostgreSQL through pgx with goose migrations
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	storageConfig := ConfigFromModel(config, f.logger)

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypeSQLite:
		s, err := NewSQLiteStorage(storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	case models.StorageTypePostgres:
		s, err := NewPostgresStorage(context.Background(), storageConfig)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypeSQLite:
		if config.Path == "" && config.Database.DSN == "" {
			return fmt.Errorf("path or database DSN is required for sqlite storage")
		}
	case models.StorageTypePostgres:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for postgres storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
