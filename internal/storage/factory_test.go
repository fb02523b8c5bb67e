package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xivtracker/internal/logger"
	"xivtracker/internal/models"
)

func TestFactory_GetSupportedProviders(t *testing.T) {
	factory := NewFactory(logger.Discard())
	assert.Equal(t, []string{"memory", "postgres", "sqlite"}, factory.GetSupportedProviders())
}

func TestFactory_ValidateConfig(t *testing.T) {
	factory := NewFactory(logger.Discard())

	tests := []struct {
		name      string
		config    models.StorageConfig
		expectErr bool
	}{
		{"memory", models.StorageConfig{Type: "memory"}, false},
		{"sqlite with path", models.StorageConfig{Type: "sqlite", Path: "/tmp/x.db"}, false},
		{"sqlite with dsn", models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: "file::memory:"}}, false},
		{"sqlite without path", models.StorageConfig{Type: "sqlite"}, true},
		{"postgres without dsn", models.StorageConfig{Type: "postgres"}, true},
		{"postgres with dsn", models.StorageConfig{Type: "postgres", Database: models.DatabaseConfig{DSN: "postgres://localhost/x"}}, false},
		{"unknown", models.StorageConfig{Type: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := factory.ValidateConfig(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFactory_Create(t *testing.T) {
	factory := NewFactory(logger.Discard())

	t.Run("memory", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "memory"})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &MemoryStorage{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{
			Type:     "sqlite",
			Path:     filepath.Join(t.TempDir(), "factory.db"),
			Database: models.DatabaseConfig{AutoMigrate: true},
		})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLiteStorage{}, s)
	})

	t.Run("invalid", func(t *testing.T) {
		s, err := factory.Create(models.StorageConfig{Type: "json"})
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}
