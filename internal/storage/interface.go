package storage

import (
	"context"
	"log/slog"
	"time"

	"xivtracker/internal/models"
)

// Storage defines character progress persistence. Implementations must be
// safe for concurrent use. Lookups of unknown characters return an error
// matching ErrNotFound.
type Storage interface {
	// Characters returns one page of tracked characters ordered by name and
	// the total number matching the filter.
	Characters(ctx context.Context, filter models.CharacterFilter) ([]*models.Character, int, error)

	// GetCharacter retrieves a character by Lodestone ID
	GetCharacter(ctx context.Context, id string) (*models.Character, error)

	// SaveCharacter inserts or updates a character, preserving CreatedAt
	SaveCharacter(ctx context.Context, character *models.Character) error

	// DeleteCharacter removes a character and all of its progress
	DeleteCharacter(ctx context.Context, id string) error

	// Jobs returns a character's jobs ordered by job ID
	Jobs(ctx context.Context, characterID string) ([]models.CharacterJob, error)

	// SaveJob inserts or replaces one job row
	SaveJob(ctx context.Context, job *models.CharacterJob) error

	// Achievements returns completed achievements, most recent first
	Achievements(ctx context.Context, characterID string) ([]models.CharacterAchievement, error)

	// SaveAchievement records a completion. An achievement already recorded
	// keeps its original completion time and created is false.
	SaveAchievement(ctx context.Context, achievement *models.CharacterAchievement) (created bool, err error)

	// Quests returns completed quests, most recent first
	Quests(ctx context.Context, characterID string) ([]models.CharacterQuest, error)

	// SaveQuest records a completion with the same semantics as SaveAchievement
	SaveQuest(ctx context.Context, quest *models.CharacterQuest) (created bool, err error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres)
	Type string

	// Path is the sqlite database file, used when DSN is empty
	Path string

	// DSN is the database connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// AutoMigrate creates or upgrades the schema on open
	AutoMigrate bool

	Logger *slog.Logger
}

// ConfigFromModel converts the service storage settings.
func ConfigFromModel(sc models.StorageConfig, logger *slog.Logger) Config {
	return Config{
		Type:            sc.Type,
		Path:            sc.Path,
		DSN:             sc.Database.DSN,
		MaxOpenConns:    sc.Database.MaxOpenConns,
		MaxIdleConns:    sc.Database.MaxIdleConns,
		ConnMaxLifetime: sc.Database.ConnMaxLifetime,
		ConnMaxIdleTime: sc.Database.ConnMaxIdleTime,
		AutoMigrate:     sc.Database.AutoMigrate,
		Logger:          logger,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
