package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"xivtracker/internal/models"

	_ "modernc.org/sqlite"
)

// sqliteDriver is the database/sql driver registered by modernc.org/sqlite.
// Using it instead of the dialector's default keeps the build free of cgo.
const sqliteDriver = "sqlite"

// SQLiteStorage implements Storage on SQLite through GORM.
type SQLiteStorage struct {
	db *gorm.DB
}

// NewSQLiteStorage opens (and with AutoMigrate, creates) the database at
// config.DSN, or config.Path when no DSN is set.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	dsn := config.DSN
	if dsn == "" {
		if config.Path == "" {
			return nil, fmt.Errorf("path or DSN is required for SQLite storage")
		}
		dsn = "file:" + config.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Dialector{DriverName: sqliteDriver, DSN: dsn}, &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		err := db.AutoMigrate(
			&models.Character{},
			&models.CharacterJob{},
			&models.CharacterAchievement{},
			&models.CharacterQuest{},
		)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		config.logger().Info("SQLite schema migrated", "dsn", dsn)
	}

	return &SQLiteStorage{db: db}, nil
}

func characterScope(filter models.CharacterFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.World != "" {
			db = db.Where("LOWER(world) = ?", strings.ToLower(filter.World))
		}
		if filter.Name != "" {
			db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
		}
		return db
	}
}

func (s *SQLiteStorage) Characters(ctx context.Context, filter models.CharacterFilter) ([]*models.Character, int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.Character{}).Scopes(characterScope(filter)).Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count characters: %w", err)
	}

	query := s.db.WithContext(ctx).Scopes(characterScope(filter)).Order("name, id")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var characters []*models.Character
	if err := query.Find(&characters).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list characters: %w", err)
	}
	if characters == nil {
		characters = []*models.Character{}
	}
	return characters, int(total), nil
}

func (s *SQLiteStorage) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	var c models.Character
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, characterNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStorage) SaveCharacter(ctx context.Context, character *models.Character) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Character
		err := tx.Select("created_at").First(&existing, "id = ?", character.ID).Error
		switch {
		case err == nil:
			character.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			// new character; GORM fills CreatedAt
		default:
			return fmt.Errorf("failed to check existing character: %w", err)
		}

		if err := tx.Save(character).Error; err != nil {
			return fmt.Errorf("failed to save character: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) DeleteCharacter(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Character{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete character: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return characterNotFound(id)
		}
		for _, row := range []any{&models.CharacterJob{}, &models.CharacterAchievement{}, &models.CharacterQuest{}} {
			if err := tx.Where("character_id = ?", id).Delete(row).Error; err != nil {
				return fmt.Errorf("failed to delete character progress: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) requireCharacter(tx *gorm.DB, id string) error {
	exists, err := rowExists(tx, &models.Character{}, "id = ?", id)
	if err != nil {
		return err
	}
	if !exists {
		return characterNotFound(id)
	}
	return nil
}

func rowExists(tx *gorm.DB, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := tx.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check existing row: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStorage) Jobs(ctx context.Context, characterID string) ([]models.CharacterJob, error) {
	jobs := []models.CharacterJob{}
	err := s.db.WithContext(ctx).Where("character_id = ?", characterID).Order("job_id").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStorage) SaveJob(ctx context.Context, job *models.CharacterJob) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireCharacter(tx, job.CharacterID); err != nil {
			return err
		}
		if err := tx.Save(job).Error; err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStorage) Achievements(ctx context.Context, characterID string) ([]models.CharacterAchievement, error) {
	out := []models.CharacterAchievement{}
	err := s.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("completed_at DESC, achievement_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return out, nil
}

func (s *SQLiteStorage) SaveAchievement(ctx context.Context, achievement *models.CharacterAchievement) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireCharacter(tx, achievement.CharacterID); err != nil {
			return err
		}
		exists, err := rowExists(tx, &models.CharacterAchievement{},
			"character_id = ? AND achievement_id = ?", achievement.CharacterID, achievement.AchievementID)
		if err != nil || exists {
			return err
		}
		if err := tx.Create(achievement).Error; err != nil {
			return fmt.Errorf("failed to save achievement: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

func (s *SQLiteStorage) Quests(ctx context.Context, characterID string) ([]models.CharacterQuest, error) {
	out := []models.CharacterQuest{}
	err := s.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("completed_at DESC, quest_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	return out, nil
}

func (s *SQLiteStorage) SaveQuest(ctx context.Context, quest *models.CharacterQuest) (bool, error) {
	var created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireCharacter(tx, quest.CharacterID); err != nil {
			return err
		}
		exists, err := rowExists(tx, &models.CharacterQuest{},
			"character_id = ? AND quest_id = ?", quest.CharacterID, quest.QuestID)
		if err != nil || exists {
			return err
		}
		if err := tx.Create(quest).Error; err != nil {
			return fmt.Errorf("failed to save quest: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the storage connection
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
