package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"xivtracker/internal/models"
)

const pgForeignKeyViolation = "23503"

// PostgresStorage implements the Storage interface on PostgreSQL through pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects a pool and, with AutoMigrate, applies the
// embedded schema migrations.
func NewPostgresStorage(ctx context.Context, config Config) (*PostgresStorage, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = min(int32(config.MaxIdleConns), poolConfig.MaxConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := Migrate(ctx, pool, config.logger()); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &PostgresStorage{pool: pool}, nil
}

const characterColumns = `id, name, world, data_center, race, clan, gender, avatar, portrait,
	active_class_job_id, last_synced_at, created_at, updated_at`

func scanCharacter(row pgx.Row) (*models.Character, error) {
	var c models.Character
	err := row.Scan(&c.ID, &c.Name, &c.World, &c.DataCenter, &c.Race, &c.Clan, &c.Gender,
		&c.Avatar, &c.Portrait, &c.ActiveClassJobID, &c.LastSyncedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func characterWhere(filter models.CharacterFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.World != "" {
		args = append(args, strings.ToLower(filter.World))
		clauses = append(clauses, fmt.Sprintf("LOWER(world) = $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (ps *PostgresStorage) Characters(ctx context.Context, filter models.CharacterFilter) ([]*models.Character, int, error) {
	where, args := characterWhere(filter)

	var total int
	if err := ps.pool.QueryRow(ctx, "SELECT COUNT(*) FROM characters"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count characters: %w", err)
	}

	query := "SELECT " + characterColumns + " FROM characters" + where + " ORDER BY name, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	characters := []*models.Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan character: %w", err)
		}
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, total, nil
}

func (ps *PostgresStorage) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	row := ps.pool.QueryRow(ctx, "SELECT "+characterColumns+" FROM characters WHERE id = $1", id)
	c, err := scanCharacter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, characterNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return c, nil
}

// SaveCharacter upserts the character. created_at is left untouched on
// conflict and the stored timestamps are written back to character.
func (ps *PostgresStorage) SaveCharacter(ctx context.Context, character *models.Character) error {
	now := time.Now().UTC()
	createdAt := character.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err := ps.pool.QueryRow(ctx, `
		INSERT INTO characters (`+characterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			world = EXCLUDED.world,
			data_center = EXCLUDED.data_center,
			race = EXCLUDED.race,
			clan = EXCLUDED.clan,
			gender = EXCLUDED.gender,
			avatar = EXCLUDED.avatar,
			portrait = EXCLUDED.portrait,
			active_class_job_id = EXCLUDED.active_class_job_id,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		character.ID, character.Name, character.World, character.DataCenter, character.Race,
		character.Clan, character.Gender, character.Avatar, character.Portrait,
		character.ActiveClassJobID, character.LastSyncedAt, createdAt, now,
	).Scan(&character.CreatedAt, &character.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save character: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) DeleteCharacter(ctx context.Context, id string) error {
	tag, err := ps.pool.Exec(ctx, "DELETE FROM characters WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return characterNotFound(id)
	}
	return nil
}

func (ps *PostgresStorage) Jobs(ctx context.Context, characterID string) ([]models.CharacterJob, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT character_id, job_id, name, abbreviation, level, exp_level, exp_level_max, is_specialised, updated_at
		FROM character_jobs WHERE character_id = $1 ORDER BY job_id`, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.CharacterJob{}
	for rows.Next() {
		var j models.CharacterJob
		if err := rows.Scan(&j.CharacterID, &j.JobID, &j.Name, &j.Abbreviation, &j.Level,
			&j.ExpLevel, &j.ExpLevelMax, &j.IsSpecialised, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (ps *PostgresStorage) SaveJob(ctx context.Context, job *models.CharacterJob) error {
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO character_jobs
			(character_id, job_id, name, abbreviation, level, exp_level, exp_level_max, is_specialised, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (character_id, job_id) DO UPDATE SET
			name = EXCLUDED.name,
			abbreviation = EXCLUDED.abbreviation,
			level = EXCLUDED.level,
			exp_level = EXCLUDED.exp_level,
			exp_level_max = EXCLUDED.exp_level_max,
			is_specialised = EXCLUDED.is_specialised,
			updated_at = EXCLUDED.updated_at`,
		job.CharacterID, job.JobID, job.Name, job.Abbreviation, job.Level,
		job.ExpLevel, job.ExpLevelMax, job.IsSpecialised, job.UpdatedAt,
	)
	if err != nil {
		return ps.mapWriteError(err, job.CharacterID, "job")
	}
	return nil
}

func (ps *PostgresStorage) Achievements(ctx context.Context, characterID string) ([]models.CharacterAchievement, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT character_id, achievement_id, name, points, patch, completed_at
		FROM character_achievements WHERE character_id = $1
		ORDER BY completed_at DESC, achievement_id`, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	out := []models.CharacterAchievement{}
	for rows.Next() {
		var (
			a     models.CharacterAchievement
			patch string
		)
		if err := rows.Scan(&a.CharacterID, &a.AchievementID, &a.Name, &a.Points, &patch, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		a.Patch = models.Patch(patch)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (ps *PostgresStorage) SaveAchievement(ctx context.Context, achievement *models.CharacterAchievement) (bool, error) {
	tag, err := ps.pool.Exec(ctx, `
		INSERT INTO character_achievements (character_id, achievement_id, name, points, patch, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (character_id, achievement_id) DO NOTHING`,
		achievement.CharacterID, achievement.AchievementID, achievement.Name,
		achievement.Points, string(achievement.Patch), achievement.CompletedAt,
	)
	if err != nil {
		return false, ps.mapWriteError(err, achievement.CharacterID, "achievement")
	}
	return tag.RowsAffected() == 1, nil
}

func (ps *PostgresStorage) Quests(ctx context.Context, characterID string) ([]models.CharacterQuest, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT character_id, quest_id, name, patch, completed_at
		FROM character_quests WHERE character_id = $1
		ORDER BY completed_at DESC, quest_id`, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	out := []models.CharacterQuest{}
	for rows.Next() {
		var (
			q     models.CharacterQuest
			patch string
		)
		if err := rows.Scan(&q.CharacterID, &q.QuestID, &q.Name, &patch, &q.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		q.Patch = models.Patch(patch)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (ps *PostgresStorage) SaveQuest(ctx context.Context, quest *models.CharacterQuest) (bool, error) {
	tag, err := ps.pool.Exec(ctx, `
		INSERT INTO character_quests (character_id, quest_id, name, patch, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (character_id, quest_id) DO NOTHING`,
		quest.CharacterID, quest.QuestID, quest.Name, string(quest.Patch), quest.CompletedAt,
	)
	if err != nil {
		return false, ps.mapWriteError(err, quest.CharacterID, "quest")
	}
	return tag.RowsAffected() == 1, nil
}

// mapWriteError turns a foreign key violation on character_id into ErrNotFound.
func (ps *PostgresStorage) mapWriteError(err error, characterID, kind string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return characterNotFound(characterID)
	}
	return fmt.Errorf("failed to save %s: %w", kind, err)
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
