// Package tracker holds the character progression business logic: syncing
// characters from the game data API, recording progress and reporting it.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xivtracker/internal/clock"
	"xivtracker/internal/models"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/storage"
	"xivtracker/internal/xivapi"
)

// Service handles character progression business logic
type Service struct {
	storage  storage.Storage
	gameData GameData
	limiter  ratelimit.Limiter
	clock    clock.Clock
	logger   *slog.Logger
}

type Option func(*Service)

// WithLimiter lets RateLimitStatus report how many keys the limiter tracks.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new tracker service
func NewService(store storage.Storage, gameData GameData, opts ...Option) *Service {
	s := &Service{
		storage:  store,
		gameData: gameData,
		clock:    clock.Real{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// ListCharacters returns one page of tracked characters
func (s *Service) ListCharacters(ctx context.Context, req *models.ListCharactersRequest) (*models.ListCharactersResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}

	chars, total, err := s.storage.Characters(ctx, req.Filter())
	if err != nil {
		return nil, NewInternalError("failed to list characters", err)
	}

	out := make([]models.Character, len(chars))
	for i, c := range chars {
		out[i] = *c
	}
	return &models.ListCharactersResponse{
		Characters: out,
		TotalCount: total,
		Limit:      req.Limit,
		Offset:     req.Offset,
		HasMore:    req.Offset+len(out) < total,
	}, nil
}

// GetProgress returns the aggregate view of a tracked character
func (s *Service) GetProgress(ctx context.Context, id string) (*models.CharacterProgress, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}

	character, err := s.storage.GetCharacter(ctx, id)
	if err != nil {
		return nil, storageError(id, "get character", err)
	}
	jobs, err := s.storage.Jobs(ctx, id)
	if err != nil {
		return nil, storageError(id, "list jobs", err)
	}
	achievements, err := s.storage.Achievements(ctx, id)
	if err != nil {
		return nil, storageError(id, "list achievements", err)
	}
	quests, err := s.storage.Quests(ctx, id)
	if err != nil {
		return nil, storageError(id, "list quests", err)
	}

	return &models.CharacterProgress{
		Character:    character,
		Jobs:         jobs,
		Achievements: achievements,
		Quests:       quests,
		Stats:        models.ComputeStats(jobs, achievements, quests),
	}, nil
}

// SyncCharacter fetches a character profile and stores the character, its
// jobs and any achievements not yet recorded. Each new achievement needs a
// reference lookup; if the outbound budget runs out part way the progress
// made so far is kept and the next sync resumes where this one stopped.
func (s *Service) SyncCharacter(ctx context.Context, id string) (*models.SyncResponse, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}

	profile, err := s.gameData.Character(ctx, id)
	if err != nil {
		if errors.Is(err, xivapi.ErrNotFound) {
			return nil, NewCharacterNotFoundError(id)
		}
		return nil, upstreamError("character "+id, err)
	}

	now := s.now()
	character := profile.Character
	character.LastSyncedAt = &now
	if err := s.storage.SaveCharacter(ctx, &character); err != nil {
		return nil, NewInternalError("failed to save character", err)
	}

	jobsUpdated, err := s.syncJobs(ctx, id, profile.Jobs, now)
	if err != nil {
		return nil, err
	}

	added, err := s.syncAchievements(ctx, id, profile.Achievements)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Character synced",
		"character_id", id,
		"jobs_updated", jobsUpdated,
		"achievements_added", added,
	)
	return &models.SyncResponse{
		Character:         &character,
		JobsUpdated:       jobsUpdated,
		AchievementsAdded: added,
		SyncedAt:          now,
	}, nil
}

func (s *Service) syncJobs(ctx context.Context, id string, jobs []models.CharacterJob, now time.Time) (int, error) {
	stored, err := s.storage.Jobs(ctx, id)
	if err != nil {
		return 0, storageError(id, "list jobs", err)
	}
	previous := make(map[int]models.CharacterJob, len(stored))
	for _, j := range stored {
		previous[j.JobID] = j
	}

	updated := 0
	for _, job := range jobs {
		if old, ok := previous[job.JobID]; ok && old.Level == job.Level && old.ExpLevel == job.ExpLevel {
			continue
		}
		job.UpdatedAt = now
		if err := s.storage.SaveJob(ctx, &job); err != nil {
			return updated, storageError(id, "save job", err)
		}
		updated++
	}
	return updated, nil
}

func (s *Service) syncAchievements(ctx context.Context, id string, completions []xivapi.AchievementCompletion) (int, error) {
	stored, err := s.storage.Achievements(ctx, id)
	if err != nil {
		return 0, storageError(id, "list achievements", err)
	}
	recorded := make(map[int]bool, len(stored))
	for _, a := range stored {
		recorded[a.AchievementID] = true
	}

	added := 0
	for _, c := range completions {
		if recorded[c.ID] {
			continue
		}

		ref, err := s.gameData.Achievement(ctx, c.ID)
		if errors.Is(err, xivapi.ErrNotFound) {
			s.logger.Warn("Skipping unknown achievement", "character_id", id, "achievement_id", c.ID)
			continue
		}
		if err != nil {
			s.logger.Warn("Character sync incomplete",
				"character_id", id,
				"achievements_added", added,
				"error", err,
			)
			return added, upstreamError(fmt.Sprintf("achievement %d", c.ID), err)
		}

		created, err := s.storage.SaveAchievement(ctx, models.NewCharacterAchievement(id, ref, c.CompletedAt))
		if err != nil {
			return added, storageError(id, "save achievement", err)
		}
		if created {
			added++
		}
	}
	return added, nil
}

// DeleteCharacter removes a character and all recorded progress
func (s *Service) DeleteCharacter(ctx context.Context, id string) error {
	if err := models.ValidateCharacterID(id); err != nil {
		return NewInvalidRequestError(err.Error(), err)
	}
	if err := s.storage.DeleteCharacter(ctx, id); err != nil {
		return storageError(id, "delete character", err)
	}
	s.logger.Info("Character deleted", "character_id", id)
	return nil
}

// RecordJob stores a job level entered by hand. A missing name is filled from
// the class/job list when the game data API can provide it.
func (s *Service) RecordJob(ctx context.Context, id string, jobID int, req *models.RecordJobRequest) (*models.CharacterJob, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError(err.Error(), err)
	}
	if _, err := s.storage.GetCharacter(ctx, id); err != nil {
		return nil, storageError(id, "get character", err)
	}

	job := &models.CharacterJob{
		CharacterID:  id,
		JobID:        jobID,
		Name:         req.Name,
		Abbreviation: req.Abbreviation,
		Level:        req.Level,
		ExpLevel:     req.ExpLevel,
		ExpLevelMax:  req.ExpLevelMax,
		UpdatedAt:    s.now(),
	}
	if err := job.Validate(); err != nil {
		return nil, NewValidationError(err.Error(), err)
	}

	if job.Name == "" {
		if err := s.fillJobName(ctx, job); err != nil {
			return nil, err
		}
	}

	if err := s.storage.SaveJob(ctx, job); err != nil {
		return nil, storageError(id, "save job", err)
	}
	return job, nil
}

func (s *Service) fillJobName(ctx context.Context, job *models.CharacterJob) error {
	classJobs, err := s.gameData.ClassJobs(ctx)
	if err != nil {
		// The level is still worth keeping without a display name.
		s.logger.Warn("Could not look up class/job names", "job_id", job.JobID, "error", err)
		return nil
	}
	for _, cj := range classJobs {
		if cj.ID == job.JobID {
			job.Name = cj.Name
			if job.Abbreviation == "" {
				job.Abbreviation = cj.Abbreviation
			}
			return nil
		}
	}
	return NewValidationError(fmt.Sprintf("unknown job ID %d", job.JobID), nil)
}

// RecordQuest marks a quest complete after looking it up on the game data API
func (s *Service) RecordQuest(ctx context.Context, id string, req *models.RecordQuestRequest) (*models.CharacterQuest, bool, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, false, NewInvalidRequestError(err.Error(), err)
	}
	if err := req.Validate(); err != nil {
		return nil, false, NewValidationError(err.Error(), err)
	}
	// Check the character first so an unknown ID does not spend API budget.
	if _, err := s.storage.GetCharacter(ctx, id); err != nil {
		return nil, false, storageError(id, "get character", err)
	}

	quest, err := s.gameData.Quest(ctx, req.QuestID)
	if err != nil {
		return nil, false, upstreamError(fmt.Sprintf("quest %d", req.QuestID), err)
	}

	row := models.NewCharacterQuest(id, quest, s.completedAt(req.CompletedAt))
	created, err := s.storage.SaveQuest(ctx, row)
	if err != nil {
		return nil, false, storageError(id, "save quest", err)
	}
	return row, created, nil
}

// RecordAchievement marks an achievement complete after looking it up on the
// game data API
func (s *Service) RecordAchievement(ctx context.Context, id string, req *models.RecordAchievementRequest) (*models.CharacterAchievement, bool, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, false, NewInvalidRequestError(err.Error(), err)
	}
	if err := req.Validate(); err != nil {
		return nil, false, NewValidationError(err.Error(), err)
	}
	if _, err := s.storage.GetCharacter(ctx, id); err != nil {
		return nil, false, storageError(id, "get character", err)
	}

	achievement, err := s.gameData.Achievement(ctx, req.AchievementID)
	if err != nil {
		return nil, false, upstreamError(fmt.Sprintf("achievement %d", req.AchievementID), err)
	}

	row := models.NewCharacterAchievement(id, achievement, s.completedAt(req.CompletedAt))
	created, err := s.storage.SaveAchievement(ctx, row)
	if err != nil {
		return nil, false, storageError(id, "save achievement", err)
	}
	return row, created, nil
}

func (s *Service) completedAt(t *time.Time) time.Time {
	if t == nil {
		return s.now()
	}
	return t.UTC()
}

// AchievementsSince lists a character's achievements added in sincePatch or
// later. An empty patch returns everything.
func (s *Service) AchievementsSince(ctx context.Context, id string, sincePatch string) (*models.AchievementsResponse, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}

	var since models.Patch
	if sincePatch != "" {
		p, err := models.ParsePatch(sincePatch)
		if err != nil {
			return nil, NewInvalidRequestError(fmt.Sprintf("invalid since_patch: %v", err), err)
		}
		since = p
	}

	if _, err := s.storage.GetCharacter(ctx, id); err != nil {
		return nil, storageError(id, "get character", err)
	}
	all, err := s.storage.Achievements(ctx, id)
	if err != nil {
		return nil, storageError(id, "list achievements", err)
	}

	filtered := models.FilterAchievementsSince(all, since)
	points := 0
	for _, a := range filtered {
		points += a.Points
	}
	return &models.AchievementsResponse{
		CharacterID:  id,
		SincePatch:   since,
		Achievements: filtered,
		TotalPoints:  points,
	}, nil
}

// SearchCharacters searches the game data API by name
func (s *Service) SearchCharacters(ctx context.Context, req *models.SearchCharactersRequest) (*models.SearchCharactersResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewInvalidRequestError(err.Error(), err)
	}

	results, err := s.gameData.SearchCharacters(ctx, req.Name, req.World)
	if err != nil {
		return nil, upstreamError("character search", err)
	}
	return &models.SearchCharactersResponse{Results: results, Count: len(results)}, nil
}

// RateLimitStatus reports the outbound budget without consuming a token
func (s *Service) RateLimitStatus() *models.RateLimitStatusResponse {
	res := s.gameData.LimitStatus()
	resp := &models.RateLimitStatusResponse{
		Key:       s.gameData.LimitKey(),
		Allowed:   res.Allowed,
		Limit:     res.Limit,
		Remaining: res.Remaining,
	}
	if res.Refills() {
		resetAt := res.ResetAt
		resp.ResetAt = &resetAt
	}
	if !res.Allowed && res.Refills() {
		resp.RetryAfterSeconds = res.RetryAfter.Seconds()
	}
	if s.limiter != nil {
		resp.TrackedKeys = s.limiter.BucketCount()
	}
	return resp
}
