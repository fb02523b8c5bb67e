package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"xivtracker/internal/clock"
	"xivtracker/internal/logger"
	"xivtracker/internal/models"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/storage"
	"xivtracker/internal/xivapi"
)

var epoch = time.Date(2024, 7, 2, 12, 0, 0, 0, time.UTC)

// MockGameData implements GameData for testing
type MockGameData struct {
	mock.Mock
}

func (m *MockGameData) Character(ctx context.Context, id string) (*xivapi.CharacterProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*xivapi.CharacterProfile), args.Error(1)
}

func (m *MockGameData) SearchCharacters(ctx context.Context, name, world string) ([]models.CharacterSearchResult, error) {
	args := m.Called(ctx, name, world)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CharacterSearchResult), args.Error(1)
}

func (m *MockGameData) Achievement(ctx context.Context, id int) (*models.Achievement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Achievement), args.Error(1)
}

func (m *MockGameData) Quest(ctx context.Context, id int) (*models.Quest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quest), args.Error(1)
}

func (m *MockGameData) ClassJobs(ctx context.Context) ([]models.ClassJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ClassJob), args.Error(1)
}

func (m *MockGameData) LimitStatus() ratelimit.Result {
	return m.Called().Get(0).(ratelimit.Result)
}

func (m *MockGameData) LimitKey() string {
	return m.Called().String(0)
}

func newTestService(t *testing.T) (*Service, *MockGameData, storage.Storage) {
	t.Helper()
	store, err := storage.NewMemoryStorage(storage.Config{})
	require.NoError(t, err)
	gameData := &MockGameData{}
	t.Cleanup(func() { gameData.AssertExpectations(t) })

	svc := NewService(store, gameData, WithClock(clock.NewFake(epoch)), WithLogger(logger.Discard()))
	return svc, gameData, store
}

func seedCharacter(t *testing.T, store storage.Storage, id string) {
	t.Helper()
	require.NoError(t, store.SaveCharacter(context.Background(), &models.Character{ID: id, Name: "Alisaie Leveilleur", World: "Twintania"}))
}

func testProfile(id string) *xivapi.CharacterProfile {
	return &xivapi.CharacterProfile{
		Character: models.Character{ID: id, Name: "Alisaie Leveilleur", World: "Twintania", DataCenter: "Light"},
		Jobs: []models.CharacterJob{
			{CharacterID: id, JobID: 35, Name: "red mage", Level: 100},
			{CharacterID: id, JobID: 19, Name: "paladin", Level: 70},
		},
		Achievements: []xivapi.AchievementCompletion{
			{ID: 1, CompletedAt: epoch.Add(-48 * time.Hour)},
			{ID: 2, CompletedAt: epoch.Add(-24 * time.Hour)},
		},
		AchievementsPublic: true,
	}
}

func requireServiceError(t *testing.T, err error, code string, status int) *ServiceError {
	t.Helper()
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "expected *ServiceError, got %v", err)
	assert.Equal(t, code, svcErr.Code)
	assert.Equal(t, status, svcErr.StatusCode)
	return svcErr
}

func TestSyncCharacter(t *testing.T) {
	svc, gameData, store := newTestService(t)
	ctx := context.Background()

	gameData.On("Character", ctx, "1001").Return(testProfile("1001"), nil).Once()
	gameData.On("Achievement", ctx, 1).Return(&models.Achievement{ID: 1, Name: "First", Points: 5, Patch: "6.0"}, nil).Once()
	gameData.On("Achievement", ctx, 2).Return(&models.Achievement{ID: 2, Name: "Second", Points: 10, Patch: "7.0"}, nil).Once()

	resp, err := svc.SyncCharacter(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.JobsUpdated)
	assert.Equal(t, 2, resp.AchievementsAdded)
	assert.Equal(t, epoch, resp.SyncedAt)
	require.NotNil(t, resp.Character.LastSyncedAt)
	assert.Equal(t, epoch, *resp.Character.LastSyncedAt)

	progress, err := svc.GetProgress(ctx, "1001")
	require.NoError(t, err)
	assert.Len(t, progress.Jobs, 2)
	assert.Equal(t, 1, progress.Stats.JobsAtMaxLevel)
	assert.Equal(t, 15, progress.Stats.AchievementPoints)

	achievements, err := store.Achievements(ctx, "1001")
	require.NoError(t, err)
	require.Len(t, achievements, 2)
	assert.Equal(t, "Second", achievements[0].Name)
}

func TestSyncCharacter_Resync(t *testing.T) {
	svc, gameData, _ := newTestService(t)
	ctx := context.Background()

	gameData.On("Character", ctx, "1001").Return(testProfile("1001"), nil).Once()
	gameData.On("Achievement", ctx, 1).Return(&models.Achievement{ID: 1, Name: "First", Points: 5}, nil).Once()
	gameData.On("Achievement", ctx, 2).Return(&models.Achievement{ID: 2, Name: "Second", Points: 10}, nil).Once()
	_, err := svc.SyncCharacter(ctx, "1001")
	require.NoError(t, err)

	again := testProfile("1001")
	again.Jobs[1].Level = 71
	gameData.On("Character", ctx, "1001").Return(again, nil).Once()

	resp, err := svc.SyncCharacter(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.JobsUpdated, "only the changed job is written")
	assert.Equal(t, 0, resp.AchievementsAdded, "recorded achievements are not looked up again")
}

func TestSyncCharacter_RateLimitedMidway(t *testing.T) {
	svc, gameData, store := newTestService(t)
	ctx := context.Background()

	rle := &xivapi.RateLimitExceededError{Key: "xivapi.com", RetryAfter: 1500 * time.Millisecond, ResetAt: epoch.Add(time.Second)}
	gameData.On("Character", ctx, "1001").Return(testProfile("1001"), nil).Once()
	gameData.On("Achievement", ctx, 1).Return(&models.Achievement{ID: 1, Name: "First", Points: 5}, nil).Once()
	gameData.On("Achievement", ctx, 2).Return(nil, fmt.Errorf("fetching achievement 2: %w", rle)).Once()

	_, err := svc.SyncCharacter(ctx, "1001")
	svcErr := requireServiceError(t, err, models.ErrorCodeRateLimitExceeded, http.StatusTooManyRequests)
	assert.Equal(t, 1500*time.Millisecond, svcErr.RetryAfter)
	assert.ErrorIs(t, err, xivapi.ErrRateLimitExceeded)

	achievements, err := store.Achievements(ctx, "1001")
	require.NoError(t, err)
	assert.Len(t, achievements, 1, "progress before the denial is kept")
}

func TestSyncCharacter_SkipsUnknownAchievement(t *testing.T) {
	svc, gameData, _ := newTestService(t)
	ctx := context.Background()

	gameData.On("Character", ctx, "1001").Return(testProfile("1001"), nil).Once()
	gameData.On("Achievement", ctx, 1).Return(nil, xivapi.ErrNotFound).Once()
	gameData.On("Achievement", ctx, 2).Return(&models.Achievement{ID: 2, Name: "Second", Points: 10}, nil).Once()

	resp, err := svc.SyncCharacter(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AchievementsAdded)
}

func TestSyncCharacter_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid id", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.SyncCharacter(ctx, "abc")
		requireServiceError(t, err, models.ErrorCodeInvalidRequest, http.StatusBadRequest)
	})

	t.Run("not found upstream", func(t *testing.T) {
		svc, gameData, _ := newTestService(t)
		gameData.On("Character", ctx, "404").Return(nil, fmt.Errorf("fetching character 404: %w", xivapi.ErrNotFound))
		_, err := svc.SyncCharacter(ctx, "404")
		requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
	})

	t.Run("rate limited", func(t *testing.T) {
		svc, gameData, _ := newTestService(t)
		gameData.On("Character", ctx, "1").Return(nil, &xivapi.RateLimitExceededError{Key: "k"})
		_, err := svc.SyncCharacter(ctx, "1")
		svcErr := requireServiceError(t, err, models.ErrorCodeRateLimitExceeded, http.StatusTooManyRequests)
		assert.Zero(t, svcErr.RetryAfter)
	})

	t.Run("upstream failure", func(t *testing.T) {
		svc, gameData, _ := newTestService(t)
		gameData.On("Character", ctx, "1").Return(nil, &xivapi.StatusError{StatusCode: 503, Path: "/character/1"})
		_, err := svc.SyncCharacter(ctx, "1")
		requireServiceError(t, err, models.ErrorCodeUpstreamError, http.StatusBadGateway)
	})
}

func TestListCharacters(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		seedCharacter(t, store, id)
	}

	resp, err := svc.ListCharacters(ctx, &models.ListCharactersRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Characters, 2)
	assert.Equal(t, 3, resp.TotalCount)
	assert.True(t, resp.HasMore)

	resp, err = svc.ListCharacters(ctx, &models.ListCharactersRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Characters, 1)
	assert.False(t, resp.HasMore)

	_, err = svc.ListCharacters(ctx, &models.ListCharactersRequest{Limit: 500})
	requireServiceError(t, err, models.ErrorCodeInvalidRequest, http.StatusBadRequest)
}

func TestGetProgress_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetProgress(context.Background(), "999")
	requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
}

func TestDeleteCharacter(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedCharacter(t, store, "1")

	require.NoError(t, svc.DeleteCharacter(ctx, "1"))
	err := svc.DeleteCharacter(ctx, "1")
	requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
}

func TestRecordJob(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit name skips lookup", func(t *testing.T) {
		svc, _, store := newTestService(t)
		seedCharacter(t, store, "1")

		job, err := svc.RecordJob(ctx, "1", 41, &models.RecordJobRequest{Name: "viper", Abbreviation: "vpr", Level: 100})
		require.NoError(t, err)
		assert.Equal(t, "VPR", job.Abbreviation)
		assert.Equal(t, epoch, job.UpdatedAt)
	})

	t.Run("name filled from class jobs", func(t *testing.T) {
		svc, gameData, store := newTestService(t)
		seedCharacter(t, store, "1")
		gameData.On("ClassJobs", ctx).Return([]models.ClassJob{{ID: 41, Name: "viper", Abbreviation: "VPR"}}, nil)

		job, err := svc.RecordJob(ctx, "1", 41, &models.RecordJobRequest{Level: 92})
		require.NoError(t, err)
		assert.Equal(t, "viper", job.Name)
		assert.Equal(t, "VPR", job.Abbreviation)

		jobs, err := store.Jobs(ctx, "1")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 92, jobs[0].Level)
	})

	t.Run("unknown job", func(t *testing.T) {
		svc, gameData, store := newTestService(t)
		seedCharacter(t, store, "1")
		gameData.On("ClassJobs", ctx).Return([]models.ClassJob{{ID: 41, Name: "viper"}}, nil)

		_, err := svc.RecordJob(ctx, "1", 99, &models.RecordJobRequest{Level: 50})
		requireServiceError(t, err, models.ErrorCodeValidation, http.StatusUnprocessableEntity)
	})

	t.Run("lookup failure still records", func(t *testing.T) {
		svc, gameData, store := newTestService(t)
		seedCharacter(t, store, "1")
		gameData.On("ClassJobs", ctx).Return(nil, &xivapi.RateLimitExceededError{Key: "k"})

		job, err := svc.RecordJob(ctx, "1", 41, &models.RecordJobRequest{Level: 50})
		require.NoError(t, err)
		assert.Empty(t, job.Name)
	})

	t.Run("invalid level", func(t *testing.T) {
		svc, _, store := newTestService(t)
		seedCharacter(t, store, "1")
		_, err := svc.RecordJob(ctx, "1", 41, &models.RecordJobRequest{Level: 101})
		requireServiceError(t, err, models.ErrorCodeValidation, http.StatusUnprocessableEntity)
	})

	t.Run("unknown character", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.RecordJob(ctx, "1", 41, &models.RecordJobRequest{Level: 50})
		requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
	})
}

func TestRecordQuest(t *testing.T) {
	svc, gameData, store := newTestService(t)
	ctx := context.Background()
	seedCharacter(t, store, "1")
	gameData.On("Quest", ctx, 70000).Return(&models.Quest{ID: 70000, Name: "Dawntrail", Patch: "7.0"}, nil).Twice()

	row, created, err := svc.RecordQuest(ctx, "1", &models.RecordQuestRequest{QuestID: 70000})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, epoch, row.CompletedAt)
	assert.Equal(t, "Dawntrail", row.Name)

	_, created, err = svc.RecordQuest(ctx, "1", &models.RecordQuestRequest{QuestID: 70000})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRecordQuest_UnknownCharacterSpendsNoBudget(t *testing.T) {
	svc, gameData, _ := newTestService(t)

	_, _, err := svc.RecordQuest(context.Background(), "1", &models.RecordQuestRequest{QuestID: 65})
	requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
	gameData.AssertNotCalled(t, "Quest", mock.Anything, mock.Anything)
}

func TestRecordAchievement(t *testing.T) {
	svc, gameData, store := newTestService(t)
	ctx := context.Background()
	seedCharacter(t, store, "1")

	completed := epoch.Add(-time.Hour)
	gameData.On("Achievement", ctx, 7).Return(&models.Achievement{ID: 7, Name: "Seven", Points: 10, Patch: "7.0"}, nil).Once()
	gameData.On("Achievement", ctx, 8).Return(nil, xivapi.ErrNotFound).Once()

	row, created, err := svc.RecordAchievement(ctx, "1", &models.RecordAchievementRequest{AchievementID: 7, CompletedAt: &completed})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, completed, row.CompletedAt)
	assert.Equal(t, 10, row.Points)

	_, _, err = svc.RecordAchievement(ctx, "1", &models.RecordAchievementRequest{AchievementID: 8})
	requireServiceError(t, err, models.ErrorCodeNotFound, http.StatusNotFound)

	_, _, err = svc.RecordAchievement(ctx, "1", &models.RecordAchievementRequest{})
	requireServiceError(t, err, models.ErrorCodeValidation, http.StatusUnprocessableEntity)
}

func TestAchievementsSince(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	seedCharacter(t, store, "1")

	for i, patch := range []models.Patch{"6.58", "7.0", "7.05"} {
		_, err := store.SaveAchievement(ctx, &models.CharacterAchievement{
			CharacterID: "1", AchievementID: i + 1, Points: 10, Patch: patch, CompletedAt: epoch.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	resp, err := svc.AchievementsSince(ctx, "1", "7.0")
	require.NoError(t, err)
	assert.Len(t, resp.Achievements, 2)
	assert.Equal(t, 20, resp.TotalPoints)
	assert.Equal(t, models.Patch("7.0"), resp.SincePatch)

	resp, err = svc.AchievementsSince(ctx, "1", "")
	require.NoError(t, err)
	assert.Len(t, resp.Achievements, 3)

	_, err = svc.AchievementsSince(ctx, "1", "seven")
	requireServiceError(t, err, models.ErrorCodeInvalidRequest, http.StatusBadRequest)

	_, err = svc.AchievementsSince(ctx, "2", "7.0")
	requireServiceError(t, err, models.ErrorCodeCharacterNotFound, http.StatusNotFound)
}

func TestSearchCharacters(t *testing.T) {
	svc, gameData, _ := newTestService(t)
	ctx := context.Background()

	results := []models.CharacterSearchResult{{ID: "1", Name: "Y'shtola Rhul", World: "Ultros"}}
	gameData.On("SearchCharacters", ctx, "Y'shtola Rhul", "Ultros").Return(results, nil)

	resp, err := svc.SearchCharacters(ctx, &models.SearchCharactersRequest{Name: " Y'shtola  Rhul ", World: "Ultros"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, results, resp.Results)

	_, err = svc.SearchCharacters(ctx, &models.SearchCharactersRequest{Name: "Y"})
	requireServiceError(t, err, models.ErrorCodeInvalidRequest, http.StatusBadRequest)
}

func TestRateLimitStatus(t *testing.T) {
	t.Run("available", func(t *testing.T) {
		svc, gameData, _ := newTestService(t)
		gameData.On("LimitKey").Return("xivapi.com")
		gameData.On("LimitStatus").Return(ratelimit.Result{Allowed: true, Limit: 20, Remaining: 19, ResetAt: epoch.Add(time.Second)})

		resp := svc.RateLimitStatus()
		assert.Equal(t, "xivapi.com", resp.Key)
		assert.Equal(t, 19, resp.Remaining)
		require.NotNil(t, resp.ResetAt)
		assert.Equal(t, epoch.Add(time.Second), *resp.ResetAt)
		assert.Zero(t, resp.RetryAfterSeconds)
	})

	t.Run("exhausted and never refills", func(t *testing.T) {
		svc, gameData, _ := newTestService(t)
		gameData.On("LimitKey").Return("xivapi.com")
		gameData.On("LimitStatus").Return(ratelimit.Result{Allowed: false, Limit: 1})

		resp := svc.RateLimitStatus()
		assert.False(t, resp.Allowed)
		assert.Nil(t, resp.ResetAt)
		assert.Zero(t, resp.RetryAfterSeconds)
	})

	t.Run("tracked keys from limiter", func(t *testing.T) {
		store, err := storage.NewMemoryStorage(storage.Config{})
		require.NoError(t, err)
		limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxTokens: 2, RefillRate: 1, RefillInterval: time.Second})
		require.NoError(t, err)
		defer limiter.Close()
		limiter.TryConsume("a")
		limiter.TryConsume("b")

		gameData := &MockGameData{}
		gameData.On("LimitKey").Return("a")
		gameData.On("LimitStatus").Return(limiter.Status("a"))

		svc := NewService(store, gameData, WithLimiter(limiter))
		assert.Equal(t, 2, svc.RateLimitStatus().TrackedKeys)
	})
}

func TestServiceError(t *testing.T) {
	inner := errors.New("disk full")
	err := NewInternalError("failed to save", inner)
	assert.Equal(t, "failed to save: disk full", err.Error())
	assert.ErrorIs(t, err, inner)

	assert.Equal(t, "character '7' not found", NewCharacterNotFoundError("7").Error())
}
