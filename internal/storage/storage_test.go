package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xivtracker/internal/models"
)

var (
	day1 = time.Date(2024, 6, 28, 9, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
	day3 = day2.Add(24 * time.Hour)
)

func testCharacter(id, name, world string) *models.Character {
	return &models.Character{ID: id, Name: name, World: world, DataCenter: "Light"}
}

// runStorageTests exercises behaviour every backend must share. newStorage
// must return an empty store.
func runStorageTests(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStorage(t)

		chars, total, err := s.Characters(ctx, models.CharacterFilter{})
		require.NoError(t, err)
		assert.NotNil(t, chars)
		assert.Empty(t, chars)
		assert.Equal(t, 0, total)

		_, err = s.GetCharacter(ctx, "404")
		assert.ErrorIs(t, err, ErrNotFound)

		jobs, err := s.Jobs(ctx, "404")
		require.NoError(t, err)
		assert.Empty(t, jobs)

		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("save character preserves created at", func(t *testing.T) {
		s := newStorage(t)

		c := testCharacter("1001", "Thancred Waters", "Twintania")
		require.NoError(t, s.SaveCharacter(ctx, c))
		require.False(t, c.CreatedAt.IsZero())
		created := c.CreatedAt

		time.Sleep(5 * time.Millisecond)
		update := testCharacter("1001", "Thancred Waters", "Odin")
		require.NoError(t, s.SaveCharacter(ctx, update))

		got, err := s.GetCharacter(ctx, "1001")
		require.NoError(t, err)
		assert.Equal(t, "Odin", got.World)
		assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})

	t.Run("list filters and pages", func(t *testing.T) {
		s := newStorage(t)

		for _, c := range []*models.Character{
			testCharacter("1", "Urianger Augurelt", "Twintania"),
			testCharacter("2", "Alisaie Leveilleur", "Twintania"),
			testCharacter("3", "Alphinaud Leveilleur", "Odin"),
			testCharacter("4", "Estinien Varlineau", "twintania"),
		} {
			require.NoError(t, s.SaveCharacter(ctx, c))
		}

		chars, total, err := s.Characters(ctx, models.CharacterFilter{World: "Twintania"})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, chars, 3)
		assert.Equal(t, "Alisaie Leveilleur", chars[0].Name)
		assert.Equal(t, "Estinien Varlineau", chars[1].Name)
		assert.Equal(t, "Urianger Augurelt", chars[2].Name)

		chars, total, err = s.Characters(ctx, models.CharacterFilter{Name: "leveil"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, chars, 2)
		assert.Equal(t, "2", chars[0].ID)
		assert.Equal(t, "3", chars[1].ID)

		chars, total, err = s.Characters(ctx, models.CharacterFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, chars, 2)
		assert.Equal(t, "Alphinaud Leveilleur", chars[0].Name)
		assert.Equal(t, "Estinien Varlineau", chars[1].Name)

		chars, total, err = s.Characters(ctx, models.CharacterFilter{Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, chars)
	})

	t.Run("jobs upsert", func(t *testing.T) {
		s := newStorage(t)

		err := s.SaveJob(ctx, &models.CharacterJob{CharacterID: "77", JobID: 19, Level: 90})
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SaveCharacter(ctx, testCharacter("77", "Y'shtola Rhul", "Ultros")))
		require.NoError(t, s.SaveJob(ctx, &models.CharacterJob{CharacterID: "77", JobID: 25, Name: "black mage", Level: 90}))
		require.NoError(t, s.SaveJob(ctx, &models.CharacterJob{CharacterID: "77", JobID: 19, Name: "paladin", Level: 50}))
		require.NoError(t, s.SaveJob(ctx, &models.CharacterJob{CharacterID: "77", JobID: 25, Name: "black mage", Level: 100}))

		jobs, err := s.Jobs(ctx, "77")
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, 19, jobs[0].JobID)
		assert.Equal(t, 25, jobs[1].JobID)
		assert.Equal(t, 100, jobs[1].Level)
		assert.False(t, jobs[1].UpdatedAt.IsZero())
	})

	t.Run("achievements recorded once", func(t *testing.T) {
		s := newStorage(t)

		_, err := s.SaveAchievement(ctx, &models.CharacterAchievement{CharacterID: "9", AchievementID: 1, CompletedAt: day1})
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.SaveCharacter(ctx, testCharacter("9", "G'raha Tia", "Ultros")))

		created, err := s.SaveAchievement(ctx, &models.CharacterAchievement{
			CharacterID: "9", AchievementID: 1, Name: "First", Points: 5, Patch: "6.0", CompletedAt: day1,
		})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.SaveAchievement(ctx, &models.CharacterAchievement{
			CharacterID: "9", AchievementID: 1, Name: "First", Points: 5, Patch: "6.0", CompletedAt: day3,
		})
		require.NoError(t, err)
		assert.False(t, created)

		created, err = s.SaveAchievement(ctx, &models.CharacterAchievement{
			CharacterID: "9", AchievementID: 2, Name: "Second", Points: 10, Patch: "7.0", CompletedAt: day2,
		})
		require.NoError(t, err)
		assert.True(t, created)

		got, err := s.Achievements(ctx, "9")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 2, got[0].AchievementID)
		assert.Equal(t, models.Patch("7.0"), got[0].Patch)
		assert.Equal(t, 1, got[1].AchievementID)
		assert.WithinDuration(t, day1, got[1].CompletedAt, time.Millisecond)
	})

	t.Run("quests recorded once", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveCharacter(ctx, testCharacter("9", "G'raha Tia", "Ultros")))

		for i, at := range []time.Time{day1, day3, day2} {
			created, err := s.SaveQuest(ctx, &models.CharacterQuest{
				CharacterID: "9", QuestID: 100 + i, Name: fmt.Sprintf("Quest %d", i), Patch: "7.0", CompletedAt: at,
			})
			require.NoError(t, err)
			assert.True(t, created)
		}
		created, err := s.SaveQuest(ctx, &models.CharacterQuest{CharacterID: "9", QuestID: 100, CompletedAt: day3})
		require.NoError(t, err)
		assert.False(t, created)

		got, err := s.Quests(ctx, "9")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []int{101, 102, 100}, []int{got[0].QuestID, got[1].QuestID, got[2].QuestID})
		assert.Equal(t, "Quest 0", got[2].Name)
	})

	t.Run("delete cascades", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.SaveCharacter(ctx, testCharacter("5", "Krile Baldesion", "Odin")))
		require.NoError(t, s.SaveJob(ctx, &models.CharacterJob{CharacterID: "5", JobID: 24, Level: 80}))
		_, err := s.SaveAchievement(ctx, &models.CharacterAchievement{CharacterID: "5", AchievementID: 1, CompletedAt: day1})
		require.NoError(t, err)
		_, err = s.SaveQuest(ctx, &models.CharacterQuest{CharacterID: "5", QuestID: 1, CompletedAt: day1})
		require.NoError(t, err)

		require.NoError(t, s.DeleteCharacter(ctx, "5"))

		_, err = s.GetCharacter(ctx, "5")
		assert.ErrorIs(t, err, ErrNotFound)
		jobs, err := s.Jobs(ctx, "5")
		require.NoError(t, err)
		assert.Empty(t, jobs)
		achievements, err := s.Achievements(ctx, "5")
		require.NoError(t, err)
		assert.Empty(t, achievements)
		quests, err := s.Quests(ctx, "5")
		require.NoError(t, err)
		assert.Empty(t, quests)

		assert.ErrorIs(t, s.DeleteCharacter(ctx, "5"), ErrNotFound)
	})
}
