package tracker

import (
	"context"

	"xivtracker/internal/models"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/xivapi"
)

// GameData is the part of the XIVAPI client the service depends on.
type GameData interface {
	Character(ctx context.Context, id string) (*xivapi.CharacterProfile, error)
	SearchCharacters(ctx context.Context, name, world string) ([]models.CharacterSearchResult, error)
	Achievement(ctx context.Context, id int) (*models.Achievement, error)
	Quest(ctx context.Context, id int) (*models.Quest, error)
	ClassJobs(ctx context.Context) ([]models.ClassJob, error)
	LimitStatus() ratelimit.Result
	LimitKey() string
}

// ServiceInterface defines the tracker operations exposed over HTTP and the CLI.
type ServiceInterface interface {
	// ListCharacters pages through tracked characters
	ListCharacters(ctx context.Context, req *models.ListCharactersRequest) (*models.ListCharactersResponse, error)

	// GetProgress returns a tracked character with jobs, achievements, quests and stats
	GetProgress(ctx context.Context, id string) (*models.CharacterProgress, error)

	// SyncCharacter fetches a character from the game data API and stores it
	SyncCharacter(ctx context.Context, id string) (*models.SyncResponse, error)

	// DeleteCharacter stops tracking a character
	DeleteCharacter(ctx context.Context, id string) error

	// RecordJob sets a job level by hand
	RecordJob(ctx context.Context, id string, jobID int, req *models.RecordJobRequest) (*models.CharacterJob, error)

	// RecordQuest marks a quest complete; created is false if it already was
	RecordQuest(ctx context.Context, id string, req *models.RecordQuestRequest) (quest *models.CharacterQuest, created bool, err error)

	// RecordAchievement marks an achievement complete; created is false if it already was
	RecordAchievement(ctx context.Context, id string, req *models.RecordAchievementRequest) (achievement *models.CharacterAchievement, created bool, err error)

	// AchievementsSince lists achievements from the given patch onward
	AchievementsSince(ctx context.Context, id string, sincePatch string) (*models.AchievementsResponse, error)

	// SearchCharacters searches the game data API
	SearchCharacters(ctx context.Context, req *models.SearchCharactersRequest) (*models.SearchCharactersResponse, error)

	// RateLimitStatus reports the outbound budget without consuming it
	RateLimitStatus() *models.RateLimitStatusResponse
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)

// Ensure the XIVAPI client satisfies GameData
var _ GameData = (*xivapi.Client)(nil)
