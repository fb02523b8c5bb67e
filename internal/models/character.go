// Package models - Character progression domain types.
// This file holds the tracked character, its per-job levels, completed
// achievements and quests, and the reference game data they point at.
//
// Identity Design:
// - Characters are keyed by their Lodestone ID, a numeric string
// - Jobs, achievements and quests are keyed by their game data IDs
// - Progress rows use (character, item) composite keys so re-recording is an upsert
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxJobLevel is the current level cap.
const MaxJobLevel = 100

const maxCharacterIDLength = 12

// Character is a tracked player character.
type Character struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	Name             string     `json:"name" gorm:"index"`
	World            string     `json:"world" gorm:"index"`
	DataCenter       string     `json:"data_center,omitempty"`
	Race             string     `json:"race,omitempty"`
	Clan             string     `json:"clan,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	Avatar           string     `json:"avatar,omitempty"`
	Portrait         string     `json:"portrait,omitempty"`
	ActiveClassJobID int        `json:"active_class_job_id,omitempty"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CharacterJob is a character's progress on one class or job.
type CharacterJob struct {
	CharacterID   string    `json:"character_id" gorm:"primaryKey"`
	JobID         int       `json:"job_id" gorm:"primaryKey;autoIncrement:false"`
	Name          string    `json:"name"`
	Abbreviation  string    `json:"abbreviation,omitempty"`
	Level         int       `json:"level"`
	ExpLevel      int64     `json:"exp_level"`
	ExpLevelMax   int64     `json:"exp_level_max"`
	IsSpecialised bool      `json:"is_specialised"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Achievement is reference data from the game data API.
type Achievement struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points"`
	Icon        string `json:"icon,omitempty"`
	Patch       Patch  `json:"patch,omitempty"`
}

// CharacterAchievement records an achievement a character has completed.
// Name, points and patch are copied from the reference data at record time.
type CharacterAchievement struct {
	CharacterID   string    `json:"character_id" gorm:"primaryKey"`
	AchievementID int       `json:"achievement_id" gorm:"primaryKey;autoIncrement:false"`
	Name          string    `json:"name"`
	Points        int       `json:"points"`
	Patch         Patch     `json:"patch,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Quest is reference data from the game data API.
type Quest struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Genre         string `json:"genre,omitempty"`
	ClassJobLevel int    `json:"class_job_level,omitempty"`
	Patch         Patch  `json:"patch,omitempty"`
}

// CharacterQuest records a quest a character has completed.
type CharacterQuest struct {
	CharacterID string    `json:"character_id" gorm:"primaryKey"`
	QuestID     int       `json:"quest_id" gorm:"primaryKey;autoIncrement:false"`
	Name        string    `json:"name"`
	Patch       Patch     `json:"patch,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// ClassJob is reference data for a class or job.
type ClassJob struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// CharacterFilter selects tracked characters for listing.
type CharacterFilter struct {
	World  string `json:"world,omitempty"`
	Name   string `json:"name,omitempty"` // case-insensitive substring
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// CharacterProgress is the aggregate view of a tracked character.
type CharacterProgress struct {
	Character    *Character             `json:"character"`
	Jobs         []CharacterJob         `json:"jobs"`
	Achievements []CharacterAchievement `json:"achievements"`
	Quests       []CharacterQuest       `json:"quests"`
	Stats        ProgressStats          `json:"stats"`
}

type ProgressStats struct {
	JobsAtMaxLevel    int `json:"jobs_at_max_level"`
	HighestLevel      int `json:"highest_level"`
	AchievementCount  int `json:"achievement_count"`
	AchievementPoints int `json:"achievement_points"`
	QuestCount        int `json:"quest_count"`
}

// ValidateCharacterID checks that id looks like a Lodestone character ID.
func ValidateCharacterID(id string) error {
	if id == "" {
		return errors.New("character ID cannot be empty")
	}
	if len(id) > maxCharacterIDLength {
		return fmt.Errorf("character ID cannot exceed %d digits", maxCharacterIDLength)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("character ID must be numeric: %q", id)
		}
	}
	return nil
}

func (c *Character) Normalize() {
	c.Name = strings.Join(strings.Fields(c.Name), " ")
	c.World = strings.TrimSpace(c.World)
	c.DataCenter = strings.TrimSpace(c.DataCenter)
}

func (c *Character) Validate() error {
	if err := ValidateCharacterID(c.ID); err != nil {
		return err
	}
	if c.Name == "" {
		return errors.New("character name cannot be empty")
	}
	if c.World == "" {
		return errors.New("character world cannot be empty")
	}
	return nil
}

func (j *CharacterJob) Validate() error {
	if err := ValidateCharacterID(j.CharacterID); err != nil {
		return err
	}
	if j.JobID <= 0 {
		return errors.New("job ID must be positive")
	}
	if j.Level < 0 || j.Level > MaxJobLevel {
		return fmt.Errorf("job level must be between 0 and %d", MaxJobLevel)
	}
	if j.ExpLevel < 0 || j.ExpLevelMax < 0 {
		return errors.New("experience cannot be negative")
	}
	if j.ExpLevelMax > 0 && j.ExpLevel > j.ExpLevelMax {
		return errors.New("experience cannot exceed the level maximum")
	}
	return nil
}

func (a *Achievement) Validate() error {
	if a.ID <= 0 {
		return errors.New("achievement ID must be positive")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("achievement name cannot be empty")
	}
	if a.Points < 0 {
		return errors.New("achievement points cannot be negative")
	}
	if !a.Patch.IsZero() {
		if err := a.Patch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Quest) Validate() error {
	if q.ID <= 0 {
		return errors.New("quest ID must be positive")
	}
	if strings.TrimSpace(q.Name) == "" {
		return errors.New("quest name cannot be empty")
	}
	if q.ClassJobLevel < 0 || q.ClassJobLevel > MaxJobLevel {
		return fmt.Errorf("quest level must be between 0 and %d", MaxJobLevel)
	}
	if !q.Patch.IsZero() {
		if err := q.Patch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (cj *ClassJob) Validate() error {
	if cj.ID <= 0 {
		return errors.New("class job ID must be positive")
	}
	if cj.Name == "" {
		return errors.New("class job name cannot be empty")
	}
	return nil
}

// NewCharacterAchievement denormalises the reference achievement into a
// progress row.
func NewCharacterAchievement(characterID string, a *Achievement, completedAt time.Time) *CharacterAchievement {
	return &CharacterAchievement{
		CharacterID:   characterID,
		AchievementID: a.ID,
		Name:          a.Name,
		Points:        a.Points,
		Patch:         a.Patch,
		CompletedAt:   completedAt,
	}
}

func NewCharacterQuest(characterID string, q *Quest, completedAt time.Time) *CharacterQuest {
	return &CharacterQuest{
		CharacterID: characterID,
		QuestID:     q.ID,
		Name:        q.Name,
		Patch:       q.Patch,
		CompletedAt: completedAt,
	}
}

// ComputeStats summarises jobs, achievements and quests.
func ComputeStats(jobs []CharacterJob, achievements []CharacterAchievement, quests []CharacterQuest) ProgressStats {
	var s ProgressStats
	for _, j := range jobs {
		if j.Level >= MaxJobLevel {
			s.JobsAtMaxLevel++
		}
		if j.Level > s.HighestLevel {
			s.HighestLevel = j.Level
		}
	}
	for _, a := range achievements {
		s.AchievementPoints += a.Points
	}
	s.AchievementCount = len(achievements)
	s.QuestCount = len(quests)
	return s
}

// FilterAchievementsSince keeps achievements from patch since onward.
func FilterAchievementsSince(achievements []CharacterAchievement, since Patch) []CharacterAchievement {
	out := make([]CharacterAchievement, 0, len(achievements))
	for _, a := range achievements {
		if a.Patch.AtLeast(since) {
			out = append(out, a)
		}
	}
	return out
}
