// Package models - API request types and input validation.
// This file defines the incoming API request structures and their validation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input (trimmed names, collapsed whitespace) before validating
// - Provide sensible defaults for pagination
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListCharactersRequest pages through tracked characters.
type ListCharactersRequest struct {
	World  string `json:"world,omitempty"`
	Name   string `json:"name,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (r *ListCharactersRequest) Normalize() {
	r.World = strings.TrimSpace(r.World)
	r.Name = strings.TrimSpace(r.Name)
	if r.Limit == 0 {
		r.Limit = DefaultPageSize
	}
}

func (r *ListCharactersRequest) Validate() error {
	if r.Limit < 0 || r.Limit > MaxPageSize {
		return fmt.Errorf("limit must be between 1 and %d", MaxPageSize)
	}
	if r.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	return nil
}

func (r *ListCharactersRequest) Filter() CharacterFilter {
	return CharacterFilter{World: r.World, Name: r.Name, Limit: r.Limit, Offset: r.Offset}
}

// RecordJobRequest sets a job level by hand, for progress the API does not
// report yet.
type RecordJobRequest struct {
	Name         string `json:"name,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Level        int    `json:"level"`
	ExpLevel     int64  `json:"exp_level,omitempty"`
	ExpLevelMax  int64  `json:"exp_level_max,omitempty"`
}

func (r *RecordJobRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Abbreviation = strings.ToUpper(strings.TrimSpace(r.Abbreviation))
}

func (r *RecordJobRequest) Validate() error {
	if r.Level < 1 || r.Level > MaxJobLevel {
		return fmt.Errorf("level must be between 1 and %d", MaxJobLevel)
	}
	if r.ExpLevel < 0 || r.ExpLevelMax < 0 {
		return errors.New("experience cannot be negative")
	}
	if r.ExpLevelMax > 0 && r.ExpLevel > r.ExpLevelMax {
		return errors.New("experience cannot exceed the level maximum")
	}
	return nil
}

// RecordQuestRequest marks a quest complete. CompletedAt defaults to now.
type RecordQuestRequest struct {
	QuestID     int        `json:"quest_id"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r *RecordQuestRequest) Validate() error {
	if r.QuestID <= 0 {
		return errors.New("quest_id must be positive")
	}
	if r.CompletedAt != nil && r.CompletedAt.After(time.Now().Add(time.Minute)) {
		return errors.New("completed_at cannot be in the future")
	}
	return nil
}

// RecordAchievementRequest marks an achievement complete. CompletedAt
// defaults to now.
type RecordAchievementRequest struct {
	AchievementID int        `json:"achievement_id"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (r *RecordAchievementRequest) Validate() error {
	if r.AchievementID <= 0 {
		return errors.New("achievement_id must be positive")
	}
	if r.CompletedAt != nil && r.CompletedAt.After(time.Now().Add(time.Minute)) {
		return errors.New("completed_at cannot be in the future")
	}
	return nil
}

// SearchCharactersRequest searches the game data API by name, optionally
// within one world.
type SearchCharactersRequest struct {
	Name  string `json:"name"`
	World string `json:"world,omitempty"`
}

func (r *SearchCharactersRequest) Normalize() {
	r.Name = strings.Join(strings.Fields(r.Name), " ")
	r.World = strings.TrimSpace(r.World)
}

func (r *SearchCharactersRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) < 2 {
		return errors.New("name must be at least 2 characters")
	}
	if len(r.Name) > 32 {
		return errors.New("name cannot exceed 32 characters")
	}
	return nil
}
