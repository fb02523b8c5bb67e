package xivapi

import (
	"strconv"
	"strings"
	"time"

	"xivtracker/internal/models"
)

// XIVAPI responses use PascalCase keys. These structs mirror the subset the
// tracker reads and are converted to models before leaving the package.

type namedWire struct {
	ID   int    `json:"ID"`
	Name string `json:"Name"`
}

type patchWire struct {
	Version string `json:"Version"`
}

type classJobWire struct {
	ClassID       int       `json:"ClassID"`
	JobID         int       `json:"JobID"`
	Name          string    `json:"Name"`
	Level         int       `json:"Level"`
	ExpLevel      int64     `json:"ExpLevel"`
	ExpLevelMax   int64     `json:"ExpLevelMax"`
	IsSpecialised bool      `json:"IsSpecialised"`
	UnlockedState namedWire `json:"UnlockedState"`
}

type characterWire struct {
	ID             int64          `json:"ID"`
	Name           string         `json:"Name"`
	Server         string         `json:"Server"`
	DC             string         `json:"DC"`
	Avatar         string         `json:"Avatar"`
	Portrait       string         `json:"Portrait"`
	Gender         int            `json:"Gender"`
	Race           namedWire      `json:"Race"`
	Tribe          namedWire      `json:"Tribe"`
	ActiveClassJob *classJobWire  `json:"ActiveClassJob"`
	ClassJobs      []classJobWire `json:"ClassJobs"`
}

type achievementListWire struct {
	List []struct {
		ID   int   `json:"ID"`
		Date int64 `json:"Date"`
	} `json:"List"`
	Points int `json:"Points"`
}

type characterResponse struct {
	Character    *characterWire       `json:"Character"`
	Achievements *achievementListWire `json:"Achievements"`
}

type searchResponse struct {
	Results []struct {
		ID     int64  `json:"ID"`
		Name   string `json:"Name"`
		Server string `json:"Server"`
		Avatar string `json:"Avatar"`
	} `json:"Results"`
}

type achievementWire struct {
	ID          int        `json:"ID"`
	Name        string     `json:"Name"`
	Description string     `json:"Description"`
	Points      int        `json:"Points"`
	Icon        string     `json:"Icon"`
	GamePatch   *patchWire `json:"GamePatch"`
}

type questWire struct {
	ID             int        `json:"ID"`
	Name           string     `json:"Name"`
	ClassJobLevel0 int        `json:"ClassJobLevel0"`
	JournalGenre   *namedWire `json:"JournalGenre"`
	GamePatch      *patchWire `json:"GamePatch"`
}

type classJobListResponse struct {
	Results []struct {
		ID           int    `json:"ID"`
		Name         string `json:"Name"`
		Abbreviation string `json:"Abbreviation"`
	} `json:"Results"`
}

// AchievementCompletion is one entry of a character's public achievement list.
type AchievementCompletion struct {
	ID          int
	CompletedAt time.Time
}

// CharacterProfile is a character as reported by XIVAPI.
type CharacterProfile struct {
	Character         models.Character
	Jobs              []models.CharacterJob
	Achievements      []AchievementCompletion
	AchievementPoints int
	// AchievementsPublic is false when the character hides achievements.
	AchievementsPublic bool
}

func (p *patchWire) patch() models.Patch {
	if p == nil {
		return ""
	}
	return models.Patch(p.Version)
}

func genderName(g int) string {
	switch g {
	case 1:
		return "male"
	case 2:
		return "female"
	default:
		return ""
	}
}

func (w *characterWire) toProfile(a *achievementListWire) *CharacterProfile {
	p := &CharacterProfile{
		Character: models.Character{
			ID:         strconv.FormatInt(w.ID, 10),
			Name:       w.Name,
			World:      w.Server,
			DataCenter: w.DC,
			Race:       w.Race.Name,
			Clan:       w.Tribe.Name,
			Gender:     genderName(w.Gender),
			Avatar:     w.Avatar,
			Portrait:   w.Portrait,
		},
	}
	if w.ActiveClassJob != nil {
		p.Character.ActiveClassJobID = w.ActiveClassJob.jobID()
	}
	p.Character.Normalize()

	for _, cj := range w.ClassJobs {
		if cj.Level <= 0 {
			continue
		}
		p.Jobs = append(p.Jobs, models.CharacterJob{
			CharacterID:   p.Character.ID,
			JobID:         cj.jobID(),
			Name:          cj.displayName(),
			Level:         cj.Level,
			ExpLevel:      cj.ExpLevel,
			ExpLevelMax:   cj.ExpLevelMax,
			IsSpecialised: cj.IsSpecialised,
		})
	}

	if a != nil {
		p.AchievementsPublic = true
		p.AchievementPoints = a.Points
		for _, e := range a.List {
			p.Achievements = append(p.Achievements, AchievementCompletion{
				ID:          e.ID,
				CompletedAt: time.Unix(e.Date, 0).UTC(),
			})
		}
	}
	return p
}

// jobID prefers the job over its base class so a paladin is recorded as
// paladin rather than gladiator.
func (cj *classJobWire) jobID() int {
	if cj.JobID > 0 {
		return cj.JobID
	}
	return cj.ClassID
}

func (cj *classJobWire) displayName() string {
	if cj.UnlockedState.Name != "" {
		return strings.ToLower(cj.UnlockedState.Name)
	}
	// "paladin / gladiator"
	name, _, _ := strings.Cut(cj.Name, " / ")
	return strings.TrimSpace(name)
}

func (w *achievementWire) toModel() models.Achievement {
	return models.Achievement{
		ID:          w.ID,
		Name:        strings.TrimSpace(w.Name),
		Description: w.Description,
		Points:      w.Points,
		Icon:        w.Icon,
		Patch:       w.GamePatch.patch(),
	}
}

func (w *questWire) toModel() models.Quest {
	q := models.Quest{
		ID:            w.ID,
		Name:          strings.TrimSpace(w.Name),
		ClassJobLevel: w.ClassJobLevel0,
		Patch:         w.GamePatch.patch(),
	}
	if w.JournalGenre != nil {
		q.Genre = w.JournalGenre.Name
	}
	return q
}

// splitServer turns "Twintania [Light]" into its world name.
func splitServer(s string) string {
	world, _, _ := strings.Cut(s, " [")
	return strings.TrimSpace(world)
}
