package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"xivtracker/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// Data is lost on restart. All reads return copies.
type MemoryStorage struct {
	mu           sync.RWMutex
	characters   map[string]*models.Character
	jobs         map[string]map[int]models.CharacterJob // character ID -> job ID
	achievements map[string]map[int]models.CharacterAchievement
	quests       map[string]map[int]models.CharacterQuest
	now          func() time.Time
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		characters:   make(map[string]*models.Character),
		jobs:         make(map[string]map[int]models.CharacterJob),
		achievements: make(map[string]map[int]models.CharacterAchievement),
		quests:       make(map[string]map[int]models.CharacterQuest),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (m *MemoryStorage) Characters(ctx context.Context, filter models.CharacterFilter) ([]*models.Character, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.Character, 0, len(m.characters))
	for _, c := range m.characters {
		if matchesFilter(c, filter) {
			cc := *c
			matched = append(matched, &cc)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	return paginate(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (m *MemoryStorage) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.characters[id]
	if !ok {
		return nil, characterNotFound(id)
	}
	cc := *c
	return &cc, nil
}

func (m *MemoryStorage) SaveCharacter(ctx context.Context, character *models.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cc := *character
	now := m.now()
	if existing, ok := m.characters[cc.ID]; ok {
		cc.CreatedAt = existing.CreatedAt
	} else if cc.CreatedAt.IsZero() {
		cc.CreatedAt = now
	}
	cc.UpdatedAt = now
	m.characters[cc.ID] = &cc

	character.CreatedAt = cc.CreatedAt
	character.UpdatedAt = cc.UpdatedAt
	return nil
}

func (m *MemoryStorage) DeleteCharacter(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.characters[id]; !ok {
		return characterNotFound(id)
	}
	delete(m.characters, id)
	delete(m.jobs, id)
	delete(m.achievements, id)
	delete(m.quests, id)
	return nil
}

func (m *MemoryStorage) Jobs(ctx context.Context, characterID string) ([]models.CharacterJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]models.CharacterJob, 0, len(m.jobs[characterID]))
	for _, j := range m.jobs[characterID] {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobID < jobs[j].JobID })
	return jobs, nil
}

func (m *MemoryStorage) SaveJob(ctx context.Context, job *models.CharacterJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.characters[job.CharacterID]; !ok {
		return characterNotFound(job.CharacterID)
	}
	if m.jobs[job.CharacterID] == nil {
		m.jobs[job.CharacterID] = make(map[int]models.CharacterJob)
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = m.now()
	}
	m.jobs[job.CharacterID][job.JobID] = *job
	return nil
}

func (m *MemoryStorage) Achievements(ctx context.Context, characterID string) ([]models.CharacterAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.CharacterAchievement, 0, len(m.achievements[characterID]))
	for _, a := range m.achievements[characterID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CompletedAt, out[j].CompletedAt, out[i].AchievementID, out[j].AchievementID)
	})
	return out, nil
}

func (m *MemoryStorage) SaveAchievement(ctx context.Context, achievement *models.CharacterAchievement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.characters[achievement.CharacterID]; !ok {
		return false, characterNotFound(achievement.CharacterID)
	}
	byID := m.achievements[achievement.CharacterID]
	if byID == nil {
		byID = make(map[int]models.CharacterAchievement)
		m.achievements[achievement.CharacterID] = byID
	}
	if _, exists := byID[achievement.AchievementID]; exists {
		return false, nil
	}
	byID[achievement.AchievementID] = *achievement
	return true, nil
}

func (m *MemoryStorage) Quests(ctx context.Context, characterID string) ([]models.CharacterQuest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.CharacterQuest, 0, len(m.quests[characterID]))
	for _, q := range m.quests[characterID] {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CompletedAt, out[j].CompletedAt, out[i].QuestID, out[j].QuestID)
	})
	return out, nil
}

func (m *MemoryStorage) SaveQuest(ctx context.Context, quest *models.CharacterQuest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.characters[quest.CharacterID]; !ok {
		return false, characterNotFound(quest.CharacterID)
	}
	byID := m.quests[quest.CharacterID]
	if byID == nil {
		byID = make(map[int]models.CharacterQuest)
		m.quests[quest.CharacterID] = byID
	}
	if _, exists := byID[quest.QuestID]; exists {
		return false, nil
	}
	byID[quest.QuestID] = *quest
	return true, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStorage) Close() error {
	return nil
}

func matchesFilter(c *models.Character, f models.CharacterFilter) bool {
	if f.World != "" && !strings.EqualFold(c.World, f.World) {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Name)) {
		return false
	}
	return true
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// newerFirst orders completions most recent first, then by ascending ID.
func newerFirst(ti, tj time.Time, idI, idJ int) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idI < idJ
}
