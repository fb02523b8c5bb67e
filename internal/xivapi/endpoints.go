package xivapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"xivtracker/internal/models"
)

// Character fetches a character profile with class/jobs and, when public,
// the achievement list.
func (c *Client) Character(ctx context.Context, id string) (*CharacterProfile, error) {
	if err := models.ValidateCharacterID(id); err != nil {
		return nil, err
	}

	var resp characterResponse
	query := url.Values{"data": {"AC"}, "extended": {"1"}}
	if err := c.get(ctx, "/character/"+id, query, &resp); err != nil {
		return nil, fmt.Errorf("fetching character %s: %w", id, err)
	}
	if resp.Character == nil {
		return nil, fmt.Errorf("fetching character %s: %w", id, ErrNotFound)
	}

	profile := resp.Character.toProfile(resp.Achievements)
	if err := profile.Character.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid character %s: %v", ErrUpstream, id, err)
	}
	for i := range profile.Jobs {
		if err := profile.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: invalid job for character %s: %v", ErrUpstream, id, err)
		}
	}
	return profile, nil
}

// SearchCharacters looks characters up by name, optionally on one world.
func (c *Client) SearchCharacters(ctx context.Context, name, world string) ([]models.CharacterSearchResult, error) {
	query := url.Values{"name": {name}}
	if world != "" {
		query.Set("server", world)
	}

	var resp searchResponse
	if err := c.get(ctx, "/character/search", query, &resp); err != nil {
		return nil, fmt.Errorf("searching characters: %w", err)
	}

	results := make([]models.CharacterSearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, models.CharacterSearchResult{
			ID:     strconv.FormatInt(r.ID, 10),
			Name:   r.Name,
			World:  splitServer(r.Server),
			Avatar: r.Avatar,
		})
	}
	return results, nil
}

// Achievement returns reference data for one achievement.
func (c *Client) Achievement(ctx context.Context, id int) (*models.Achievement, error) {
	a, err := cached(ctx, c, fmt.Sprintf("achievement:%d", id), func() (models.Achievement, error) {
		var w achievementWire
		if err := c.get(ctx, fmt.Sprintf("/achievement/%d", id), nil, &w); err != nil {
			return models.Achievement{}, err
		}
		a := w.toModel()
		if err := a.Validate(); err != nil {
			return models.Achievement{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching achievement %d: %w", id, err)
	}
	return &a, nil
}

// Quest returns reference data for one quest.
func (c *Client) Quest(ctx context.Context, id int) (*models.Quest, error) {
	q, err := cached(ctx, c, fmt.Sprintf("quest:%d", id), func() (models.Quest, error) {
		var w questWire
		if err := c.get(ctx, fmt.Sprintf("/quest/%d", id), nil, &w); err != nil {
			return models.Quest{}, err
		}
		q := w.toModel()
		if err := q.Validate(); err != nil {
			return models.Quest{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching quest %d: %w", id, err)
	}
	return &q, nil
}

// ClassJobs returns every class and job.
func (c *Client) ClassJobs(ctx context.Context) ([]models.ClassJob, error) {
	jobs, err := cached(ctx, c, "classjobs", func() ([]models.ClassJob, error) {
		var resp classJobListResponse
		query := url.Values{"columns": {"ID,Name,Abbreviation"}, "limit": {"100"}}
		if err := c.get(ctx, "/classjob", query, &resp); err != nil {
			return nil, err
		}
		jobs := make([]models.ClassJob, 0, len(resp.Results))
		for _, r := range resp.Results {
			cj := models.ClassJob{ID: r.ID, Name: r.Name, Abbreviation: r.Abbreviation}
			if err := cj.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
			}
			jobs = append(jobs, cj)
		}
		return jobs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching class jobs: %w", err)
	}
	return jobs, nil
}
