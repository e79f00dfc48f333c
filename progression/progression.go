// Package progression derives levels from experience and decides which
// achievements a player has earned.
package progression

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wfunc/arenaledger/models"
)

// DefaultXPPerLevel is the experience needed per level.
const DefaultXPPerLevel = 1000

var ErrUnsupportedAchievement = errors.New("achievement kind has no unlock rule")

// rule compares an achievement threshold against one player metric. A nil
// metric marks a kind that exists in the catalogue but can never unlock.
type rule struct {
	metric func(p *models.PlayerStats) uint64
}

var rules = map[models.AchievementKind]rule{
	models.AchievementGamesPlayed: {metric: func(p *models.PlayerStats) uint64 { return p.TotalGamesPlayed }},
	models.AchievementWins:        {metric: func(p *models.PlayerStats) uint64 { return p.TotalWins }},
	models.AchievementEarnings:    {metric: func(p *models.PlayerStats) uint64 { return uint64(p.TotalEarnings) }},
	models.AchievementLevel:       {metric: func(p *models.PlayerStats) uint64 { return p.Level }},
	models.AchievementStreak:      {},
	models.AchievementScore:       {},
}

// KnownKind reports whether kind is part of the achievement catalogue.
func KnownKind(kind models.AchievementKind) bool {
	_, ok := rules[kind]
	return ok
}

// Supported reports whether achievements of kind can ever unlock.
func Supported(kind models.AchievementKind) bool {
	return rules[kind].metric != nil
}

// Satisfied evaluates a's predicate against p.
func Satisfied(a *models.Achievement, p *models.PlayerStats) bool {
	r := rules[a.Kind]
	if r.metric == nil {
		return false
	}
	return r.metric(p) >= a.Threshold
}

type Engine struct {
	xpPerLevel uint64
}

func NewEngine(xpPerLevel uint64) (*Engine, error) {
	if xpPerLevel == 0 {
		return nil, errors.New("experience per level must be positive")
	}
	return &Engine{xpPerLevel: xpPerLevel}, nil
}

func (e *Engine) Level(experience uint64) uint64 {
	return experience / e.xpPerLevel
}

// CheckLevelUp raises p.Level to the level derived from its experience. It
// never lowers a level.
func (e *Engine) CheckLevelUp(p *models.PlayerStats) (uint64, bool) {
	derived := e.Level(p.Experience)
	if derived <= p.Level {
		return p.Level, false
	}
	p.Level = derived
	return derived, true
}

// CheckAchievements unlocks every active achievement p now satisfies, in id
// order, and credits their rewards to TotalEarnings. The returned
// achievements are the newly unlocked ones; minting their rewards is up to
// the caller. On error p may be partially updated.
func (e *Engine) CheckAchievements(p *models.PlayerStats, catalogue []*models.Achievement) ([]*models.Achievement, error) {
	ordered := slices.Clone(catalogue)
	slices.SortFunc(ordered, func(a, b *models.Achievement) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	var unlocked []*models.Achievement
	for _, a := range ordered {
		if !a.Active || p.HasAchievement(a.ID) || !Satisfied(a, p) {
			continue
		}
		if a.Reward > 0 {
			earnings, err := models.AddAmount(p.TotalEarnings, a.Reward)
			if err != nil {
				return nil, fmt.Errorf("achievement %d reward: %w", a.ID, err)
			}
			p.TotalEarnings = earnings
		}
		p.Achievements = append(p.Achievements, a.ID)
		unlocked = append(unlocked, a)
	}
	return unlocked, nil
}
