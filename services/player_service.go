package services

import (
	"context"
	"fmt"

	"github.com/wfunc/arenaledger/models"
)

// DefaultHistoryLimit caps the sessions a profile carries.
const DefaultHistoryLimit = 20

// PlatformReader is the live state a profile is built from.
type PlatformReader interface {
	PlayerStats(ctx context.Context, player models.Address) *models.PlayerStats
	Achievements(ctx context.Context) []*models.Achievement
}

// HistoryStore serves persisted sessions. persistence.Database satisfies it.
type HistoryStore interface {
	SessionHistory(ctx context.Context, player models.Address, limit int) ([]*models.GameSession, error)
}

type PlayerProfile struct {
	Stats          *models.PlayerStats   `json:"stats"`
	Achievements   []*models.Achievement `json:"achievements"`
	RecentSessions []*models.GameSession `json:"recent_sessions"`
}

type PlayerService struct {
	platform PlatformReader
	history  HistoryStore
}

func NewPlayerService(platform PlatformReader, history HistoryStore) *PlayerService {
	return &PlayerService{platform: platform, history: history}
}

// GetPlayerWithStats 获取玩家信息和统计
func (s *PlayerService) GetPlayerWithStats(ctx context.Context, player models.Address, limit int) (*PlayerProfile, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	stats := s.platform.PlayerStats(ctx, player)
	profile := &PlayerProfile{
		Stats:          stats,
		Achievements:   unlocked(s.platform.Achievements(ctx), stats.Achievements),
		RecentSessions: []*models.GameSession{},
	}

	if s.history != nil {
		sessions, err := s.history.SessionHistory(ctx, player, limit)
		if err != nil {
			return nil, fmt.Errorf("session history for %s: %w", player, err)
		}
		profile.RecentSessions = sessions
	}
	return profile, nil
}

// unlocked resolves ids against the catalogue, keeping unlock order.
func unlocked(catalogue []*models.Achievement, ids []uint64) []*models.Achievement {
	byID := make(map[uint64]*models.Achievement, len(catalogue))
	for _, a := range catalogue {
		byID[a.ID] = a
	}
	out := make([]*models.Achievement, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
