package services

import (
	"context"
	"errors"
	"testing"

	"github.com/wfunc/arenaledger/models"
)

// mockPlatform is a test double for PlatformReader.
type mockPlatform struct {
	stats        map[models.Address]*models.PlayerStats
	achievements []*models.Achievement
}

func (m *mockPlatform) PlayerStats(_ context.Context, player models.Address) *models.PlayerStats {
	if ps, ok := m.stats[player]; ok {
		return ps
	}
	return models.NewPlayerStats(player)
}

func (m *mockPlatform) Achievements(context.Context) []*models.Achievement {
	return m.achievements
}

// mockHistory is a test double for HistoryStore.
type mockHistory struct {
	sessions  []*models.GameSession
	err       error
	lastLimit int
}

func (m *mockHistory) SessionHistory(_ context.Context, _ models.Address, limit int) ([]*models.GameSession, error) {
	m.lastLimit = limit
	return m.sessions, m.err
}

var alice = models.MustParseAddress("0x00000000000000000000000000000000000000a1")

func TestGetPlayerWithStats(t *testing.T) {
	stats := models.NewPlayerStats(alice)
	stats.Experience = 2500
	stats.Achievements = []uint64{7, 2}

	platform := &mockPlatform{
		stats: map[models.Address]*models.PlayerStats{alice: stats},
		achievements: []*models.Achievement{
			{ID: 2, Name: "First win"},
			{ID: 7, Name: "Ten games"},
			{ID: 9, Name: "Locked"},
		},
	}
	history := &mockHistory{sessions: []*models.GameSession{{ID: 3, Player: alice}}}

	profile, err := NewPlayerService(platform, history).GetPlayerWithStats(context.Background(), alice, 0)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Stats.Experience != 2500 {
		t.Errorf("Expected experience 2500, got %d", profile.Stats.Experience)
	}
	if len(profile.Achievements) != 2 || profile.Achievements[0].ID != 7 || profile.Achievements[1].ID != 2 {
		t.Errorf("Expected achievements in unlock order [7 2], got %v", profile.Achievements)
	}
	if len(profile.RecentSessions) != 1 || history.lastLimit != DefaultHistoryLimit {
		t.Errorf("Expected 1 session with default limit, got %d (limit %d)", len(profile.RecentSessions), history.lastLimit)
	}
}

func TestGetPlayerWithStatsWithoutHistory(t *testing.T) {
	profile, err := NewPlayerService(&mockPlatform{}, nil).GetPlayerWithStats(context.Background(), alice, 5)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Stats.Address != alice || len(profile.RecentSessions) != 0 {
		t.Errorf("Unexpected profile %+v", profile)
	}
}

func TestGetPlayerWithStatsHistoryError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewPlayerService(&mockPlatform{}, &mockHistory{err: boom}).GetPlayerWithStats(context.Background(), alice, 5)
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped history error, got %v", err)
	}
}
