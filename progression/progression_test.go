package progression

import (
	"testing"

	"github.com/wfunc/arenaledger/models"
)

var player = models.MustParseAddress("0x3333333333333333333333333333333333333333")

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultXPPerLevel)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestLevelIsFloorOfExperience(t *testing.T) {
	e := newEngine(t)
	for xp, want := range map[uint64]uint64{0: 0, 999: 0, 1000: 1, 2999: 2, 10_000: 10} {
		if got := e.Level(xp); got != want {
			t.Errorf("Level(%d) = %d, want %d", xp, got, want)
		}
	}
}

func TestCheckLevelUpNeverLowers(t *testing.T) {
	e := newEngine(t)
	p := models.NewPlayerStats(player)

	p.Experience = 2100
	level, raised := e.CheckLevelUp(p)
	if !raised || level != 2 || p.Level != 2 {
		t.Fatalf("Expected raise to level 2, got %d (raised=%v)", level, raised)
	}

	if _, raised := e.CheckLevelUp(p); raised {
		t.Error("Second check on unchanged experience should not raise")
	}

	p.Level = 5
	if _, raised := e.CheckLevelUp(p); raised || p.Level != 5 {
		t.Errorf("Stored level should never be lowered, got %d", p.Level)
	}
}

func TestCheckAchievementsUnlocksOnce(t *testing.T) {
	e := newEngine(t)
	p := models.NewPlayerStats(player)
	p.TotalWins = 1

	catalogue := []*models.Achievement{
		{ID: 2, Kind: models.AchievementWins, Threshold: 1, Reward: models.Tokens(5), Active: true},
		{ID: 1, Kind: models.AchievementGamesPlayed, Threshold: 1, Active: true},
		{ID: 3, Kind: models.AchievementWins, Threshold: 1, Active: false},
	}

	unlocked, err := e.CheckAchievements(p, catalogue)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 1 || unlocked[0].ID != 2 {
		t.Fatalf("Expected only achievement 2 to unlock, got %v", unlocked)
	}
	if p.TotalEarnings != models.Tokens(5) {
		t.Errorf("Expected reward credited to earnings, got %d", p.TotalEarnings)
	}

	again, err := e.CheckAchievements(p, catalogue)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 || len(p.Achievements) != 1 {
		t.Errorf("Re-running on unchanged stats unlocked %v", again)
	}
}

func TestCheckAchievementsWalksInIDOrder(t *testing.T) {
	e := newEngine(t)
	p := models.NewPlayerStats(player)
	p.TotalGamesPlayed = 10
	p.Level = 3

	catalogue := []*models.Achievement{
		{ID: 9, Kind: models.AchievementLevel, Threshold: 3, Active: true},
		{ID: 4, Kind: models.AchievementGamesPlayed, Threshold: 10, Active: true},
	}
	if _, err := e.CheckAchievements(p, catalogue); err != nil {
		t.Fatal(err)
	}
	if len(p.Achievements) != 2 || p.Achievements[0] != 4 || p.Achievements[1] != 9 {
		t.Errorf("Expected achievements [4 9], got %v", p.Achievements)
	}
}

func TestStreakAndScoreNeverUnlock(t *testing.T) {
	p := models.NewPlayerStats(player)
	p.CurrentStreak = 100
	p.BestStreak = 100

	for _, kind := range []models.AchievementKind{models.AchievementStreak, models.AchievementScore} {
		if Supported(kind) {
			t.Errorf("%s should not be supported", kind)
		}
		if !KnownKind(kind) {
			t.Errorf("%s should still be a known kind", kind)
		}
		if Satisfied(&models.Achievement{Kind: kind, Threshold: 0, Active: true}, p) {
			t.Errorf("%s should never be satisfied", kind)
		}
	}
	if KnownKind("legendary") {
		t.Error("Unknown kind reported as known")
	}
}
