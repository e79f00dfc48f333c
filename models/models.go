// models/models.go
package models

import (
	"slices"
	"time"
)

// TournamentType is a closed set of tournament formats.
type TournamentType string

const (
	SingleElimination TournamentType = "single_elimination"
	DoubleElimination TournamentType = "double_elimination"
	RoundRobin        TournamentType = "round_robin"
	BattleRoyale      TournamentType = "battle_royale"
)

func (t TournamentType) Valid() bool {
	switch t {
	case SingleElimination, DoubleElimination, RoundRobin, BattleRoyale:
		return true
	}
	return false
}

// TournamentStatus is the escrow lifecycle: active -> finished.
type TournamentStatus string

const (
	TournamentActive   TournamentStatus = "active"
	TournamentFinished TournamentStatus = "finished"
)

// Tournament pools entry fees until the operator settles it.
type Tournament struct {
	ID             uint64           `json:"id"`
	Name           string           `json:"name"`
	Type           TournamentType   `json:"type"`
	EntryFee       Amount           `json:"entry_fee"`
	PrizePool      Amount           `json:"prize_pool"`
	MaxPlayers     uint32           `json:"max_players"`
	CurrentPlayers uint32           `json:"current_players"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Participants   []Address        `json:"participants"`
	Winners        []Address        `json:"winners,omitempty"`
	Prizes         []Amount         `json:"prizes,omitempty"`
	Status         TournamentStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	FinishedAt     time.Time        `json:"finished_at,omitzero"`
}

func (t *Tournament) IsActive() bool   { return t.Status == TournamentActive }
func (t *Tournament) IsFinished() bool { return t.Status == TournamentFinished }

// InWindow reports whether now falls in [StartTime, EndTime).
func (t *Tournament) InWindow(now time.Time) bool {
	return !now.Before(t.StartTime) && now.Before(t.EndTime)
}

// HasParticipant is a linear scan; joins are bounded by MaxPlayers.
func (t *Tournament) HasParticipant(a Address) bool {
	return slices.Contains(t.Participants, a)
}

func (t *Tournament) Clone() *Tournament {
	c := *t
	c.Participants = slices.Clone(t.Participants)
	c.Winners = slices.Clone(t.Winners)
	c.Prizes = slices.Clone(t.Prizes)
	return &c
}

// Game is a registered title whose sessions earn rewards.
type Game struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Developer     Address   `json:"developer"`
	RevenueShare  uint8     `json:"revenue_share"`
	Difficulty    uint32    `json:"difficulty"`
	Active        bool      `json:"active"`
	TotalSessions uint64    `json:"total_sessions"`
	TotalRevenue  Amount    `json:"total_revenue"`
	CreatedAt     time.Time `json:"created_at"`
}

func (g *Game) Clone() *Game {
	c := *g
	return &c
}

// GamePlayerKey addresses the per-player data a game keeps.
type GamePlayerKey struct {
	GameID uint64
	Player Address
}

// GamePlayerRecord holds a player's last reported score and session count for one game.
type GamePlayerRecord struct {
	GameID    uint64  `json:"game_id"`
	Player    Address `json:"player"`
	LastScore uint64  `json:"last_score"`
	Sessions  uint64  `json:"sessions"`
}

func (r *GamePlayerRecord) Key() GamePlayerKey {
	return GamePlayerKey{GameID: r.GameID, Player: r.Player}
}

func (r *GamePlayerRecord) Clone() *GamePlayerRecord {
	c := *r
	return &c
}

// SessionStatus is the settlement lifecycle: started -> finished.
type SessionStatus string

const (
	SessionStarted  SessionStatus = "started"
	SessionFinished SessionStatus = "finished"
)

// GameSession is a single reported play. EndTime is zero until it is settled.
type GameSession struct {
	ID        uint64        `json:"id"`
	GameID    uint64        `json:"game_id"`
	Player    Address       `json:"player"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Score     uint64        `json:"score"`
	Reward    Amount        `json:"reward"`
	Validated bool          `json:"validated"`
	Nonce     Nonce         `json:"nonce"`
	Status    SessionStatus `json:"status"`
}

// IsFinished checks both the status and the end-time sentinel.
func (s *GameSession) IsFinished() bool {
	return s.Status == SessionFinished || !s.EndTime.IsZero()
}

func (s *GameSession) Clone() *GameSession {
	c := *s
	return &c
}

// PlayerStats aggregates one address's activity. Level is derived from
// Experience by the progression engine and is never set directly.
type PlayerStats struct {
	Address          Address           `json:"address"`
	TotalGamesPlayed uint64            `json:"total_games_played"`
	TotalWins        uint64            `json:"total_wins"`
	TotalEarnings    Amount            `json:"total_earnings"`
	CurrentStreak    uint64            `json:"current_streak"`
	BestStreak       uint64            `json:"best_streak"`
	Level            uint64            `json:"level"`
	Experience       uint64            `json:"experience"`
	Achievements     []uint64          `json:"achievements"`
	GameStats        map[uint64]uint64 `json:"game_stats,omitempty"`
}

func NewPlayerStats(a Address) *PlayerStats {
	return &PlayerStats{Address: a, GameStats: make(map[uint64]uint64)}
}

// HasAchievement scans the unlocked list; it is bounded by the number of
// registered achievements.
func (p *PlayerStats) HasAchievement(id uint64) bool {
	return slices.Contains(p.Achievements, id)
}

func (p *PlayerStats) Clone() *PlayerStats {
	c := *p
	c.Achievements = slices.Clone(p.Achievements)
	c.GameStats = make(map[uint64]uint64, len(p.GameStats))
	for k, v := range p.GameStats {
		c.GameStats[k] = v
	}
	return &c
}

// AchievementKind selects the statistic an achievement threshold is compared to.
type AchievementKind string

const (
	AchievementGamesPlayed AchievementKind = "games_played"
	AchievementWins        AchievementKind = "wins"
	AchievementStreak      AchievementKind = "streak"
	AchievementScore       AchievementKind = "score"
	AchievementEarnings    AchievementKind = "earnings"
	AchievementLevel       AchievementKind = "level"
)

// Achievement is immutable after creation except for Active.
type Achievement struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Kind        AchievementKind `json:"kind"`
	Threshold   uint64          `json:"threshold"`
	Reward      Amount          `json:"reward"`
	Active      bool            `json:"active"`
}

func (a *Achievement) Clone() *Achievement {
	c := *a
	return &c
}

// Settings holds operator-controlled configuration and id counters.
type Settings struct {
	Operator          Address `json:"operator"`
	Treasury          Address `json:"treasury"`
	PlatformFeeBps    uint32  `json:"platform_fee_bps"`
	Paused            bool    `json:"paused"`
	NextTournamentID  uint64  `json:"next_tournament_id"`
	NextGameID        uint64  `json:"next_game_id"`
	NextSessionID     uint64  `json:"next_session_id"`
	NextAchievementID uint64  `json:"next_achievement_id"`
}

// GameStatsView is the public aggregate view of a game.
type GameStatsView struct {
	Name          string  `json:"name"`
	Developer     Address `json:"developer"`
	TotalSessions uint64  `json:"total_sessions"`
	TotalRevenue  Amount  `json:"total_revenue"`
	Active        bool    `json:"active"`
}
