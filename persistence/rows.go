package persistence

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/arenaledger/models"
)

// 定义GORM模型

const settingsRowID = 1

type SettingsRow struct {
	ID                uint   `gorm:"primaryKey;autoIncrement:false"`
	Operator          string `gorm:"size:42;not null"`
	Treasury          string `gorm:"size:42"`
	PlatformFeeBps    uint32
	Paused            bool
	NextTournamentID  uint64
	NextGameID        uint64
	NextSessionID     uint64
	NextAchievementID uint64
	UpdatedAt         time.Time
}

func (SettingsRow) TableName() string { return "settings" }

type GameRow struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name          string `gorm:"not null"`
	Developer     string `gorm:"size:42;index;not null"`
	RevenueShare  uint8
	Difficulty    uint32
	Active        bool
	TotalSessions uint64
	TotalRevenue  uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (GameRow) TableName() string { return "games" }

type GamePlayerRow struct {
	GameID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Player    string `gorm:"primaryKey;size:42"`
	LastScore uint64
	Sessions  uint64
}

func (GamePlayerRow) TableName() string { return "game_players" }

type SessionRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement:false"`
	GameID    uint64 `gorm:"index;not null"`
	Player    string `gorm:"size:42;index;not null"`
	StartTime time.Time
	EndTime   *time.Time
	Score     uint64
	Reward    uint64
	Validated bool
	Nonce     string `gorm:"size:66"`
	Status    string `gorm:"size:16;not null"`
}

func (SessionRow) TableName() string { return "sessions" }

type TournamentRow struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name           string
	Type           string `gorm:"size:32;not null"`
	EntryFee       uint64
	PrizePool      uint64
	MaxPlayers     uint32
	CurrentPlayers uint32
	StartTime      time.Time
	EndTime        time.Time
	Participants   pq.StringArray `gorm:"type:text"`
	Winners        pq.StringArray `gorm:"type:text"`
	Prizes         pq.StringArray `gorm:"type:text"`
	Status         string         `gorm:"size:16;not null"`
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

func (TournamentRow) TableName() string { return "tournaments" }

type PlayerRow struct {
	Address          string `gorm:"primaryKey;size:42"`
	TotalGamesPlayed uint64
	TotalWins        uint64
	TotalEarnings    uint64
	CurrentStreak    uint64
	BestStreak       uint64
	Level            uint64
	Experience       uint64
	Achievements     pq.Int64Array     `gorm:"type:text"`
	GameStats        map[uint64]uint64 `gorm:"serializer:json;type:text"`
	UpdatedAt        time.Time
}

func (PlayerRow) TableName() string { return "players" }

type AchievementRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name        string
	Description string
	Kind        string `gorm:"size:32;not null"`
	Threshold   uint64
	Reward      uint64
	Active      bool
}

func (AchievementRow) TableName() string { return "achievements" }

type NonceRow struct {
	Nonce     string `gorm:"primaryKey;size:66"`
	CreatedAt time.Time
}

func (NonceRow) TableName() string { return "consumed_nonces" }

type ValidatorRow struct {
	Address    string `gorm:"primaryKey;size:42"`
	Authorized bool
	UpdatedAt  time.Time
}

func (ValidatorRow) TableName() string { return "validators" }

// OperationRecord is the audit trail of committed operations.
type OperationRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Operation string `gorm:"size:64;index;not null"`
	Entities  int
	CreatedAt time.Time
}

func (OperationRecord) TableName() string { return "operations" }

func allModels() []interface{} {
	return []interface{}{
		&SettingsRow{},
		&GameRow{},
		&GamePlayerRow{},
		&SessionRow{},
		&TournamentRow{},
		&PlayerRow{},
		&AchievementRow{},
		&NonceRow{},
		&ValidatorRow{},
		&OperationRecord{},
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func addressStrings(addrs []models.Address) pq.StringArray {
	out := make(pq.StringArray, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func parseAddresses(raw pq.StringArray) ([]models.Address, error) {
	out := make([]models.Address, 0, len(raw))
	for _, s := range raw {
		a, err := models.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func amountStrings(amounts []models.Amount) pq.StringArray {
	out := make(pq.StringArray, 0, len(amounts))
	for _, a := range amounts {
		out = append(out, a.String())
	}
	return out
}

func parseAmounts(raw pq.StringArray) ([]models.Amount, error) {
	out := make([]models.Amount, 0, len(raw))
	for _, s := range raw {
		a, err := models.ParseAmount(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func settingsRow(s *models.Settings) *SettingsRow {
	return &SettingsRow{
		ID:                settingsRowID,
		Operator:          s.Operator.String(),
		Treasury:          s.Treasury.String(),
		PlatformFeeBps:    s.PlatformFeeBps,
		Paused:            s.Paused,
		NextTournamentID:  s.NextTournamentID,
		NextGameID:        s.NextGameID,
		NextSessionID:     s.NextSessionID,
		NextAchievementID: s.NextAchievementID,
	}
}

func (r *SettingsRow) model() (*models.Settings, error) {
	operator, err := models.ParseAddress(r.Operator)
	if err != nil {
		return nil, fmt.Errorf("settings operator: %w", err)
	}
	treasury, err := models.ParseAddress(r.Treasury)
	if err != nil {
		return nil, fmt.Errorf("settings treasury: %w", err)
	}
	return &models.Settings{
		Operator:          operator,
		Treasury:          treasury,
		PlatformFeeBps:    r.PlatformFeeBps,
		Paused:            r.Paused,
		NextTournamentID:  r.NextTournamentID,
		NextGameID:        r.NextGameID,
		NextSessionID:     r.NextSessionID,
		NextAchievementID: r.NextAchievementID,
	}, nil
}

func gameRow(g *models.Game) *GameRow {
	return &GameRow{
		ID:            g.ID,
		Name:          g.Name,
		Developer:     g.Developer.String(),
		RevenueShare:  g.RevenueShare,
		Difficulty:    g.Difficulty,
		Active:        g.Active,
		TotalSessions: g.TotalSessions,
		TotalRevenue:  uint64(g.TotalRevenue),
		CreatedAt:     g.CreatedAt,
	}
}

func (r *GameRow) model() (*models.Game, error) {
	dev, err := models.ParseAddress(r.Developer)
	if err != nil {
		return nil, fmt.Errorf("game %d developer: %w", r.ID, err)
	}
	return &models.Game{
		ID:            r.ID,
		Name:          r.Name,
		Developer:     dev,
		RevenueShare:  r.RevenueShare,
		Difficulty:    r.Difficulty,
		Active:        r.Active,
		TotalSessions: r.TotalSessions,
		TotalRevenue:  models.Amount(r.TotalRevenue),
		CreatedAt:     r.CreatedAt,
	}, nil
}

func gamePlayerRow(g *models.GamePlayerRecord) *GamePlayerRow {
	return &GamePlayerRow{
		GameID:    g.GameID,
		Player:    g.Player.String(),
		LastScore: g.LastScore,
		Sessions:  g.Sessions,
	}
}

func (r *GamePlayerRow) model() (*models.GamePlayerRecord, error) {
	player, err := models.ParseAddress(r.Player)
	if err != nil {
		return nil, err
	}
	return &models.GamePlayerRecord{GameID: r.GameID, Player: player, LastScore: r.LastScore, Sessions: r.Sessions}, nil
}

func sessionRow(s *models.GameSession) *SessionRow {
	return &SessionRow{
		ID:        s.ID,
		GameID:    s.GameID,
		Player:    s.Player.String(),
		StartTime: s.StartTime,
		EndTime:   timePtr(s.EndTime),
		Score:     s.Score,
		Reward:    uint64(s.Reward),
		Validated: s.Validated,
		Nonce:     s.Nonce.String(),
		Status:    string(s.Status),
	}
}

func (r *SessionRow) model() (*models.GameSession, error) {
	player, err := models.ParseAddress(r.Player)
	if err != nil {
		return nil, fmt.Errorf("session %d player: %w", r.ID, err)
	}
	nonce, err := models.ParseNonce(r.Nonce)
	if err != nil {
		return nil, fmt.Errorf("session %d nonce: %w", r.ID, err)
	}
	return &models.GameSession{
		ID:        r.ID,
		GameID:    r.GameID,
		Player:    player,
		StartTime: r.StartTime,
		EndTime:   timeVal(r.EndTime),
		Score:     r.Score,
		Reward:    models.Amount(r.Reward),
		Validated: r.Validated,
		Nonce:     nonce,
		Status:    models.SessionStatus(r.Status),
	}, nil
}

func tournamentRow(t *models.Tournament) *TournamentRow {
	return &TournamentRow{
		ID:             t.ID,
		Name:           t.Name,
		Type:           string(t.Type),
		EntryFee:       uint64(t.EntryFee),
		PrizePool:      uint64(t.PrizePool),
		MaxPlayers:     t.MaxPlayers,
		CurrentPlayers: t.CurrentPlayers,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Participants:   addressStrings(t.Participants),
		Winners:        addressStrings(t.Winners),
		Prizes:         amountStrings(t.Prizes),
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt,
		FinishedAt:     timePtr(t.FinishedAt),
	}
}

func (r *TournamentRow) model() (*models.Tournament, error) {
	participants, err := parseAddresses(r.Participants)
	if err != nil {
		return nil, fmt.Errorf("tournament %d participants: %w", r.ID, err)
	}
	winners, err := parseAddresses(r.Winners)
	if err != nil {
		return nil, fmt.Errorf("tournament %d winners: %w", r.ID, err)
	}
	prizes, err := parseAmounts(r.Prizes)
	if err != nil {
		return nil, fmt.Errorf("tournament %d prizes: %w", r.ID, err)
	}
	if len(winners) == 0 {
		winners, prizes = nil, nil
	}
	return &models.Tournament{
		ID:             r.ID,
		Name:           r.Name,
		Type:           models.TournamentType(r.Type),
		EntryFee:       models.Amount(r.EntryFee),
		PrizePool:      models.Amount(r.PrizePool),
		MaxPlayers:     r.MaxPlayers,
		CurrentPlayers: r.CurrentPlayers,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		Participants:   participants,
		Winners:        winners,
		Prizes:         prizes,
		Status:         models.TournamentStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		FinishedAt:     timeVal(r.FinishedAt),
	}, nil
}

func playerRow(p *models.PlayerStats) *PlayerRow {
	ids := make(pq.Int64Array, 0, len(p.Achievements))
	for _, id := range p.Achievements {
		ids = append(ids, int64(id))
	}
	return &PlayerRow{
		Address:          p.Address.String(),
		TotalGamesPlayed: p.TotalGamesPlayed,
		TotalWins:        p.TotalWins,
		TotalEarnings:    uint64(p.TotalEarnings),
		CurrentStreak:    p.CurrentStreak,
		BestStreak:       p.BestStreak,
		Level:            p.Level,
		Experience:       p.Experience,
		Achievements:     ids,
		GameStats:        p.GameStats,
	}
}

func (r *PlayerRow) model() (*models.PlayerStats, error) {
	addr, err := models.ParseAddress(r.Address)
	if err != nil {
		return nil, err
	}
	p := models.NewPlayerStats(addr)
	p.TotalGamesPlayed = r.TotalGamesPlayed
	p.TotalWins = r.TotalWins
	p.TotalEarnings = models.Amount(r.TotalEarnings)
	p.CurrentStreak = r.CurrentStreak
	p.BestStreak = r.BestStreak
	p.Level = r.Level
	p.Experience = r.Experience
	for _, id := range r.Achievements {
		p.Achievements = append(p.Achievements, uint64(id))
	}
	for k, v := range r.GameStats {
		p.GameStats[k] = v
	}
	return p, nil
}

func achievementRow(a *models.Achievement) *AchievementRow {
	return &AchievementRow{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Kind:        string(a.Kind),
		Threshold:   a.Threshold,
		Reward:      uint64(a.Reward),
		Active:      a.Active,
	}
}

func (r *AchievementRow) model() *models.Achievement {
	return &models.Achievement{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Kind:        models.AchievementKind(r.Kind),
		Threshold:   r.Threshold,
		Reward:      models.Amount(r.Reward),
		Active:      r.Active,
	}
}

func entityCount(cs *models.Changeset) int {
	n := len(cs.Games) + len(cs.GamePlayers) + len(cs.Sessions) + len(cs.Tournaments) +
		len(cs.Players) + len(cs.Achievements) + len(cs.Nonces) + len(cs.Validators)
	if cs.Settings != nil {
		n++
	}
	return n
}
