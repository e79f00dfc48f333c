package platform

import (
	"context"
	"fmt"
	"slices"

	"github.com/wfunc/arenaledger/models"
)

// Counts summarises registry sizes for gauges.
type Counts struct {
	Games             int
	Sessions          int
	OpenSessions      int
	Tournaments       int
	ActiveTournaments int
	Players           int
	ConsumedNonces    int
	Validators        int
}

func (p *Platform) TournamentParticipants(ctx context.Context, id uint64) ([]models.Address, error) {
	var out []models.Address
	var err error
	p.view(ctx, func(s *store) {
		tr, ok := s.tournaments[id]
		if !ok {
			err = fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
			return
		}
		out = slices.Clone(tr.Participants)
	})
	return out, err
}

// PlayerAchievements lists unlocked achievement ids in unlock order.
func (p *Platform) PlayerAchievements(ctx context.Context, player models.Address) []uint64 {
	var out []uint64
	p.view(ctx, func(s *store) {
		if ps, ok := s.players[player]; ok {
			out = slices.Clone(ps.Achievements)
		}
	})
	return out
}

func (p *Platform) GameStats(ctx context.Context, id uint64) (models.GameStatsView, error) {
	var view models.GameStatsView
	var err error
	p.view(ctx, func(s *store) {
		g, ok := s.games[id]
		if !ok {
			err = fmt.Errorf("%w: %d", ErrGameNotFound, id)
			return
		}
		view = models.GameStatsView{
			Name:          g.Name,
			Developer:     g.Developer,
			TotalSessions: g.TotalSessions,
			TotalRevenue:  g.TotalRevenue,
			Active:        g.Active,
		}
	})
	return view, err
}

func (p *Platform) Tournament(ctx context.Context, id uint64) (*models.Tournament, error) {
	var out *models.Tournament
	p.view(ctx, func(s *store) {
		if tr, ok := s.tournaments[id]; ok {
			out = tr.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
	}
	return out, nil
}

func (p *Platform) Tournaments(ctx context.Context) []*models.Tournament {
	var out []*models.Tournament
	p.view(ctx, func(s *store) {
		out = sortedValues(s.tournaments, (*models.Tournament).Clone)
	})
	return out
}

func (p *Platform) Session(ctx context.Context, id uint64) (*models.GameSession, error) {
	var out *models.GameSession
	p.view(ctx, func(s *store) {
		if sess, ok := s.sessions[id]; ok {
			out = sess.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return out, nil
}

func (p *Platform) Game(ctx context.Context, id uint64) (*models.Game, error) {
	var out *models.Game
	p.view(ctx, func(s *store) {
		if g, ok := s.games[id]; ok {
			out = g.Clone()
		}
	})
	if out == nil {
		return nil, fmt.Errorf("%w: %d", ErrGameNotFound, id)
	}
	return out, nil
}

func (p *Platform) Games(ctx context.Context) []*models.Game {
	var out []*models.Game
	p.view(ctx, func(s *store) {
		out = sortedValues(s.games, (*models.Game).Clone)
	})
	return out
}

// PlayerStats returns empty stats for an address that never played.
func (p *Platform) PlayerStats(ctx context.Context, player models.Address) *models.PlayerStats {
	out := models.NewPlayerStats(player)
	p.view(ctx, func(s *store) {
		if ps, ok := s.players[player]; ok {
			out = ps.Clone()
		}
	})
	return out
}

// GamePlayer returns the (game, player) record; the zero record if none exists.
func (p *Platform) GamePlayer(ctx context.Context, gameID uint64, player models.Address) (*models.GamePlayerRecord, error) {
	out := &models.GamePlayerRecord{GameID: gameID, Player: player}
	var err error
	p.view(ctx, func(s *store) {
		if _, ok := s.games[gameID]; !ok {
			err = fmt.Errorf("%w: %d", ErrGameNotFound, gameID)
			return
		}
		if r, ok := s.gamePlayers[models.GamePlayerKey{GameID: gameID, Player: player}]; ok {
			out = r.Clone()
		}
	})
	return out, err
}

func (p *Platform) Achievements(ctx context.Context) []*models.Achievement {
	var out []*models.Achievement
	p.view(ctx, func(s *store) {
		out = sortedValues(s.achievements, (*models.Achievement).Clone)
	})
	return out
}

func (p *Platform) Settings(ctx context.Context) models.Settings {
	var out models.Settings
	p.view(ctx, func(s *store) { out = s.settings })
	return out
}

// VerifyOperator reports whether configured is the operator the platform
// actually runs with. After Restore that is the persisted operator.
func (p *Platform) VerifyOperator(ctx context.Context, configured models.Address) error {
	if current := p.Settings(ctx).Operator; current != configured {
		return fmt.Errorf("%w: configured %s, persisted %s", ErrOperatorMismatch, configured, current)
	}
	return nil
}

func (p *Platform) IsValidator(ctx context.Context, addr models.Address) bool {
	var ok bool
	p.view(ctx, func(s *store) { ok = s.IsValidator(addr) })
	return ok
}

func (p *Platform) NonceConsumed(ctx context.Context, n models.Nonce) bool {
	var ok bool
	p.view(ctx, func(s *store) { ok = s.NonceConsumed(n) })
	return ok
}

func (p *Platform) Counts(ctx context.Context) Counts {
	var c Counts
	p.view(ctx, func(s *store) {
		c.Games = len(s.games)
		c.Sessions = len(s.sessions)
		c.Tournaments = len(s.tournaments)
		c.Players = len(s.players)
		c.ConsumedNonces = len(s.nonces)
		c.Validators = len(s.validators)
		for _, sess := range s.sessions {
			if !sess.IsFinished() {
				c.OpenSessions++
			}
		}
		for _, tr := range s.tournaments {
			if tr.IsActive() {
				c.ActiveTournaments++
			}
		}
	})
	return c
}

// Snapshot copies the whole state; Restore accepts it back.
func (p *Platform) Snapshot(ctx context.Context) *models.Snapshot {
	snap := &models.Snapshot{}
	p.view(ctx, func(s *store) {
		settings := s.settings
		snap.Settings = &settings
		snap.Games = sortedValues(s.games, (*models.Game).Clone)
		snap.Sessions = sortedValues(s.sessions, (*models.GameSession).Clone)
		snap.Tournaments = sortedValues(s.tournaments, (*models.Tournament).Clone)
		snap.Achievements = sortedValues(s.achievements, (*models.Achievement).Clone)
		for _, r := range s.gamePlayers {
			snap.GamePlayers = append(snap.GamePlayers, r.Clone())
		}
		for _, ps := range s.players {
			snap.Players = append(snap.Players, ps.Clone())
		}
		for n := range s.nonces {
			snap.Nonces = append(snap.Nonces, n)
		}
		for a, ok := range s.validators {
			if ok {
				snap.Validators = append(snap.Validators, a)
			}
		}
	})
	return snap
}
