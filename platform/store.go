package platform

import (
	"slices"

	"github.com/wfunc/arenaledger/models"
)

// store owns every registry. All access goes through Platform, which holds
// the lock; store itself is not safe for concurrent use.
type store struct {
	settings     models.Settings
	games        map[uint64]*models.Game
	gamePlayers  map[models.GamePlayerKey]*models.GamePlayerRecord
	sessions     map[uint64]*models.GameSession
	tournaments  map[uint64]*models.Tournament
	players      map[models.Address]*models.PlayerStats
	achievements map[uint64]*models.Achievement
	nonces       map[models.Nonce]struct{}
	validators   map[models.Address]bool
}

func newStore(settings models.Settings) *store {
	return &store{
		settings:     settings,
		games:        make(map[uint64]*models.Game),
		gamePlayers:  make(map[models.GamePlayerKey]*models.GamePlayerRecord),
		sessions:     make(map[uint64]*models.GameSession),
		tournaments:  make(map[uint64]*models.Tournament),
		players:      make(map[models.Address]*models.PlayerStats),
		achievements: make(map[uint64]*models.Achievement),
		nonces:       make(map[models.Nonce]struct{}),
		validators:   make(map[models.Address]bool),
	}
}

func storeFromSnapshot(snap *models.Snapshot, fallback models.Settings) *store {
	settings := fallback
	if snap.Settings != nil {
		settings = *snap.Settings
	}
	s := newStore(settings)
	for _, g := range snap.Games {
		s.games[g.ID] = g.Clone()
	}
	for _, r := range snap.GamePlayers {
		s.gamePlayers[r.Key()] = r.Clone()
	}
	for _, sess := range snap.Sessions {
		s.sessions[sess.ID] = sess.Clone()
	}
	for _, t := range snap.Tournaments {
		s.tournaments[t.ID] = t.Clone()
	}
	for _, p := range snap.Players {
		c := p.Clone()
		if c.GameStats == nil {
			c.GameStats = make(map[uint64]uint64)
		}
		s.players[p.Address] = c
	}
	for _, a := range snap.Achievements {
		s.achievements[a.ID] = a.Clone()
	}
	for _, n := range snap.Nonces {
		s.nonces[n] = struct{}{}
	}
	for _, v := range snap.Validators {
		s.validators[v] = true
	}
	return s
}

func (s *store) IsValidator(a models.Address) bool {
	return !a.IsZero() && s.validators[a]
}

func (s *store) NonceConsumed(n models.Nonce) bool {
	_, ok := s.nonces[n]
	return ok
}

// activeAchievements is sorted by id.
func (s *store) activeAchievements() []*models.Achievement {
	out := make([]*models.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		if a.Active {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *models.Achievement) int { return cmpID(a.ID, b.ID) })
	return out
}

func cmpID(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// sortedValues returns the map values ordered by key.
func sortedValues[T any](m map[uint64]*T, clone func(*T) *T) []*T {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}
