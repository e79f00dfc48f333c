package platform

import (
	"time"

	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
)

type levelUp struct {
	player models.Address
	level  uint64
}

// journal keeps the pre-image of every entity on first write. A nil
// pre-image means the entity was created by this txn.
type journal[K comparable, V any] struct {
	pre   map[K]*V
	order []K
}

func newJournal[K comparable, V any]() journal[K, V] {
	return journal[K, V]{pre: make(map[K]*V)}
}

func (j *journal[K, V]) touch(key K, live map[K]*V, clone func(*V) *V) {
	if _, seen := j.pre[key]; seen {
		return
	}
	j.order = append(j.order, key)
	if v, ok := live[key]; ok {
		j.pre[key] = clone(v)
		return
	}
	j.pre[key] = nil
}

func (j *journal[K, V]) restore(live map[K]*V) {
	for _, key := range j.order {
		if pre := j.pre[key]; pre != nil {
			live[key] = pre
		} else {
			delete(live, key)
		}
	}
}

func (j *journal[K, V]) current(live map[K]*V, clone func(*V) *V) []*V {
	out := make([]*V, 0, len(j.order))
	for _, key := range j.order {
		if v, ok := live[key]; ok {
			out = append(out, clone(v))
		}
	}
	return out
}

// txn applies one operation's effects to the live registries in place and
// remembers how to undo them.
type txn struct {
	s   *store
	op  string
	now time.Time

	settings     *models.Settings
	games        journal[uint64, models.Game]
	gamePlayers  journal[models.GamePlayerKey, models.GamePlayerRecord]
	sessions     journal[uint64, models.GameSession]
	tournaments  journal[uint64, models.Tournament]
	players      journal[models.Address, models.PlayerStats]
	achievements journal[uint64, models.Achievement]
	nonces       []models.Nonce
	validators   map[models.Address]bool // pre-image

	ops      []ledger.Op
	events   []models.Event
	levelUps []levelUp
}

func newTxn(s *store, op string, now time.Time) *txn {
	return &txn{
		s:            s,
		op:           op,
		now:          now,
		games:        newJournal[uint64, models.Game](),
		gamePlayers:  newJournal[models.GamePlayerKey, models.GamePlayerRecord](),
		sessions:     newJournal[uint64, models.GameSession](),
		tournaments:  newJournal[uint64, models.Tournament](),
		players:      newJournal[models.Address, models.PlayerStats](),
		achievements: newJournal[uint64, models.Achievement](),
		validators:   make(map[models.Address]bool),
	}
}

func (t *txn) readSettings() models.Settings { return t.s.settings }

func (t *txn) writeSettings() *models.Settings {
	if t.settings == nil {
		pre := t.s.settings
		t.settings = &pre
	}
	return &t.s.settings
}

func (t *txn) game(id uint64) (*models.Game, bool) {
	g, ok := t.s.games[id]
	return g, ok
}

func (t *txn) writeGame(id uint64) *models.Game {
	t.games.touch(id, t.s.games, (*models.Game).Clone)
	return t.s.games[id]
}

func (t *txn) createGame(g *models.Game) {
	t.games.touch(g.ID, t.s.games, (*models.Game).Clone)
	t.s.games[g.ID] = g
}

// writeGamePlayer creates the record on first use.
func (t *txn) writeGamePlayer(gameID uint64, player models.Address) *models.GamePlayerRecord {
	key := models.GamePlayerKey{GameID: gameID, Player: player}
	t.gamePlayers.touch(key, t.s.gamePlayers, (*models.GamePlayerRecord).Clone)
	r, ok := t.s.gamePlayers[key]
	if !ok {
		r = &models.GamePlayerRecord{GameID: gameID, Player: player}
		t.s.gamePlayers[key] = r
	}
	return r
}

func (t *txn) session(id uint64) (*models.GameSession, bool) {
	s, ok := t.s.sessions[id]
	return s, ok
}

func (t *txn) writeSession(id uint64) *models.GameSession {
	t.sessions.touch(id, t.s.sessions, (*models.GameSession).Clone)
	return t.s.sessions[id]
}

func (t *txn) createSession(s *models.GameSession) {
	t.sessions.touch(s.ID, t.s.sessions, (*models.GameSession).Clone)
	t.s.sessions[s.ID] = s
}

func (t *txn) tournament(id uint64) (*models.Tournament, bool) {
	tr, ok := t.s.tournaments[id]
	return tr, ok
}

func (t *txn) writeTournament(id uint64) *models.Tournament {
	t.tournaments.touch(id, t.s.tournaments, (*models.Tournament).Clone)
	return t.s.tournaments[id]
}

func (t *txn) createTournament(tr *models.Tournament) {
	t.tournaments.touch(tr.ID, t.s.tournaments, (*models.Tournament).Clone)
	t.s.tournaments[tr.ID] = tr
}

// writePlayer creates the stats record on first use.
func (t *txn) writePlayer(a models.Address) *models.PlayerStats {
	t.players.touch(a, t.s.players, (*models.PlayerStats).Clone)
	p, ok := t.s.players[a]
	if !ok {
		p = models.NewPlayerStats(a)
		t.s.players[a] = p
	}
	return p
}

func (t *txn) achievement(id uint64) (*models.Achievement, bool) {
	a, ok := t.s.achievements[id]
	return a, ok
}

func (t *txn) writeAchievement(id uint64) *models.Achievement {
	t.achievements.touch(id, t.s.achievements, (*models.Achievement).Clone)
	return t.s.achievements[id]
}

func (t *txn) createAchievement(a *models.Achievement) {
	t.achievements.touch(a.ID, t.s.achievements, (*models.Achievement).Clone)
	t.s.achievements[a.ID] = a
}

func (t *txn) consumeNonce(n models.Nonce) {
	t.nonces = append(t.nonces, n)
	t.s.nonces[n] = struct{}{}
}

func (t *txn) setValidator(a models.Address, authorized bool) {
	if _, seen := t.validators[a]; !seen {
		t.validators[a] = t.s.validators[a]
	}
	if authorized {
		t.s.validators[a] = true
	} else {
		delete(t.s.validators, a)
	}
}

func (t *txn) queue(op ledger.Op) {
	t.ops = append(t.ops, op)
}

func (t *txn) emit(ev models.Event) {
	t.events = append(t.events, ev)
}

func (t *txn) event(kind models.EventKind, player models.Address, refID uint64) *models.Event {
	t.emit(models.NewEvent(kind, player, refID, t.now))
	return &t.events[len(t.events)-1]
}

// rollback puts every touched registry back to its pre-image.
func (t *txn) rollback() {
	if t.settings != nil {
		t.s.settings = *t.settings
	}
	t.games.restore(t.s.games)
	t.gamePlayers.restore(t.s.gamePlayers)
	t.sessions.restore(t.s.sessions)
	t.tournaments.restore(t.s.tournaments)
	t.players.restore(t.s.players)
	t.achievements.restore(t.s.achievements)
	for _, n := range t.nonces {
		delete(t.s.nonces, n)
	}
	for a, was := range t.validators {
		if was {
			t.s.validators[a] = true
		} else {
			delete(t.s.validators, a)
		}
	}
	t.ops, t.events, t.levelUps = nil, nil, nil
}

// changeset copies the post-image of everything this txn wrote.
func (t *txn) changeset() *models.Changeset {
	cs := &models.Changeset{
		Operation:    t.op,
		Games:        t.games.current(t.s.games, (*models.Game).Clone),
		GamePlayers:  t.gamePlayers.current(t.s.gamePlayers, (*models.GamePlayerRecord).Clone),
		Sessions:     t.sessions.current(t.s.sessions, (*models.GameSession).Clone),
		Tournaments:  t.tournaments.current(t.s.tournaments, (*models.Tournament).Clone),
		Players:      t.players.current(t.s.players, (*models.PlayerStats).Clone),
		Achievements: t.achievements.current(t.s.achievements, (*models.Achievement).Clone),
		Nonces:       append([]models.Nonce(nil), t.nonces...),
	}
	if t.settings != nil {
		settings := t.s.settings
		cs.Settings = &settings
	}
	if len(t.validators) > 0 {
		cs.Validators = make(map[models.Address]bool, len(t.validators))
		for a := range t.validators {
			cs.Validators[a] = t.s.validators[a]
		}
	}
	return cs
}
