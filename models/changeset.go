// models/changeset.go
package models

// Changeset lists every entity an operation wrote. It is persisted as one
// unit together with the ledger interaction of that operation.
type Changeset struct {
	Operation    string
	Settings     *Settings
	Games        []*Game
	GamePlayers  []*GamePlayerRecord
	Sessions     []*GameSession
	Tournaments  []*Tournament
	Players      []*PlayerStats
	Achievements []*Achievement
	Nonces       []Nonce
	Validators   map[Address]bool
}

func (c *Changeset) Empty() bool {
	return c.Settings == nil && len(c.Games) == 0 && len(c.GamePlayers) == 0 &&
		len(c.Sessions) == 0 && len(c.Tournaments) == 0 && len(c.Players) == 0 &&
		len(c.Achievements) == 0 && len(c.Nonces) == 0 && len(c.Validators) == 0
}

// Snapshot is the full persisted state used to rebuild the platform at startup.
type Snapshot struct {
	Settings     *Settings
	Games        []*Game
	GamePlayers  []*GamePlayerRecord
	Sessions     []*GameSession
	Tournaments  []*Tournament
	Players      []*PlayerStats
	Achievements []*Achievement
	Nonces       []Nonce
	Validators   []Address
}
