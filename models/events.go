// models/events.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventSessionStarted      EventKind = "session_started"
	EventSessionFinished     EventKind = "session_finished"
	EventRewardMinted        EventKind = "reward_minted"
	EventLevelUp             EventKind = "level_up"
	EventAchievementUnlocked EventKind = "achievement_unlocked"
	EventTournamentCreated   EventKind = "tournament_created"
	EventTournamentJoined    EventKind = "tournament_joined"
	EventTournamentFinished  EventKind = "tournament_finished"
	EventGameRegistered      EventKind = "game_registered"
	EventValidatorUpdated    EventKind = "validator_updated"
	EventPaused              EventKind = "paused"
	EventUnpaused            EventKind = "unpaused"
)

// Event is emitted after an operation commits. RefID points at the session,
// tournament, game or achievement the event is about.
type Event struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	Player Address   `json:"player,omitzero"`
	RefID  uint64    `json:"ref_id,omitempty"`
	Amount Amount    `json:"amount,omitempty"`
	Level  uint64    `json:"level,omitempty"`
	Memo   string    `json:"memo,omitempty"`
	At     time.Time `json:"at"`
}

func NewEvent(kind EventKind, player Address, refID uint64, at time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Player: player,
		RefID:  refID,
		At:     at,
	}
}
