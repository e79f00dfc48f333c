package platform

import (
	"errors"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/progression"
	"github.com/wfunc/arenaledger/reward"
	"github.com/wfunc/arenaledger/state"
)

var (
	ErrReentrantCall = errors.New("reentrant call rejected")
	ErrPaused        = errors.New("platform is paused")
	ErrNotOperator   = errors.New("caller is not the operator")
	ErrZeroAddress   = errors.New("zero address")
	ErrEmptyName     = errors.New("name must not be empty")
	ErrLedger        = errors.New("ledger interaction failed")

	ErrGameNotFound        = errors.New("game not found")
	ErrGameInactive        = errors.New("game is not active")
	ErrRevenueShareTooHigh = errors.New("revenue share above 100 percent")
	ErrInvalidDifficulty   = errors.New("difficulty out of range")

	ErrSessionNotFound  = errors.New("session not found")
	ErrNotSessionPlayer = errors.New("caller is not the session player")
	ErrSessionFinished  = errors.New("session already finished")

	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNotActive    = errors.New("tournament is not active")
	ErrTournamentFull         = errors.New("tournament is full")
	ErrOutsideWindow          = errors.New("outside tournament window")
	ErrAlreadyJoined          = errors.New("player already joined")
	ErrEntryFeeTooLow         = errors.New("entry fee below minimum")
	ErrInvalidMaxPlayers      = errors.New("tournament needs at least two players")
	ErrInvalidDuration        = errors.New("tournament duration out of range")
	ErrInvalidTournamentType  = errors.New("unknown tournament type")
	ErrLengthMismatch         = errors.New("winners and prizes differ in length")
	ErrDuplicateWinner        = errors.New("winner listed twice")
	ErrPrizeExceedsPool       = errors.New("prizes exceed prize pool")
	ErrTreasuryNotSet         = errors.New("treasury not set")
	ErrPlatformFeeTooHigh     = errors.New("platform fee above ceiling")
	ErrAchievementNotFound    = errors.New("achievement not found")
	ErrUnknownAchievementKind = errors.New("unknown achievement kind")
	ErrOperatorMismatch       = errors.New("configured operator differs from persisted operator")
)

// Class groups errors by how a caller should react to them.
type Class string

const (
	ClassNone         Class = "ok"
	ClassPrecondition Class = "precondition"
	ClassUnauthorized Class = "unauthorized"
	ClassLedger       Class = "ledger"
	ClassBounds       Class = "bounds"
	ClassInternal     Class = "internal"
)

var classes = []struct {
	err   error
	class Class
}{
	{ErrLedger, ClassLedger},

	{ErrNotOperator, ClassUnauthorized},
	{attest.ErrUnauthorizedSigner, ClassUnauthorized},
	{attest.ErrMalformedSignature, ClassUnauthorized},

	{ErrRevenueShareTooHigh, ClassBounds},
	{ErrPlatformFeeTooHigh, ClassBounds},
	{ErrPrizeExceedsPool, ClassBounds},
	{ErrInvalidDifficulty, ClassBounds},
	{models.ErrAmountOverflow, ClassBounds},
	{reward.ErrScoreTooHigh, ClassBounds},

	{ErrReentrantCall, ClassPrecondition},
	{ErrPaused, ClassPrecondition},
	{ErrZeroAddress, ClassPrecondition},
	{ErrEmptyName, ClassPrecondition},
	{ErrGameNotFound, ClassPrecondition},
	{ErrGameInactive, ClassPrecondition},
	{ErrSessionNotFound, ClassPrecondition},
	{ErrNotSessionPlayer, ClassPrecondition},
	{ErrSessionFinished, ClassPrecondition},
	{attest.ErrNonceConsumed, ClassPrecondition},
	{ErrTournamentNotFound, ClassPrecondition},
	{ErrTournamentNotActive, ClassPrecondition},
	{ErrTournamentFull, ClassPrecondition},
	{ErrOutsideWindow, ClassPrecondition},
	{ErrAlreadyJoined, ClassPrecondition},
	{ErrEntryFeeTooLow, ClassPrecondition},
	{ErrInvalidMaxPlayers, ClassPrecondition},
	{ErrInvalidDuration, ClassPrecondition},
	{ErrInvalidTournamentType, ClassPrecondition},
	{ErrLengthMismatch, ClassPrecondition},
	{ErrDuplicateWinner, ClassPrecondition},
	{ErrTreasuryNotSet, ClassPrecondition},
	{ErrAchievementNotFound, ClassPrecondition},
	{ErrUnknownAchievementKind, ClassPrecondition},
	{ErrOperatorMismatch, ClassPrecondition},
	{progression.ErrUnsupportedAchievement, ClassPrecondition},
	{state.ErrTransitionNotAllowed, ClassPrecondition},
}

// Classify maps an operation error onto its Class. The ledger class wins
// over anything the ledger error wraps.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}
