package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
)

type TournamentParams struct {
	Name       string
	Type       models.TournamentType
	EntryFee   models.Amount
	MaxPlayers uint32
	// StartTime defaults to now when zero.
	StartTime time.Time
	Duration  time.Duration
}

// CreateTournament opens an empty tournament. Operator only.
func (p *Platform) CreateTournament(ctx context.Context, caller models.Address, params TournamentParams) (uint64, error) {
	var id uint64
	err := p.exec(ctx, "create_tournament", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if params.EntryFee < p.minimumEntryFee {
			return fmt.Errorf("%w: %s < %s", ErrEntryFeeTooLow, params.EntryFee, p.minimumEntryFee)
		}
		if params.MaxPlayers < 2 {
			return ErrInvalidMaxPlayers
		}
		if params.Duration <= 0 || params.Duration > p.maximumDuration {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, params.Duration)
		}
		if !params.Type.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidTournamentType, params.Type)
		}

		start := params.StartTime
		if start.IsZero() {
			start = t.now
		}

		settings := t.writeSettings()
		id = settings.NextTournamentID
		settings.NextTournamentID++

		t.createTournament(&models.Tournament{
			ID:         id,
			Name:       params.Name,
			Type:       params.Type,
			EntryFee:   params.EntryFee,
			MaxPlayers: params.MaxPlayers,
			StartTime:  start,
			EndTime:    start.Add(params.Duration),
			Status:     models.TournamentActive,
			CreatedAt:  t.now,
		})
		t.event(models.EventTournamentCreated, caller, id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// checkJoin validates a join against the state as it is now.
func (p *Platform) checkJoin(t *txn, caller models.Address, id uint64) (*models.Tournament, error) {
	if err := t.requireRunning(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrZeroAddress
	}
	tr, ok := t.tournament(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
	}
	if !tr.IsActive() {
		return nil, fmt.Errorf("%w: %d", ErrTournamentNotActive, id)
	}
	if tr.CurrentPlayers >= tr.MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrTournamentFull, id)
	}
	if !tr.InWindow(t.now) {
		return nil, fmt.Errorf("%w: %d", ErrOutsideWindow, id)
	}
	// O(n) in participants, bounded by MaxPlayers.
	if tr.HasParticipant(caller) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyJoined, caller)
	}
	return tr, nil
}

// JoinTournament enrolls caller and pulls the entry fee. The participant
// and the pool are updated before the pull; a failed pull undoes both.
func (p *Platform) JoinTournament(ctx context.Context, caller models.Address, id uint64) error {
	return p.exec(ctx, "join_tournament", func(t *txn) error {
		if _, err := p.checkJoin(t, caller, id); err != nil {
			return err
		}

		tr := t.writeTournament(id)
		pool, err := models.AddAmount(tr.PrizePool, tr.EntryFee)
		if err != nil {
			return err
		}
		tr.Participants = append(tr.Participants, caller)
		tr.CurrentPlayers++
		tr.PrizePool = pool

		t.queue(ledger.TransferFrom(caller, tr.EntryFee, fmt.Sprintf("tournament %d entry", id)))
		t.event(models.EventTournamentJoined, caller, id).Amount = tr.EntryFee
		return nil
	})
}

// checkFinishTournament validates the payout plan and returns the treasury remainder.
func (p *Platform) checkFinishTournament(t *txn, caller models.Address, id uint64, winners []models.Address, prizes []models.Amount) (models.Amount, error) {
	if err := t.requireOperator(caller); err != nil {
		return 0, err
	}
	tr, ok := t.tournament(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrTournamentNotFound, id)
	}
	if !tr.IsActive() || !p.tournaments.CanTransition(tr.Status, models.TournamentFinished) {
		return 0, fmt.Errorf("%w: %d", ErrTournamentNotActive, id)
	}
	if len(winners) != len(prizes) {
		return 0, fmt.Errorf("%w: %d winners, %d prizes", ErrLengthMismatch, len(winners), len(prizes))
	}
	seen := make(map[models.Address]struct{}, len(winners))
	for _, w := range winners {
		if w.IsZero() {
			return 0, ErrZeroAddress
		}
		if _, dup := seen[w]; dup {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateWinner, w)
		}
		seen[w] = struct{}{}
	}
	total, err := models.SumAmounts(prizes)
	if err != nil {
		return 0, err
	}
	if total > tr.PrizePool {
		return 0, fmt.Errorf("%w: %s > %s", ErrPrizeExceedsPool, total, tr.PrizePool)
	}
	remainder := tr.PrizePool - total
	if remainder > 0 && t.readSettings().Treasury.IsZero() {
		return 0, ErrTreasuryNotSet
	}
	return remainder, nil
}

// FinishTournament pays out prizes and sweeps the remainder to the
// treasury. Operator only. Wins recorded here unlock achievements at the
// winner's next session settlement.
func (p *Platform) FinishTournament(ctx context.Context, caller models.Address, id uint64, winners []models.Address, prizes []models.Amount) error {
	return p.exec(ctx, "finish_tournament", func(t *txn) error {
		remainder, err := p.checkFinishTournament(t, caller, id, winners, prizes)
		if err != nil {
			return err
		}

		tr := t.writeTournament(id)
		if err := p.tournaments.ChangeState(&tr.Status, models.TournamentFinished); err != nil {
			return err
		}
		tr.Winners = append([]models.Address(nil), winners...)
		tr.Prizes = append([]models.Amount(nil), prizes...)
		tr.FinishedAt = t.now

		for i, w := range winners {
			player := t.writePlayer(w)
			player.TotalWins++
			if player.TotalEarnings, err = models.AddAmount(player.TotalEarnings, prizes[i]); err != nil {
				return err
			}
			if prizes[i] > 0 {
				t.queue(ledger.Transfer(w, prizes[i], fmt.Sprintf("tournament %d prize %d", id, i+1)))
			}
		}
		if remainder > 0 {
			t.queue(ledger.Transfer(t.readSettings().Treasury, remainder, fmt.Sprintf("tournament %d remainder", id)))
		}

		t.event(models.EventTournamentFinished, caller, id).Amount = tr.PrizePool
		return nil
	})
}
