package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
)

func TestTournamentEscrowScenario(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 2)
	f.fund(alice, fee)
	f.fund(bob, fee)

	for _, player := range []models.Address{alice, bob} {
		if err := f.p.JoinTournament(f.ctx, player, id); err != nil {
			t.Fatalf("JoinTournament(%s) failed: %v", player, err)
		}
	}

	tr, _ := f.p.Tournament(f.ctx, id)
	if tr.PrizePool != models.Tokens(20) || tr.CurrentPlayers != 2 || len(tr.Participants) != 2 {
		t.Fatalf("Unexpected tournament after joins: %+v", tr)
	}
	if f.ledger.Escrow() != models.Tokens(20) {
		t.Errorf("Expected 20 tokens in escrow, got %d", f.ledger.Escrow())
	}

	err := f.p.FinishTournament(f.ctx, operator, id, []models.Address{alice}, []models.Amount{models.Tokens(15)})
	if err != nil {
		t.Fatalf("FinishTournament failed: %v", err)
	}

	if f.ledger.BalanceOf(alice) != models.Tokens(15) {
		t.Errorf("Expected winner balance 15 tokens, got %d", f.ledger.BalanceOf(alice))
	}
	if f.ledger.BalanceOf(treasury) != models.Tokens(5) {
		t.Errorf("Expected treasury balance 5 tokens, got %d", f.ledger.BalanceOf(treasury))
	}
	if f.ledger.Escrow() != 0 {
		t.Errorf("Escrow should be empty, got %d", f.ledger.Escrow())
	}

	tr, _ = f.p.Tournament(f.ctx, id)
	if !tr.IsFinished() || tr.IsActive() || len(tr.Winners) != 1 || tr.Prizes[0] != models.Tokens(15) {
		t.Errorf("Tournament not settled: %+v", tr)
	}
	stats := f.p.PlayerStats(f.ctx, alice)
	if stats.TotalWins != 1 || stats.TotalEarnings != models.Tokens(15) {
		t.Errorf("Unexpected winner stats %+v", stats)
	}

	err = f.p.FinishTournament(f.ctx, operator, id, []models.Address{bob}, []models.Amount{models.Tokens(1)})
	if !errors.Is(err, ErrTournamentNotActive) {
		t.Errorf("Expected second finish to be rejected, got %v", err)
	}
	if f.ledger.BalanceOf(bob) != 0 {
		t.Error("Rejected finish must not pay out")
	}
}

func TestTournamentWinUnlocksAchievementAtNextSettlement(t *testing.T) {
	f := newFixture(t)
	achID, err := f.p.CreateAchievement(f.ctx, operator, AchievementParams{Name: "Champion", Kind: models.AchievementWins, Threshold: 1, Reward: models.Tokens(2)})
	if err != nil {
		t.Fatal(err)
	}

	fee := models.Tokens(10)
	id := f.createTournament(fee, 2)
	f.fund(alice, fee)
	f.fund(bob, fee)
	_ = f.p.JoinTournament(f.ctx, alice, id)
	_ = f.p.JoinTournament(f.ctx, bob, id)

	if err := f.p.FinishTournament(f.ctx, operator, id, []models.Address{alice}, []models.Amount{models.Tokens(20)}); err != nil {
		t.Fatal(err)
	}

	if got := f.p.PlayerAchievements(f.ctx, alice); len(got) != 0 {
		t.Fatalf("Finish must not run the achievement pass, got %v", got)
	}
	if f.p.PlayerStats(f.ctx, alice).TotalWins != 1 {
		t.Fatal("Win must be recorded at finish")
	}
	if f.ledger.BalanceOf(alice) != models.Tokens(20) {
		t.Errorf("Expected only the prize paid at finish, got %d", f.ledger.BalanceOf(alice))
	}

	gameID := f.registerGame(0)
	first, err := f.p.FinishSession(f.ctx, alice, f.attested(f.startSession(alice, gameID), 0, nonce(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Unlocked) != 1 || first.Unlocked[0] != achID {
		t.Fatalf("Expected next settlement to unlock %d, got %v", achID, first.Unlocked)
	}

	second, err := f.p.FinishSession(f.ctx, alice, f.attested(f.startSession(alice, gameID), 0, nonce(2)))
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Unlocked) != 0 {
		t.Errorf("Achievement must unlock exactly once, got %v", second.Unlocked)
	}

	if got := f.p.PlayerAchievements(f.ctx, alice); len(got) != 1 || got[0] != achID {
		t.Errorf("Expected achievements [%d], got %v", achID, got)
	}
	if len(f.p.PlayerAchievements(f.ctx, bob)) != 0 {
		t.Error("Loser must not unlock the wins achievement")
	}
	if f.p.PlayerStats(f.ctx, alice).TotalEarnings != models.Tokens(22) {
		t.Errorf("Expected earnings of prize plus achievement reward, got %d", f.p.PlayerStats(f.ctx, alice).TotalEarnings)
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	f := newFixture(t)
	base := TournamentParams{Name: "Cup", Type: models.RoundRobin, EntryFee: models.Tokens(1), MaxPlayers: 4, Duration: time.Hour}

	cases := []struct {
		name   string
		caller models.Address
		mutate func(p *TournamentParams)
		want   error
	}{
		{"non operator", alice, func(p *TournamentParams) {}, ErrNotOperator},
		{"fee below minimum", operator, func(p *TournamentParams) { p.EntryFee = DefaultMinimumEntryFee - 1 }, ErrEntryFeeTooLow},
		{"one player", operator, func(p *TournamentParams) { p.MaxPlayers = 1 }, ErrInvalidMaxPlayers},
		{"zero duration", operator, func(p *TournamentParams) { p.Duration = 0 }, ErrInvalidDuration},
		{"too long", operator, func(p *TournamentParams) { p.Duration = DefaultMaximumDuration + time.Second }, ErrInvalidDuration},
		{"unknown type", operator, func(p *TournamentParams) { p.Type = "ladder" }, ErrInvalidTournamentType},
	}
	for _, tc := range cases {
		params := base
		tc.mutate(&params)
		if _, err := f.p.CreateTournament(f.ctx, tc.caller, params); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if f.p.Counts(f.ctx).Tournaments != 0 {
		t.Error("Rejected creates must not allocate tournaments")
	}

	start := f.now.Add(time.Hour)
	params := base
	params.StartTime = start
	id, err := f.p.CreateTournament(f.ctx, operator, params)
	if err != nil {
		t.Fatal(err)
	}
	tr, _ := f.p.Tournament(f.ctx, id)
	if !tr.StartTime.Equal(start) || !tr.EndTime.Equal(start.Add(time.Hour)) || tr.PrizePool != 0 || tr.CurrentPlayers != 0 {
		t.Errorf("Unexpected new tournament %+v", tr)
	}
}

func TestJoinTournamentPreconditions(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 2)
	for _, p := range []models.Address{alice, bob, carol} {
		f.fund(p, fee*2)
	}

	if err := f.p.JoinTournament(f.ctx, alice, id); err != nil {
		t.Fatal(err)
	}
	if err := f.p.JoinTournament(f.ctx, alice, id); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("Expected ErrAlreadyJoined, got %v", err)
	}
	if err := f.p.JoinTournament(f.ctx, bob, id); err != nil {
		t.Fatal(err)
	}
	if err := f.p.JoinTournament(f.ctx, carol, id); !errors.Is(err, ErrTournamentFull) {
		t.Errorf("Expected ErrTournamentFull, got %v", err)
	}
	if err := f.p.JoinTournament(f.ctx, carol, 99); !errors.Is(err, ErrTournamentNotFound) {
		t.Errorf("Expected ErrTournamentNotFound, got %v", err)
	}

	later := f.createTournament(fee, 8)
	f.now = f.now.Add(2 * time.Hour)
	if err := f.p.JoinTournament(f.ctx, carol, later); !errors.Is(err, ErrOutsideWindow) {
		t.Errorf("Expected ErrOutsideWindow after the end time, got %v", err)
	}

	if f.ledger.BalanceOf(carol) != fee*2 {
		t.Error("Rejected joins must not pull funds")
	}
}

func TestJoinTournamentLedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 4)
	f.ledger.Credit(alice, fee)

	err := f.p.JoinTournament(f.ctx, alice, id)
	if !errors.Is(err, ErrLedger) || !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("Expected ledger allowance failure, got %v", err)
	}

	tr, _ := f.p.Tournament(f.ctx, id)
	if tr.PrizePool != 0 || tr.CurrentPlayers != 0 || len(tr.Participants) != 0 {
		t.Errorf("Join must be undone when the pull fails: %+v", tr)
	}
	if f.events.count(models.EventTournamentJoined) != 0 {
		t.Error("Failed join must not publish")
	}

	f.ledger.Approve(alice, fee)
	if err := f.p.JoinTournament(f.ctx, alice, id); err != nil {
		t.Fatalf("Join after approval should succeed, got %v", err)
	}
}

func TestJoinTournamentReentrancy(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 4)
	f.fund(alice, fee*2)

	var reentrant, bypass error
	var seen []models.Address
	f.ledger.BeforeApply = func(ctx context.Context, ops []ledger.Op) {
		reentrant = f.p.JoinTournament(ctx, alice, id)
		_, bypass = f.p.checkJoin(newTxn(f.p.store, "bypass", f.now), alice, id)
		seen, _ = f.p.TournamentParticipants(ctx, id)
	}
	if err := f.p.JoinTournament(f.ctx, alice, id); err != nil {
		t.Fatal(err)
	}
	f.ledger.BeforeApply = nil

	if !errors.Is(reentrant, ErrReentrantCall) {
		t.Errorf("Expected ErrReentrantCall, got %v", reentrant)
	}
	if !errors.Is(bypass, ErrAlreadyJoined) {
		t.Errorf("Participant must be recorded before the pull, got %v", bypass)
	}
	if len(seen) != 1 || seen[0] != alice {
		t.Errorf("Ledger callback should observe the participant, got %v", seen)
	}

	tr, _ := f.p.Tournament(f.ctx, id)
	if tr.PrizePool != fee || f.ledger.BalanceOf(alice) != fee {
		t.Errorf("Entry fee must be counted once: pool=%d balance=%d", tr.PrizePool, f.ledger.BalanceOf(alice))
	}
}

func TestJoinTournamentReentrancyWithFreshContext(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 4)
	f.fund(alice, fee*2)
	f.fund(bob, fee)

	var again, other error
	f.ledger.BeforeApply = func(_ context.Context, _ []ledger.Op) {
		again = f.p.JoinTournament(context.Background(), alice, id)
		other = f.p.JoinTournament(context.Background(), bob, id)
	}

	done := make(chan error, 1)
	go func() { done <- f.p.JoinTournament(f.ctx, alice, id) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Callback with a fresh context blocked on the platform")
	}
	f.ledger.BeforeApply = nil

	if !errors.Is(again, ErrReentrantCall) || !errors.Is(other, ErrReentrantCall) {
		t.Errorf("Expected ErrReentrantCall, got %v and %v", again, other)
	}
	participants, _ := f.p.TournamentParticipants(f.ctx, id)
	if len(participants) != 1 {
		t.Errorf("Only the outer join may land, got %v", participants)
	}
	if f.ledger.BalanceOf(alice) != fee {
		t.Errorf("Entry fee must be pulled once, balance %d", f.ledger.BalanceOf(alice))
	}
}

func TestFinishTournamentValidation(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 4)
	f.fund(alice, fee)
	f.fund(bob, fee)
	_ = f.p.JoinTournament(f.ctx, alice, id)
	_ = f.p.JoinTournament(f.ctx, bob, id)

	cases := []struct {
		name    string
		caller  models.Address
		winners []models.Address
		prizes  []models.Amount
		want    error
		class   Class
	}{
		{"non operator", alice, []models.Address{alice}, []models.Amount{1}, ErrNotOperator, ClassUnauthorized},
		{"length mismatch", operator, []models.Address{alice, bob}, []models.Amount{1}, ErrLengthMismatch, ClassPrecondition},
		{"zero winner", operator, []models.Address{models.ZeroAddress}, []models.Amount{1}, ErrZeroAddress, ClassPrecondition},
		{"duplicate winner", operator, []models.Address{alice, alice}, []models.Amount{1, 1}, ErrDuplicateWinner, ClassPrecondition},
		{"over pool", operator, []models.Address{alice, bob}, []models.Amount{models.Tokens(15), models.Tokens(6)}, ErrPrizeExceedsPool, ClassBounds},
		{"overflow", operator, []models.Address{alice, bob}, []models.Amount{^models.Amount(0), 1}, models.ErrAmountOverflow, ClassBounds},
	}
	for _, tc := range cases {
		err := f.p.FinishTournament(f.ctx, tc.caller, id, tc.winners, tc.prizes)
		if !errors.Is(err, tc.want) || Classify(err) != tc.class {
			t.Errorf("%s: expected %v (%s), got %v (%s)", tc.name, tc.want, tc.class, err, Classify(err))
		}
	}

	tr, _ := f.p.Tournament(f.ctx, id)
	if !tr.IsActive() || tr.PrizePool != models.Tokens(20) {
		t.Error("Rejected finishes must leave the tournament active with its pool")
	}
	if f.p.PlayerStats(f.ctx, alice).TotalWins != 0 {
		t.Error("Rejected finishes must not credit wins")
	}
}

func TestFinishTournamentRequiresTreasuryForRemainder(t *testing.T) {
	f := newFixtureWithTreasury(t, models.ZeroAddress)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 2)
	f.fund(alice, fee)
	_ = f.p.JoinTournament(f.ctx, alice, id)

	err := f.p.FinishTournament(f.ctx, operator, id, nil, nil)
	if !errors.Is(err, ErrTreasuryNotSet) {
		t.Fatalf("Expected ErrTreasuryNotSet, got %v", err)
	}

	if err := f.p.FinishTournament(f.ctx, operator, id, []models.Address{alice}, []models.Amount{fee}); err != nil {
		t.Fatalf("Full payout needs no treasury, got %v", err)
	}
	if f.ledger.BalanceOf(alice) != fee {
		t.Errorf("Expected full refund as prize, got %d", f.ledger.BalanceOf(alice))
	}
}

func TestFinishTournamentLedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	fee := models.Tokens(10)
	id := f.createTournament(fee, 2)
	f.fund(alice, fee)
	f.fund(bob, fee)
	_ = f.p.JoinTournament(f.ctx, alice, id)
	_ = f.p.JoinTournament(f.ctx, bob, id)

	f.ledger.Fail = func(op ledger.Op) error {
		if op.Account == treasury {
			return errors.New("treasury locked")
		}
		return nil
	}
	err := f.p.FinishTournament(f.ctx, operator, id, []models.Address{alice}, []models.Amount{models.Tokens(15)})
	if !errors.Is(err, ErrLedger) {
		t.Fatalf("Expected ErrLedger, got %v", err)
	}

	tr, _ := f.p.Tournament(f.ctx, id)
	if !tr.IsActive() || len(tr.Winners) != 0 || len(tr.Prizes) != 0 {
		t.Errorf("Tournament must stay active after a failed payout: %+v", tr)
	}
	if stats := f.p.PlayerStats(f.ctx, alice); stats.TotalWins != 0 || stats.TotalEarnings != 0 {
		t.Errorf("Winner stats must be untouched: %+v", stats)
	}
	if f.ledger.BalanceOf(alice) != 0 || f.ledger.Escrow() != models.Tokens(20) {
		t.Error("No payout leg may land when one fails")
	}

	f.ledger.Fail = nil
	if err := f.p.FinishTournament(f.ctx, operator, id, []models.Address{alice}, []models.Amount{models.Tokens(15)}); err != nil {
		t.Fatalf("Retry should succeed, got %v", err)
	}
}
