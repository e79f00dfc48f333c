package platform

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/progression"
)

func TestNewRequiresOperatorAndLedger(t *testing.T) {
	if _, err := New(Options{Ledger: ledger.NewMemory()}); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("Expected ErrZeroAddress without operator, got %v", err)
	}
	if _, err := New(Options{Operator: operator}); err == nil {
		t.Error("Expected an error without a ledger")
	}
}

func TestRegisterGameValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		caller models.Address
		params GameParams
		want   error
	}{
		{"non operator", alice, GameParams{Name: "g", Developer: developer}, ErrNotOperator},
		{"empty name", operator, GameParams{Name: " ", Developer: developer}, ErrEmptyName},
		{"zero developer", operator, GameParams{Name: "g"}, ErrZeroAddress},
		{"share above 100", operator, GameParams{Name: "g", Developer: developer, RevenueShare: 101}, ErrRevenueShareTooHigh},
		{"difficulty too high", operator, GameParams{Name: "g", Developer: developer, Difficulty: MaxDifficulty + 1}, ErrInvalidDifficulty},
	}
	for _, tc := range cases {
		if _, err := f.p.RegisterGame(f.ctx, tc.caller, tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(f.p.Games(f.ctx)) != 0 {
		t.Error("Rejected registrations must not create games")
	}

	id, err := f.p.RegisterGame(f.ctx, operator, GameParams{Name: "Pong", Developer: developer, RevenueShare: 100})
	if err != nil {
		t.Fatal(err)
	}
	view, _ := f.p.GameStats(f.ctx, id)
	if view.Name != "Pong" || view.Developer != developer || !view.Active || view.TotalSessions != 0 {
		t.Errorf("Unexpected game view %+v", view)
	}
	if f.p.Settings(f.ctx).NextGameID != id+1 {
		t.Error("Game id counter should advance")
	}
}

func TestCreateAchievementKinds(t *testing.T) {
	f := newFixture(t)

	for _, kind := range []models.AchievementKind{models.AchievementStreak, models.AchievementScore} {
		_, err := f.p.CreateAchievement(f.ctx, operator, AchievementParams{Name: "x", Kind: kind, Threshold: 1})
		if !errors.Is(err, progression.ErrUnsupportedAchievement) {
			t.Errorf("%s: expected ErrUnsupportedAchievement, got %v", kind, err)
		}
	}
	if _, err := f.p.CreateAchievement(f.ctx, operator, AchievementParams{Name: "x", Kind: "marathon"}); !errors.Is(err, ErrUnknownAchievementKind) {
		t.Errorf("Expected ErrUnknownAchievementKind, got %v", err)
	}
	if _, err := f.p.CreateAchievement(f.ctx, alice, AchievementParams{Name: "x", Kind: models.AchievementWins}); !errors.Is(err, ErrNotOperator) {
		t.Errorf("Expected ErrNotOperator, got %v", err)
	}

	id, err := f.p.CreateAchievement(f.ctx, operator, AchievementParams{Name: "Veteran", Kind: models.AchievementGamesPlayed, Threshold: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.p.SetAchievementActive(f.ctx, operator, id, false); err != nil {
		t.Fatal(err)
	}
	if err := f.p.SetAchievementActive(f.ctx, operator, id+1, false); !errors.Is(err, ErrAchievementNotFound) {
		t.Errorf("Expected ErrAchievementNotFound, got %v", err)
	}

	gameID := f.registerGame(0)
	session := f.startSession(alice, gameID)
	res, err := f.p.FinishSession(f.ctx, alice, f.attested(session, 10, nonce(1)))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Unlocked) != 0 {
		t.Error("Inactive achievements must not unlock")
	}
}

func TestOperatorSettings(t *testing.T) {
	f := newFixture(t)

	if err := f.p.SetPlatformFee(f.ctx, operator, MaxPlatformFeeBps+1); !errors.Is(err, ErrPlatformFeeTooHigh) || Classify(err) != ClassBounds {
		t.Errorf("Expected ErrPlatformFeeTooHigh, got %v", err)
	}
	if err := f.p.SetPlatformFee(f.ctx, operator, MaxPlatformFeeBps); err != nil {
		t.Fatal(err)
	}
	if f.p.Settings(f.ctx).PlatformFeeBps != MaxPlatformFeeBps {
		t.Error("Platform fee should be stored")
	}

	if err := f.p.SetTreasury(f.ctx, operator, models.ZeroAddress); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("Expected ErrZeroAddress, got %v", err)
	}
	if err := f.p.SetTreasury(f.ctx, alice, carol); !errors.Is(err, ErrNotOperator) {
		t.Errorf("Expected ErrNotOperator, got %v", err)
	}
	if err := f.p.SetTreasury(f.ctx, operator, carol); err != nil {
		t.Fatal(err)
	}
	if f.p.Settings(f.ctx).Treasury != carol {
		t.Error("Treasury should be updated")
	}

	if err := f.p.SetValidator(f.ctx, operator, models.ZeroAddress, true); !errors.Is(err, ErrZeroAddress) {
		t.Errorf("Expected ErrZeroAddress for validator, got %v", err)
	}
	if err := f.p.SetValidator(f.ctx, bob, bob, true); !errors.Is(err, ErrNotOperator) {
		t.Errorf("Expected ErrNotOperator, got %v", err)
	}
	if f.p.IsValidator(f.ctx, bob) {
		t.Error("Rejected SetValidator must not authorize")
	}
}

func TestPauseBlocksPlayerOperations(t *testing.T) {
	f := newFixture(t)
	gameID := f.registerGame(10)
	session := f.startSession(alice, gameID)
	tournament := f.createTournament(models.Tokens(1), 4)
	f.fund(bob, models.Tokens(1))

	if err := f.p.Pause(f.ctx, alice); !errors.Is(err, ErrNotOperator) {
		t.Errorf("Expected ErrNotOperator, got %v", err)
	}
	if err := f.p.Pause(f.ctx, operator); err != nil {
		t.Fatal(err)
	}

	if _, err := f.p.StartSession(f.ctx, alice, gameID); !errors.Is(err, ErrPaused) {
		t.Errorf("StartSession: expected ErrPaused, got %v", err)
	}
	if _, err := f.p.FinishSession(f.ctx, alice, f.attested(session, 10, nonce(1))); !errors.Is(err, ErrPaused) {
		t.Errorf("FinishSession: expected ErrPaused, got %v", err)
	}
	if err := f.p.JoinTournament(f.ctx, bob, tournament); !errors.Is(err, ErrPaused) {
		t.Errorf("JoinTournament: expected ErrPaused, got %v", err)
	}

	if err := f.p.Unpause(f.ctx, operator); err != nil {
		t.Fatal(err)
	}
	if _, err := f.p.FinishSession(f.ctx, alice, f.attested(session, 10, nonce(1))); err != nil {
		t.Errorf("FinishSession after unpause failed: %v", err)
	}
	if err := f.p.JoinTournament(f.ctx, bob, tournament); err != nil {
		t.Errorf("JoinTournament after unpause failed: %v", err)
	}
	if f.events.count(models.EventPaused) != 1 || f.events.count(models.EventUnpaused) != 1 {
		t.Error("Expected one paused and one unpaused event")
	}
}

func TestVerifyOperatorAfterRestore(t *testing.T) {
	f := newFixture(t)
	snap := f.p.Snapshot(f.ctx)

	if err := f.p.VerifyOperator(f.ctx, operator); err != nil {
		t.Fatalf("Configured operator should match, got %v", err)
	}

	restored, err := New(Options{Operator: bob, Ledger: f.ledger})
	if err != nil {
		t.Fatal(err)
	}
	restored.Restore(snap)

	err = restored.VerifyOperator(f.ctx, bob)
	if !errors.Is(err, ErrOperatorMismatch) {
		t.Fatalf("Expected ErrOperatorMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), operator.String()) || !strings.Contains(err.Error(), bob.String()) {
		t.Errorf("Mismatch error should name both operators, got %q", err)
	}
	if err := restored.VerifyOperator(f.ctx, operator); err != nil {
		t.Errorf("Persisted operator should verify, got %v", err)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	f := newFixture(t)
	gameID := f.registerGame(20)
	session := f.startSession(alice, gameID)
	if _, err := f.p.FinishSession(f.ctx, alice, f.attested(session, 4000, nonce(1))); err != nil {
		t.Fatal(err)
	}
	id := f.createTournament(models.Tokens(1), 2)
	f.fund(bob, models.Tokens(1))
	if err := f.p.JoinTournament(f.ctx, bob, id); err != nil {
		t.Fatal(err)
	}

	snap := f.p.Snapshot(f.ctx)

	restored, err := New(Options{Operator: operator, Ledger: f.ledger})
	if err != nil {
		t.Fatal(err)
	}
	restored.Restore(snap)

	if got, want := restored.PlayerStats(f.ctx, alice), f.p.PlayerStats(f.ctx, alice); got.Experience != want.Experience || got.GameStats[gameID] != want.GameStats[gameID] {
		t.Errorf("Player stats differ after restore: %+v vs %+v", got, want)
	}
	if !restored.NonceConsumed(f.ctx, nonce(1)) || !restored.IsValidator(f.ctx, f.validator.Address()) {
		t.Error("Nonces and validators must survive a restore")
	}
	if restored.Settings(f.ctx) != f.p.Settings(f.ctx) {
		t.Error("Settings must survive a restore")
	}
	participants, _ := restored.TournamentParticipants(f.ctx, id)
	if len(participants) != 1 || participants[0] != bob {
		t.Errorf("Unexpected participants after restore %v", participants)
	}

	next, err := restored.StartSession(f.ctx, alice, gameID)
	if err != nil {
		t.Fatal(err)
	}
	if next != session+1 {
		t.Errorf("Session ids must continue after restore, got %d", next)
	}
	_, err = restored.FinishSession(f.ctx, alice, f.attested(next, 4000, nonce(1)))
	if !errors.Is(err, attest.ErrNonceConsumed) {
		t.Errorf("Replay must be rejected after restore, got %v", err)
	}
}

func TestCountersNeverDecrease(t *testing.T) {
	f := newFixture(t)
	gameID := f.registerGame(25)
	if _, err := f.p.CreateAchievement(f.ctx, operator, AchievementParams{Name: "Regular", Kind: models.AchievementGamesPlayed, Threshold: 3, Reward: models.Tokens(1)}); err != nil {
		t.Fatal(err)
	}

	prev := f.p.PlayerStats(f.ctx, alice)
	check := func(step string) {
		t.Helper()
		cur := f.p.PlayerStats(f.ctx, alice)
		if cur.TotalGamesPlayed < prev.TotalGamesPlayed || cur.Experience < prev.Experience ||
			cur.Level < prev.Level || cur.TotalWins < prev.TotalWins ||
			cur.TotalEarnings < prev.TotalEarnings || len(cur.Achievements) < len(prev.Achievements) {
			t.Fatalf("%s: counters decreased from %+v to %+v", step, prev, cur)
		}
		prev = cur
	}

	for i := 0; i < 6; i++ {
		id := f.startSession(alice, gameID)
		check(fmt.Sprintf("start %d", i))

		var err error
		if i%2 == 1 {
			// a failing mint must leave the counters where they were
			f.ledger.Fail = func(op ledger.Op) error { return errors.New("down") }
			_, err = f.p.FinishSession(f.ctx, alice, f.attested(id, uint64(i)*40_000, nonce(byte(i))))
			f.ledger.Fail = nil
			if err == nil {
				t.Fatal("Expected injected failure")
			}
			check(fmt.Sprintf("failed finish %d", i))
		}
		if _, err = f.p.FinishSession(f.ctx, alice, f.attested(id, uint64(i)*40_000, nonce(byte(i)))); err != nil {
			t.Fatal(err)
		}
		check(fmt.Sprintf("finish %d", i))
	}
	if prev.Level == 0 || len(prev.Achievements) != 1 {
		t.Errorf("Expected progression after six sessions, got %+v", prev)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{nil, ClassNone},
		{ErrPaused, ClassPrecondition},
		{fmt.Errorf("x: %w", ErrNotOperator), ClassUnauthorized},
		{attest.ErrMalformedSignature, ClassUnauthorized},
		{fmt.Errorf("%w: %w", ErrLedger, ledger.ErrInsufficientBalance), ClassLedger},
		{ErrRevenueShareTooHigh, ClassBounds},
		{errors.New("disk full"), ClassInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
