package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/platform"
)

var (
	operator  = models.MustParseAddress("0x00000000000000000000000000000000000000f1")
	treasury  = models.MustParseAddress("0x00000000000000000000000000000000000000f2")
	developer = models.MustParseAddress("0x00000000000000000000000000000000000000f3")
	alice     = models.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob       = models.MustParseAddress("0x00000000000000000000000000000000000000b1")
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCommitWritesChangeset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var n models.Nonce
	n[31] = 9
	cs := &models.Changeset{
		Operation: "finish_session",
		Settings:  &models.Settings{Operator: operator, Treasury: treasury, NextSessionID: 2, NextGameID: 2, NextTournamentID: 1, NextAchievementID: 1},
		Games:     []*models.Game{{ID: 1, Name: "Pong", Developer: developer, RevenueShare: 10, Active: true, TotalSessions: 1, TotalRevenue: 1_200_000, CreatedAt: now}},
		Sessions: []*models.GameSession{{
			ID: 1, GameID: 1, Player: alice, StartTime: now, EndTime: now.Add(time.Minute),
			Score: 2500, Reward: models.Tokens(12), Validated: true, Nonce: n, Status: models.SessionFinished,
		}},
		GamePlayers: []*models.GamePlayerRecord{{GameID: 1, Player: alice, LastScore: 2500, Sessions: 1}},
		Players: []*models.PlayerStats{{
			Address: alice, TotalGamesPlayed: 1, Experience: 25, Achievements: []uint64{3},
			GameStats: map[uint64]uint64{1: 2500},
		}},
		Nonces:     []models.Nonce{n},
		Validators: map[models.Address]bool{bob: true},
	}

	called := false
	err := store.Commit(ctx, cs, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called, "interact must run inside the commit")

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Settings)
	assert.Equal(t, *cs.Settings, *snap.Settings)
	require.Len(t, snap.Games, 1)
	assert.Equal(t, models.Amount(1_200_000), snap.Games[0].TotalRevenue)
	require.Len(t, snap.Sessions, 1)
	assert.Equal(t, n, snap.Sessions[0].Nonce)
	assert.True(t, snap.Sessions[0].IsFinished())
	require.Len(t, snap.Players, 1)
	assert.Equal(t, []uint64{3}, snap.Players[0].Achievements)
	assert.Equal(t, uint64(2500), snap.Players[0].GameStats[1])
	assert.Equal(t, []models.Nonce{n}, snap.Nonces)
	assert.Equal(t, []models.Address{bob}, snap.Validators)

	ops, err := store.RecentOperations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "finish_session", ops[0].Operation)
}

func TestCommitRollsBackWhenInteractFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs := &models.Changeset{
		Operation:   "register_game",
		Settings:    &models.Settings{Operator: operator, NextGameID: 2},
		Games:       []*models.Game{{ID: 1, Name: "Pong", Developer: developer, Active: true}},
		Tournaments: []*models.Tournament{{ID: 1, Type: models.RoundRobin, Status: models.TournamentActive}},
	}
	boom := errors.New("ledger down")
	err := store.Commit(ctx, cs, func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Settings)
	assert.Empty(t, snap.Games)
	assert.Empty(t, snap.Tournaments)

	ops, err := store.RecentOperations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestRevokedValidatorIsNotRestored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, store.Commit(ctx, &models.Changeset{Operation: "set_validator", Validators: map[models.Address]bool{bob: true}}, noop))
	require.NoError(t, store.Commit(ctx, &models.Changeset{Operation: "set_validator", Validators: map[models.Address]bool{bob: false}}, noop))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Validators)
}

func TestPlatformStateSurvivesRestart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	led := ledger.NewMemory()

	validator, err := attest.GenerateSigner()
	require.NoError(t, err)

	p, err := platform.New(platform.Options{Operator: operator, Treasury: treasury, Ledger: led, Committer: store})
	require.NoError(t, err)

	require.NoError(t, p.SetValidator(ctx, operator, validator.Address(), true))
	gameID, err := p.RegisterGame(ctx, operator, platform.GameParams{Name: "Pong", Developer: developer, RevenueShare: 25})
	require.NoError(t, err)
	sessionID, err := p.StartSession(ctx, alice, gameID)
	require.NoError(t, err)

	var n models.Nonce
	n[0] = 1
	_, err = p.FinishSession(ctx, alice, platform.FinishRequest{
		SessionID: sessionID, Score: 3000, Nonce: n, Signature: validator.Sign(sessionID, 3000, n),
	})
	require.NoError(t, err)

	tid, err := p.CreateTournament(ctx, operator, platform.TournamentParams{
		Name: "Cup", Type: models.BattleRoyale, EntryFee: models.Tokens(5), MaxPlayers: 3, Duration: time.Hour,
	})
	require.NoError(t, err)
	led.Credit(bob, models.Tokens(5))
	led.Approve(bob, models.Tokens(5))
	require.NoError(t, p.JoinTournament(ctx, bob, tid))

	// a failed operation must not reach the database
	require.Error(t, p.JoinTournament(ctx, alice, tid))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)

	restarted, err := platform.New(platform.Options{Operator: operator, Ledger: led, Committer: store})
	require.NoError(t, err)
	restarted.Restore(snap)

	assert.Equal(t, p.Settings(ctx), restarted.Settings(ctx))
	assert.Equal(t, p.PlayerStats(ctx, alice), restarted.PlayerStats(ctx, alice))
	wantStats, _ := p.GameStats(ctx, gameID)
	gotStats, err := restarted.GameStats(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, wantStats, gotStats)

	participants, err := restarted.TournamentParticipants(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{bob}, participants)
	assert.True(t, restarted.NonceConsumed(ctx, n))
	assert.True(t, restarted.IsValidator(ctx, validator.Address()))

	history, err := store.SessionHistory(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(3000), history[0].Score)

	got, err := store.Session(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, got.Validated)
	_, err = store.Session(ctx, 999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
