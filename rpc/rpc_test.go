package rpc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/logger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/platform"
	"github.com/wfunc/arenaledger/services"
)

var (
	operator  = models.MustParseAddress("0x00000000000000000000000000000000000000f1")
	developer = models.MustParseAddress("0x00000000000000000000000000000000000000f3")
	alice     = models.MustParseAddress("0x00000000000000000000000000000000000000a1")
)

func startServer(t *testing.T) (*Client, *platform.Platform) {
	t.Helper()
	p, err := platform.New(platform.Options{Operator: operator, Ledger: ledger.NewMemory()})
	if err != nil {
		t.Fatal(err)
	}

	service := NewArenaService(p, services.NewPlayerService(p, nil))
	srv, err := NewServer("127.0.0.1:0", service, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return client, p
}

func TestRPCReadsPlatformState(t *testing.T) {
	client, p := startServer(t)
	ctx := context.Background()

	validator, err := attest.GenerateSigner()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetValidator(ctx, operator, validator.Address(), true); err != nil {
		t.Fatal(err)
	}
	gameID, err := p.RegisterGame(ctx, operator, platform.GameParams{Name: "Pong", Developer: developer, RevenueShare: 10})
	if err != nil {
		t.Fatal(err)
	}
	sessionID, err := p.StartSession(ctx, alice, gameID)
	if err != nil {
		t.Fatal(err)
	}
	var n models.Nonce
	n[0] = 7
	if _, err := p.FinishSession(ctx, alice, platform.FinishRequest{
		SessionID: sessionID, Score: 12_000, Nonce: n, Signature: validator.Sign(sessionID, 12_000, n),
	}); err != nil {
		t.Fatal(err)
	}

	profile, err := client.PlayerWithStats(alice, 10)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Stats.Experience != 120 || profile.Stats.GameStats[gameID] != 12_000 {
		t.Errorf("Unexpected stats over rpc: %+v", profile.Stats)
	}

	stats, err := client.GameStats(gameID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Name != "Pong" || stats.TotalSessions != 1 {
		t.Errorf("Unexpected game stats: %+v", stats)
	}

	counts, err := client.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts.Games != 1 || counts.Sessions != 1 || counts.ConsumedNonces != 1 {
		t.Errorf("Unexpected counts: %+v", counts)
	}
}

func TestRPCReturnsErrors(t *testing.T) {
	client, p := startServer(t)

	if _, err := client.Tournament(42); err == nil || !strings.Contains(err.Error(), "tournament not found") {
		t.Errorf("Expected not found error, got %v", err)
	}

	id, err := p.CreateTournament(context.Background(), operator, platform.TournamentParams{
		Name: "Cup", Type: models.SingleElimination, EntryFee: models.Tokens(1), MaxPlayers: 2, Duration: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	tr, err := client.Tournament(id)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name != "Cup" || !tr.IsActive() {
		t.Errorf("Unexpected tournament: %+v", tr)
	}

	if _, err := client.PlayerWithStats(models.ZeroAddress, 1); err != nil {
		t.Errorf("Zero address is still a valid query, got %v", err)
	}
}
