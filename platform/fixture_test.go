package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
)

var (
	operator  = models.MustParseAddress("0x0000000000000000000000000000000000000a01")
	treasury  = models.MustParseAddress("0x0000000000000000000000000000000000000a02")
	developer = models.MustParseAddress("0x0000000000000000000000000000000000000a03")
	alice     = models.MustParseAddress("0x0000000000000000000000000000000000000b01")
	bob       = models.MustParseAddress("0x0000000000000000000000000000000000000b02")
	carol     = models.MustParseAddress("0x0000000000000000000000000000000000000b03")
)

// eventLog is a test double for Observer.
type eventLog struct {
	mutex  sync.Mutex
	events []models.Event
}

func (l *eventLog) Publish(ev models.Event) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind models.EventKind) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// recordingCommitter keeps every changeset that committed.
type recordingCommitter struct {
	committed []*models.Changeset
	failWith  error
}

func (c *recordingCommitter) Commit(ctx context.Context, cs *models.Changeset, interact func(ctx context.Context) error) error {
	if c.failWith != nil {
		return c.failWith
	}
	if err := interact(ctx); err != nil {
		return err
	}
	c.committed = append(c.committed, cs)
	return nil
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	p         *Platform
	ledger    *ledger.Memory
	events    *eventLog
	committer *recordingCommitter
	validator *attest.Signer
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithTreasury(t, treasury)
}

func newFixtureWithTreasury(t *testing.T, treasuryAddr models.Address) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		ledger:    ledger.NewMemory(),
		events:    &eventLog{},
		committer: &recordingCommitter{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	validator, err := attest.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner failed: %v", err)
	}
	f.validator = validator

	p, err := New(Options{
		Operator:  operator,
		Treasury:  treasuryAddr,
		Ledger:    f.ledger,
		Observer:  f.events,
		Committer: f.committer,
		Clock:     func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.p = p

	if err := p.SetValidator(f.ctx, operator, validator.Address(), true); err != nil {
		t.Fatalf("SetValidator failed: %v", err)
	}
	return f
}

func (f *fixture) registerGame(share uint8) uint64 {
	f.t.Helper()
	id, err := f.p.RegisterGame(f.ctx, operator, GameParams{Name: "Asteroids", Developer: developer, RevenueShare: share, Difficulty: 100})
	if err != nil {
		f.t.Fatalf("RegisterGame failed: %v", err)
	}
	return id
}

func (f *fixture) startSession(player models.Address, gameID uint64) uint64 {
	f.t.Helper()
	id, err := f.p.StartSession(f.ctx, player, gameID)
	if err != nil {
		f.t.Fatalf("StartSession failed: %v", err)
	}
	return id
}

// attested builds a request signed by the fixture's validator.
func (f *fixture) attested(sessionID, score uint64, n models.Nonce) FinishRequest {
	return FinishRequest{
		SessionID: sessionID,
		Score:     score,
		Nonce:     n,
		Signature: f.validator.Sign(sessionID, score, n),
	}
}

func (f *fixture) createTournament(fee models.Amount, maxPlayers uint32) uint64 {
	f.t.Helper()
	id, err := f.p.CreateTournament(f.ctx, operator, TournamentParams{
		Name:       "Spring Cup",
		Type:       models.SingleElimination,
		EntryFee:   fee,
		MaxPlayers: maxPlayers,
		Duration:   time.Hour,
	})
	if err != nil {
		f.t.Fatalf("CreateTournament failed: %v", err)
	}
	return id
}

// fund gives player amount and approves the platform to pull it.
func (f *fixture) fund(player models.Address, amount models.Amount) {
	f.ledger.Credit(player, amount)
	f.ledger.Approve(player, amount)
}

func nonce(b byte) models.Nonce {
	var n models.Nonce
	n[0] = 0xee
	n[31] = b
	return n
}
