// Package platform is the settlement core: session settlement, tournament
// escrow and the operator surface, all running as guarded, journaled
// operations over one aggregate of registries.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/progression"
	"github.com/wfunc/arenaledger/reward"
	"github.com/wfunc/arenaledger/state"
)

const (
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1000
	// MaxDifficulty is the highest difficulty percent a game may register with.
	MaxDifficulty = 10_000

	DefaultMinimumEntryFee = models.TokenUnit
	DefaultMaximumDuration = 30 * 24 * time.Hour
)

// Committer persists a changeset. interact runs the ledger batch and must be
// called exactly once; if it fails nothing may be persisted.
type Committer interface {
	Commit(ctx context.Context, cs *models.Changeset, interact func(ctx context.Context) error) error
}

// Observer receives events after their operation committed.
type Observer interface {
	Publish(ev models.Event)
}

// Metrics records operation outcomes.
type Metrics interface {
	ObserveOperation(op string, class Class, d time.Duration)
	AddMinted(amount models.Amount)
	IncNotifyFailures()
}

type Options struct {
	Operator        models.Address
	Treasury        models.Address
	Ledger          ledger.Ledger
	Rewards         *reward.Calculator
	Progression     *progression.Engine
	Committer       Committer
	Observer        Observer
	Metrics         Metrics
	Logger          *zap.SugaredLogger
	Clock           func() time.Time
	MinimumEntryFee models.Amount
	MaximumDuration time.Duration
}

type Platform struct {
	mutex sync.RWMutex
	store *store

	// calling is set while an operation waits on the ledger or committer.
	calling atomic.Pointer[guard]
	frozen  sync.RWMutex

	ledger      ledger.Ledger
	verifier    *attest.Verifier
	rewards     *reward.Calculator
	progression *progression.Engine
	sessions    *state.Lifecycle[models.SessionStatus]
	tournaments *state.Lifecycle[models.TournamentStatus]

	committer Committer
	observer  Observer
	metrics   Metrics
	log       *zap.SugaredLogger
	clock     func() time.Time

	minimumEntryFee models.Amount
	maximumDuration time.Duration
}

func New(opts Options) (*Platform, error) {
	if opts.Operator.IsZero() {
		return nil, fmt.Errorf("operator: %w", ErrZeroAddress)
	}
	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}

	p := &Platform{
		ledger:          opts.Ledger,
		rewards:         opts.Rewards,
		progression:     opts.Progression,
		sessions:        state.NewSessionLifecycle(),
		tournaments:     state.NewTournamentLifecycle(),
		committer:       opts.Committer,
		observer:        opts.Observer,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		clock:           opts.Clock,
		minimumEntryFee: opts.MinimumEntryFee,
		maximumDuration: opts.MaximumDuration,
	}
	if p.rewards == nil {
		c, err := reward.NewCalculator(reward.DefaultPolicy())
		if err != nil {
			return nil, err
		}
		p.rewards = c
	}
	if p.progression == nil {
		e, err := progression.NewEngine(progression.DefaultXPPerLevel)
		if err != nil {
			return nil, err
		}
		p.progression = e
	}
	if p.committer == nil {
		p.committer = directCommitter{}
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	if p.log == nil {
		p.log = zap.NewNop().Sugar()
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.minimumEntryFee == 0 {
		p.minimumEntryFee = DefaultMinimumEntryFee
	}
	if p.maximumDuration == 0 {
		p.maximumDuration = DefaultMaximumDuration
	}

	p.store = newStore(models.Settings{
		Operator:          opts.Operator,
		Treasury:          opts.Treasury,
		NextTournamentID:  1,
		NextGameID:        1,
		NextSessionID:     1,
		NextAchievementID: 1,
	})
	p.verifier = attest.NewVerifier(p.store, p.store)
	return p, nil
}

// Restore replaces all state with a persisted snapshot. It must run before
// the platform serves traffic.
func (p *Platform) Restore(snap *models.Snapshot) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.store = storeFromSnapshot(snap, p.store.settings)
	p.verifier = attest.NewVerifier(p.store, p.store)
	p.log.Infow("state restored",
		"games", len(p.store.games),
		"sessions", len(p.store.sessions),
		"tournaments", len(p.store.tournaments),
		"players", len(p.store.players),
		"nonces", len(p.store.nonces),
	)
}

// exec runs fn as one atomic operation: preconditions and local effects
// first, then the ledger batch inside the persistence commit, then events.
func (p *Platform) exec(ctx context.Context, op string, fn func(t *txn) error) (err error) {
	if g, held := heldGuard(ctx); held {
		p.log.Warnw("reentrant call rejected", "op", op, "inside", g.op)
		p.metrics.ObserveOperation(op, ClassPrecondition, 0)
		return fmt.Errorf("%s inside %s: %w", op, g.op, ErrReentrantCall)
	}
	// 外部调用进行中, 新的写操作一律拒绝, 不等待锁
	if g := p.outstanding(); g != nil {
		p.log.Warnw("call during outstanding external call rejected", "op", op, "inside", g.op)
		p.metrics.ObserveOperation(op, ClassPrecondition, 0)
		return fmt.Errorf("%s during %s: %w", op, g.op, ErrReentrantCall)
	}

	start := time.Now()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	defer func() {
		p.metrics.ObserveOperation(op, Classify(err), time.Since(start))
	}()

	ctx, g := withGuard(ctx, op)
	t := newTxn(p.store, op, p.clock())

	if err = fn(t); err != nil {
		t.rollback()
		return err
	}

	ops := t.ops
	p.external(g, func() {
		err = p.committer.Commit(ctx, t.changeset(), func(ctx context.Context) error {
			if len(ops) == 0 {
				return nil
			}
			if err := p.ledger.Apply(ctx, ops); err != nil {
				return fmt.Errorf("%w: %w", ErrLedger, err)
			}
			return nil
		})
	})
	if err != nil {
		t.rollback()
		p.log.Warnw("operation rolled back", "op", op, "error", err)
		return err
	}

	for _, o := range ops {
		if o.Kind == ledger.OpMint {
			p.metrics.AddMinted(o.Amount)
		}
	}
	p.external(g, func() {
		for _, lu := range t.levelUps {
			if nerr := p.ledger.NotifyLevelUp(ctx, lu.player, lu.level); nerr != nil {
				p.metrics.IncNotifyFailures()
				p.log.Warnw("level up notification failed", "player", lu.player, "level", lu.level, "error", nerr)
			}
		}
		for _, ev := range t.events {
			p.observer.Publish(ev)
		}
	})
	return nil
}

// view runs fn under the read lock unless ctx belongs to a call in progress,
// which already holds the write lock. While an external call is outstanding
// the store is frozen and fn runs without waiting for the writer.
func (p *Platform) view(ctx context.Context, fn func(s *store)) {
	if _, held := heldGuard(ctx); held {
		fn(p.store)
		return
	}
	if p.outstanding() != nil {
		p.frozen.RLock()
		if p.outstanding() != nil {
			defer p.frozen.RUnlock()
			fn(p.store)
			return
		}
		p.frozen.RUnlock()
	}
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	fn(p.store)
}

func (t *txn) requireOperator(caller models.Address) error {
	if caller.IsZero() || caller != t.readSettings().Operator {
		return ErrNotOperator
	}
	return nil
}

func (t *txn) requireRunning() error {
	if t.readSettings().Paused {
		return ErrPaused
	}
	return nil
}

type directCommitter struct{}

func (directCommitter) Commit(ctx context.Context, _ *models.Changeset, interact func(ctx context.Context) error) error {
	return interact(ctx)
}

type nopObserver struct{}

func (nopObserver) Publish(models.Event) {}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, Class, time.Duration) {}
func (nopMetrics) AddMinted(models.Amount)                      {}
func (nopMetrics) IncNotifyFailures()                           {}
