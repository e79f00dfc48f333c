package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/wfunc/arenaledger/models"
)

// LevelUp is a recorded NotifyLevelUp call.
type LevelUp struct {
	Player models.Address
	Level  uint64
}

// Memory is an in-process ledger for development and tests.
type Memory struct {
	mutex      sync.Mutex
	balances   map[models.Address]models.Amount
	allowances map[models.Address]models.Amount
	escrow     models.Amount
	supply     models.Amount
	levelUps   []LevelUp

	// BeforeApply runs before every batch without the ledger lock held, so
	// it may call back into the platform.
	BeforeApply func(ctx context.Context, ops []Op)
	// Fail, when set, rejects a batch containing an op it returns an error for.
	Fail func(op Op) error
	// FailNotify is returned from NotifyLevelUp when set.
	FailNotify error
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[models.Address]models.Amount),
		allowances: make(map[models.Address]models.Amount),
	}
}

// Credit gives addr tokens outside of any batch.
func (m *Memory) Credit(addr models.Address, amount models.Amount) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.balances[addr] += amount
}

// Approve sets how much the platform may pull from owner.
func (m *Memory) Approve(owner models.Address, amount models.Amount) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.allowances[owner] = amount
}

func (m *Memory) BalanceOf(addr models.Address) models.Amount {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.balances[addr]
}

func (m *Memory) Allowance(owner models.Address) models.Amount {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.allowances[owner]
}

func (m *Memory) Escrow() models.Amount {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.escrow
}

func (m *Memory) Supply() models.Amount {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.supply
}

func (m *Memory) LevelUps() []LevelUp {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]LevelUp(nil), m.levelUps...)
}

func (m *Memory) TransferFrom(ctx context.Context, from models.Address, amount models.Amount) error {
	return m.Apply(ctx, []Op{TransferFrom(from, amount, "")})
}

func (m *Memory) Transfer(ctx context.Context, to models.Address, amount models.Amount) error {
	return m.Apply(ctx, []Op{Transfer(to, amount, "")})
}

func (m *Memory) MintReward(ctx context.Context, to models.Address, amount models.Amount) error {
	return m.Apply(ctx, []Op{Mint(to, amount, "")})
}

func (m *Memory) NotifyLevelUp(ctx context.Context, player models.Address, level uint64) error {
	if m.FailNotify != nil {
		return m.FailNotify
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.levelUps = append(m.levelUps, LevelUp{Player: player, Level: level})
	return nil
}

// Apply stages every op against copies of the touched accounts and only
// writes them back when the whole batch succeeds.
func (m *Memory) Apply(ctx context.Context, ops []Op) error {
	if m.BeforeApply != nil {
		m.BeforeApply(ctx, ops)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return err
		}
		if m.Fail != nil {
			if err := m.Fail(op); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	balances := make(map[models.Address]models.Amount)
	allowances := make(map[models.Address]models.Amount)
	balance := func(a models.Address) models.Amount {
		if v, ok := balances[a]; ok {
			return v
		}
		return m.balances[a]
	}
	allowance := func(a models.Address) models.Amount {
		if v, ok := allowances[a]; ok {
			return v
		}
		return m.allowances[a]
	}
	escrow, supply := m.escrow, m.supply

	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpTransferFrom:
			if allowance(op.Account) < op.Amount {
				return fmt.Errorf("%s: %w", op, ErrInsufficientAllowance)
			}
			if balance(op.Account) < op.Amount {
				return fmt.Errorf("%s: %w", op, ErrInsufficientBalance)
			}
			allowances[op.Account] = allowance(op.Account) - op.Amount
			balances[op.Account] = balance(op.Account) - op.Amount
			escrow, err = models.AddAmount(escrow, op.Amount)
		case OpTransfer:
			if escrow < op.Amount {
				return fmt.Errorf("%s: %w", op, ErrInsufficientEscrow)
			}
			escrow -= op.Amount
			balances[op.Account], err = models.AddAmount(balance(op.Account), op.Amount)
		case OpMint:
			if supply, err = models.AddAmount(supply, op.Amount); err == nil {
				balances[op.Account], err = models.AddAmount(balance(op.Account), op.Amount)
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	for a, v := range balances {
		m.balances[a] = v
	}
	for a, v := range allowances {
		m.allowances[a] = v
	}
	m.escrow, m.supply = escrow, supply
	return nil
}
