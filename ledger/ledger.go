// Package ledger is the boundary to the reward token ledger. The platform
// holds entry fees in custody (escrow) and pays prizes and rewards out of it.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/arenaledger/models"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientEscrow    = errors.New("insufficient escrow balance")
	ErrInvalidOp             = errors.New("invalid ledger operation")
	ErrPrecisionExceeded     = errors.New("ledger precision exceeded")
)

type OpKind string

const (
	// OpTransferFrom pulls an approved amount from Account into escrow.
	OpTransferFrom OpKind = "transfer_from"
	// OpTransfer pays Account out of escrow.
	OpTransfer OpKind = "transfer"
	// OpMint creates new tokens for Account.
	OpMint OpKind = "mint"
)

// Op is one leg of a batch.
type Op struct {
	Kind    OpKind         `json:"kind"`
	Account models.Address `json:"account"`
	Amount  models.Amount  `json:"amount"`
	Memo    string         `json:"memo,omitempty"`
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s %s", o.Kind, o.Account, o.Amount)
}

func (o Op) validate() error {
	switch o.Kind {
	case OpTransferFrom, OpTransfer, OpMint:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidOp, o.Kind)
	}
	if o.Account.IsZero() {
		return fmt.Errorf("%w: zero account", ErrInvalidOp)
	}
	if o.Amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidOp)
	}
	return nil
}

// Ledger is implemented by every token backend.
type Ledger interface {
	TransferFrom(ctx context.Context, from models.Address, amount models.Amount) error
	Transfer(ctx context.Context, to models.Address, amount models.Amount) error
	MintReward(ctx context.Context, to models.Address, amount models.Amount) error
	NotifyLevelUp(ctx context.Context, player models.Address, level uint64) error
	// Apply executes every op or none of them.
	Apply(ctx context.Context, ops []Op) error
}

// Transfer builds a payout op.
func Transfer(to models.Address, amount models.Amount, memo string) Op {
	return Op{Kind: OpTransfer, Account: to, Amount: amount, Memo: memo}
}

// TransferFrom builds a pull op.
func TransferFrom(from models.Address, amount models.Amount, memo string) Op {
	return Op{Kind: OpTransferFrom, Account: from, Amount: amount, Memo: memo}
}

// Mint builds a mint op.
func Mint(to models.Address, amount models.Amount, memo string) Op {
	return Op{Kind: OpMint, Account: to, Amount: amount, Memo: memo}
}

var (
	_ Ledger = (*Memory)(nil)
	_ Ledger = (*Redis)(nil)
)
