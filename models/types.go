// models/types.go
package models

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// AddressLength is the byte length of an account address.
const AddressLength = 20

// NonceLength is the byte length of an attestation nonce.
const NonceLength = 32

// TokenUnit is one whole reward token in fixed-point units (6 decimals).
const TokenUnit Amount = 1_000_000

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidNonce   = errors.New("invalid nonce")
	ErrAmountOverflow = errors.New("amount overflow")
)

// Address identifies a player, developer, validator or treasury account.
type Address [AddressLength]byte

// ZeroAddress is never a valid payee or signer.
var ZeroAddress Address

// ParseAddress accepts a 40 hex digit string with an optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != AddressLength*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return a, nil
}

// MustParseAddress panics on malformed input. Intended for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Nonce is the replay-protection value bound into a session attestation.
type Nonce [NonceLength]byte

func ParseNonce(s string) (Nonce, error) {
	var n Nonce
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != NonceLength*2 {
		return n, fmt.Errorf("%w: want %d hex digits", ErrInvalidNonce, NonceLength*2)
	}
	if _, err := hex.Decode(n[:], []byte(s)); err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}
	return n, nil
}

func (n Nonce) IsZero() bool { return n == Nonce{} }

func (n Nonce) String() string { return "0x" + hex.EncodeToString(n[:]) }

func (n Nonce) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *Nonce) UnmarshalText(text []byte) error {
	parsed, err := ParseNonce(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Amount is a fixed-point token quantity. Arithmetic on it must go through
// the checked helpers below.
type Amount uint64

// Tokens converts a whole-token count to an Amount.
func Tokens(n uint64) Amount { return Amount(n) * TokenUnit }

func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// ParseAmount parses the decimal fixed-point representation produced by String.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount(v), nil
}

// AddAmount returns a+b or ErrAmountOverflow.
func AddAmount(a, b Amount) (Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(sum), nil
}

// SumAmounts adds every element, failing on the first overflow.
func SumAmounts(amounts []Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = AddAmount(total, a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// MulDiv returns floor(a*mul/div) computed in 128 bits. The result must fit
// in 64 bits.
func MulDiv(a Amount, mul, div uint64) (Amount, error) {
	if div == 0 {
		return 0, errors.New("division by zero")
	}
	hi, lo := bits.Mul64(uint64(a), mul)
	if hi >= div {
		return 0, ErrAmountOverflow
	}
	q, _ := bits.Div64(hi, lo, div)
	return Amount(q), nil
}

// MulAmount returns a*n or ErrAmountOverflow.
func MulAmount(a Amount, n uint64) (Amount, error) {
	hi, lo := bits.Mul64(uint64(a), n)
	if hi != 0 {
		return 0, ErrAmountOverflow
	}
	return Amount(lo), nil
}
