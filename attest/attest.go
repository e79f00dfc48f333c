// Package attest verifies validator-signed session attestations.
//
// An attestation binds (sessionID, score, nonce). The validator signs the
// keccak256 of the packed message using personal-message signing, so the
// same signature can be produced by any standard wallet tooling.
package attest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/wfunc/arenaledger/models"
)

// SignatureLength is r(32) || s(32) || v(1).
const SignatureLength = 65

const personalPrefix = "\x19Ethereum Signed Message:\n32"

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrUnauthorizedSigner = errors.New("signer is not an authorized validator")
	ErrNonceConsumed      = errors.New("attestation nonce already consumed")
)

// ValidatorSet answers whether an address may endorse attestations.
type ValidatorSet interface {
	IsValidator(addr models.Address) bool
}

// NonceSet answers whether a nonce was already accepted.
type NonceSet interface {
	NonceConsumed(n models.Nonce) bool
}

// Attestation is what a player submits to finish a session.
type Attestation struct {
	SessionID uint64
	Score     uint64
	Nonce     models.Nonce
	Signature []byte
}

func keccak256(parts ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}

// MessageHash is keccak256(uint256(sessionID) || uint256(score) || nonce).
func MessageHash(sessionID, score uint64, nonce models.Nonce) [32]byte {
	return keccak256(word(sessionID), word(score), nonce[:])
}

// PersonalDigest applies the personal-message domain prefix to a message hash.
func PersonalDigest(message [32]byte) [32]byte {
	return keccak256([]byte(personalPrefix), message[:])
}

// PubKeyAddress derives the account address of a public key.
func PubKeyAddress(pub *secp256k1.PublicKey) models.Address {
	uncompressed := pub.SerializeUncompressed()
	h := keccak256(uncompressed[1:])
	var a models.Address
	copy(a[:], h[12:])
	return a
}

// RecoverSigner returns the address that produced sig over digest. It never
// returns the zero address without an error.
func RecoverSigner(digest [32]byte, sig []byte) (models.Address, error) {
	if len(sig) != SignatureLength {
		return models.ZeroAddress, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	v := sig[64]
	if v != 27 && v != 28 {
		return models.ZeroAddress, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, v)
	}

	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(sig[32:64]); overflow || s.IsZero() || s.IsOverHalfOrder() {
		return models.ZeroAddress, fmt.Errorf("%w: non-canonical s", ErrMalformedSignature)
	}

	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return models.ZeroAddress, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	addr := PubKeyAddress(pub)
	if addr.IsZero() {
		return models.ZeroAddress, ErrUnauthorizedSigner
	}
	return addr, nil
}

// Verifier checks attestations against the validator and consumed-nonce
// sets. It only reads them; consuming the nonce is the caller's job.
type Verifier struct {
	validators ValidatorSet
	nonces     NonceSet
}

func NewVerifier(validators ValidatorSet, nonces NonceSet) *Verifier {
	return &Verifier{validators: validators, nonces: nonces}
}

// Verify returns the authorized signer of a or the reason it was rejected.
func (v *Verifier) Verify(a Attestation) (models.Address, error) {
	if v.nonces.NonceConsumed(a.Nonce) {
		return models.ZeroAddress, ErrNonceConsumed
	}
	digest := PersonalDigest(MessageHash(a.SessionID, a.Score, a.Nonce))
	signer, err := RecoverSigner(digest, a.Signature)
	if err != nil {
		return models.ZeroAddress, err
	}
	if signer.IsZero() || !v.validators.IsValidator(signer) {
		return models.ZeroAddress, fmt.Errorf("%w: %s", ErrUnauthorizedSigner, signer)
	}
	return signer, nil
}
