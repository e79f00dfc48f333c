package attest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/wfunc/arenaledger/models"
)

// Signer produces attestations in the format Verifier accepts. Validators run
// it off-platform; the dev CLI and tests use it directly.
type Signer struct {
	key *secp256k1.PrivateKey
}

func GenerateSigner() (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{key: key}, nil
}

// NewSignerFromHex loads a 32-byte private key.
func NewSignerFromHex(s string) (*Signer, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	return &Signer{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

func (s *Signer) Address() models.Address {
	return PubKeyAddress(s.key.PubKey())
}

func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.key.Serialize())
}

// SignDigest returns r || s || v with v in {27, 28}.
func (s *Signer) SignDigest(digest [32]byte) []byte {
	compact := ecdsa.SignCompact(s.key, digest[:], false)
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig
}

// Sign attests to a finished session.
func (s *Signer) Sign(sessionID, score uint64, nonce models.Nonce) []byte {
	return s.SignDigest(PersonalDigest(MessageHash(sessionID, score, nonce)))
}
