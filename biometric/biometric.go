// Package biometric derives the cryptographic artifacts the protocol keeps
// from a biometric scan: a salted commitment that enters the census Merkle
// tree and a display pseudonym. The raw template is zeroized as soon as the
// commitment is derived and never leaves this package.
package biometric

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"golang.org/x/crypto/blake2b"

	"github.com/biovote/protocol/crypto/ecc"
	"github.com/biovote/protocol/types"
)

// ErrEmptyTemplate is returned when the scan produced no template data.
var ErrEmptyTemplate = fmt.Errorf("empty biometric template")

// Commitment is the field element derived from a biometric template and a
// random salt. It is the only durable trace of the template.
type Commitment struct {
	Value *big.Int
	Salt  []byte
}

// Commit derives the census commitment for a biometric template. The salt is
// drawn from rng so two enrollments of the same person yield unlinkable
// commitments. The template buffer is zeroized before returning, success or
// not.
func Commit(template []byte, rng io.Reader) (*Commitment, error) {
	defer Zeroize(template)
	if len(template) == 0 {
		return nil, ErrEmptyTemplate
	}
	if rng == nil {
		rng = rand.Reader
	}
	salt := make([]byte, types.SessionNonceSize)
	if _, err := io.ReadFull(rng, salt); err != nil {
		return nil, fmt.Errorf("failed to generate commitment salt: %w", err)
	}
	return commitWithSalt(template, salt)
}

// Recommit re-derives a commitment from a template and a known salt, used by
// the terminal to check a fresh scan against an enrollment.
func Recommit(template, salt []byte) (*Commitment, error) {
	defer Zeroize(template)
	if len(template) == 0 {
		return nil, ErrEmptyTemplate
	}
	return commitWithSalt(template, salt)
}

func commitWithSalt(template, salt []byte) (*Commitment, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	h.Write(template)
	h.Write(salt)
	digest := h.Sum(nil)
	value := ecc.BigToFF(fr.Modulus(), new(big.Int).SetBytes(digest))
	return &Commitment{Value: value, Salt: salt}, nil
}

// Zeroize overwrites a template buffer in place.
func Zeroize(template []byte) {
	for i := range template {
		template[i] = 0
	}
}

// Pseudonym derives the opaque voter handle shown in audit views from a
// commitment and a vote event. It is Poseidon-hashed so it cannot be walked
// back to the commitment.
func Pseudonym(commitment *big.Int, voteEventID []byte) (*big.Int, error) {
	eid := ecc.BigToFF(fr.Modulus(), new(big.Int).SetBytes(voteEventID))
	p, err := poseidon.Hash([]*big.Int{commitment, eid})
	if err != nil {
		return nil, fmt.Errorf("failed to derive pseudonym: %w", err)
	}
	return p, nil
}
