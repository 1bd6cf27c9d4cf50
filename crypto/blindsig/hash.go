package blindsig

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/biovote/protocol/crypto/ecc"
)

// HashScalars hashes the given values with MiMC over the BN254 scalar field,
// reducing each input into the field first. The same function is computed
// in-circuit by the eligibility proof, so values hashed here verify there.
func HashScalars(values ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, v := range values {
		ff := ecc.BigToFF(fr.Modulus(), v)
		buf := make([]byte, fr.Bytes)
		ff.FillBytes(buf)
		if _, err := h.Write(buf); err != nil {
			panic(err) // inputs are reduced, Write cannot fail
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// Nullifier derives the deterministic per-voter per-event nullifier from a
// biometric commitment and a vote event identifier. The same pair always
// yields the same value, so a second submission is detectable without
// learning who the voter is.
func Nullifier(commitment *big.Int, voteEventID []byte) *big.Int {
	eid := ecc.BigToFF(fr.Modulus(), new(big.Int).SetBytes(voteEventID))
	return HashScalars(commitment, eid)
}

// BallotDigest reduces a serialized encrypted ballot to the field element
// that gets blind-signed and bound inside the eligibility proof.
func BallotDigest(ballot []byte) *big.Int {
	chunks := splitToField(ballot)
	return HashScalars(chunks...)
}

// splitToField splits buf into 31-byte chunks so every chunk fits the BN254
// scalar field without reduction.
func splitToField(buf []byte) []*big.Int {
	const chunk = 31
	out := make([]*big.Int, 0, len(buf)/chunk+1)
	for i := 0; i < len(buf); i += chunk {
		end := i + chunk
		if end > len(buf) {
			end = len(buf)
		}
		out = append(out, new(big.Int).SetBytes(buf[i:end]))
	}
	if len(out) == 0 {
		out = append(out, big.NewInt(0))
	}
	return out
}
