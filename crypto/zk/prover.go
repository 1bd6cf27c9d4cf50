package zk

import (
	"bytes"
	"fmt"
	"math/big"

	gecc "github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// ErrInvalidWitness is returned when the witness fails the native preflight
// checks, before any proving work is spent on it.
var ErrInvalidWitness = fmt.Errorf("witness does not satisfy the eligibility relation")

// PublicInputs are the public side of an eligibility proof.
type PublicInputs struct {
	Root         *big.Int
	Nullifier    *big.Int
	VoteEventID  *big.Int
	BallotDigest *big.Int
	Timestamp    uint64
}

// Witness is the full assignment for one eligibility proof.
type Witness struct {
	PublicInputs
	Commitment *big.Int
	Proof      *MerkleProof
}

// Proof is a serialized eligibility proof stamped with the security level of
// the setup that produced it.
type Proof struct {
	Level SecurityLevel `json:"level"`
	Data  []byte        `json:"data"`
}

// precheck natively recomputes the relation so a bad witness fails fast with
// a diagnosable error instead of an opaque prover failure.
func (w *Witness) precheck(levels int) error {
	if w.Commitment == nil || w.Proof == nil {
		return fmt.Errorf("%w: missing commitment or merkle proof", ErrInvalidWitness)
	}
	if len(w.Proof.Siblings) != levels || len(w.Proof.PathBits) != levels {
		return fmt.Errorf("%w: merkle path length %d, setup expects %d",
			ErrInvalidWitness, len(w.Proof.Siblings), levels)
	}
	if got := hashFields(w.Commitment, w.VoteEventID); got.Cmp(w.Nullifier) != 0 {
		return fmt.Errorf("%w: nullifier does not match commitment", ErrInvalidWitness)
	}
	if !VerifyMerkleProof(w.Commitment, w.Proof) {
		return fmt.Errorf("%w: merkle proof does not verify", ErrInvalidWitness)
	}
	if w.Proof.Root.Cmp(w.Root) != 0 {
		return fmt.Errorf("%w: merkle root mismatch", ErrInvalidWitness)
	}
	return nil
}

// GenerateProof proves the eligibility relation for the witness under the
// given setup.
func GenerateProof(setup *TrustedSetup, w *Witness) (*Proof, error) {
	if err := w.precheck(setup.Levels); err != nil {
		return nil, err
	}

	assignment := NewEligibilityCircuit(setup.Levels)
	assignment.Root = w.Root
	assignment.Nullifier = w.Nullifier
	assignment.VoteEventID = w.VoteEventID
	assignment.BallotDigest = w.BallotDigest
	assignment.Timestamp = w.Timestamp
	assignment.Commitment = w.Commitment
	for i := 0; i < setup.Levels; i++ {
		assignment.Siblings[i] = w.Proof.Siblings[i]
		assignment.PathBits[i] = w.Proof.PathBits[i]
	}

	witness, err := frontend.NewWitness(assignment, gecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}
	proof, err := groth16.Prove(setup.ConstraintSystem, setup.ProvingKey, witness)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize proof: %w", err)
	}
	return &Proof{Level: setup.Level, Data: buf.Bytes()}, nil
}

// VerifyProof checks an eligibility proof against the public inputs. It is a
// pure function of its arguments: the same proof and inputs always verify
// the same way.
func VerifyProof(setup *TrustedSetup, proof *Proof, pub *PublicInputs) error {
	gproof := groth16.NewProof(gecc.BN254)
	if _, err := gproof.ReadFrom(bytes.NewReader(proof.Data)); err != nil {
		return fmt.Errorf("failed to deserialize proof: %w", err)
	}

	assignment := NewEligibilityCircuit(setup.Levels)
	assignment.Root = pub.Root
	assignment.Nullifier = pub.Nullifier
	assignment.VoteEventID = pub.VoteEventID
	assignment.BallotDigest = pub.BallotDigest
	assignment.Timestamp = pub.Timestamp

	publicWitness, err := frontend.NewWitness(assignment, gecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to create public witness: %w", err)
	}
	if err := groth16.Verify(gproof, setup.VerifyingKey, publicWitness); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}
