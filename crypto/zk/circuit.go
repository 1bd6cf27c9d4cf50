// Package zk implements the eligibility proof: a Groth16 circuit over BN254
// showing that the prover's biometric commitment is a member of the census
// Merkle tree and that the published nullifier is honestly derived from that
// commitment, without revealing which census member is voting. The ballot
// digest and submission timestamp ride along as committed public inputs so
// a proof cannot be replayed for a different ballot.
package zk

import (
	"errors"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// EligibilityCircuit proves census membership and nullifier derivation. The
// Merkle path length is fixed at compile time by the Levels of the setup.
type EligibilityCircuit struct {
	// public inputs
	Root         frontend.Variable `gnark:",public"`
	Nullifier    frontend.Variable `gnark:",public"`
	VoteEventID  frontend.Variable `gnark:",public"`
	BallotDigest frontend.Variable `gnark:",public"`
	Timestamp    frontend.Variable `gnark:",public"`
	// private witness
	Commitment frontend.Variable
	Siblings   []frontend.Variable
	PathBits   []frontend.Variable
}

// NewEligibilityCircuit returns the circuit placeholder for the given
// Merkle tree depth, used at compile time.
func NewEligibilityCircuit(levels int) *EligibilityCircuit {
	return &EligibilityCircuit{
		Siblings: make([]frontend.Variable, levels),
		PathBits: make([]frontend.Variable, levels),
	}
}

func (c *EligibilityCircuit) Define(api frontend.API) error {
	if len(c.Siblings) != len(c.PathBits) {
		return errors.New("siblings and path bits length mismatch")
	}

	// the timestamp must fit 64 bits
	api.ToBinary(c.Timestamp, 64)

	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// nullifier = H(commitment, voteEventID)
	h.Write(c.Commitment, c.VoteEventID)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	// leaf = H(commitment)
	h.Reset()
	h.Write(c.Commitment)
	cur := h.Sum()

	// walk the Merkle path up to the root
	for i := range c.Siblings {
		api.AssertIsBoolean(c.PathBits[i])
		left := api.Select(c.PathBits[i], c.Siblings[i], cur)
		right := api.Select(c.PathBits[i], cur, c.Siblings[i])
		h.Reset()
		h.Write(left, right)
		cur = h.Sum()
	}
	api.AssertIsEqual(cur, c.Root)

	// bind the ballot digest and timestamp into the proof transcript
	cmtr, ok := api.(frontend.Committer)
	if !ok {
		return errors.New("api is not a committer")
	}
	bound, err := cmtr.Commit(c.BallotDigest, c.Timestamp)
	if err != nil {
		return err
	}
	api.AssertIsDifferent(bound, 0)

	return nil
}
