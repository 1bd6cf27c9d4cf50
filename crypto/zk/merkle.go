package zk

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// The native Merkle tree mirrors the in-circuit one: leaves are MiMC hashes
// of census commitments, inner nodes MiMC of the ordered child pair, and the
// tree is padded with zero leaves to the fixed depth of the circuit.

// MerkleProof is a native membership proof for one leaf.
type MerkleProof struct {
	Root     *big.Int
	Siblings []*big.Int
	PathBits []int
	Index    int
}

// hashFields hashes field elements with the same MiMC instance the circuit
// uses, so native and in-circuit digests agree.
func hashFields(values ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	buf := make([]byte, fr.Bytes)
	for _, v := range values {
		new(big.Int).Mod(v, fr.Modulus()).FillBytes(buf)
		if _, err := h.Write(buf); err != nil {
			panic(err) // inputs are reduced, Write cannot fail
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// TreeDepth returns the minimum depth that holds n leaves.
func TreeDepth(n int) int {
	depth := 0
	for capacity := 1; capacity < n; capacity <<= 1 {
		depth++
	}
	return depth
}

// BuildTree computes the Merkle root of the given commitments at the fixed
// depth. Missing leaves are padded with the zero field element.
func BuildTree(commitments []*big.Int, levels int) (*big.Int, error) {
	layer, err := leafLayer(commitments, levels)
	if err != nil {
		return nil, err
	}
	for len(layer) > 1 {
		next := make([]*big.Int, len(layer)/2)
		for i := range next {
			next[i] = hashFields(layer[2*i], layer[2*i+1])
		}
		layer = next
	}
	return layer[0], nil
}

// GenerateMerkleProof builds the membership proof for the commitment at the
// given index.
func GenerateMerkleProof(commitments []*big.Int, index, levels int) (*MerkleProof, error) {
	if index < 0 || index >= len(commitments) {
		return nil, fmt.Errorf("leaf index %d out of range", index)
	}
	layer, err := leafLayer(commitments, levels)
	if err != nil {
		return nil, err
	}

	proof := &MerkleProof{
		Siblings: make([]*big.Int, levels),
		PathBits: make([]int, levels),
		Index:    index,
	}
	pos := index
	for level := 0; level < levels; level++ {
		bit := pos & 1
		proof.PathBits[level] = bit
		proof.Siblings[level] = layer[pos^1]

		next := make([]*big.Int, len(layer)/2)
		for i := range next {
			next[i] = hashFields(layer[2*i], layer[2*i+1])
		}
		layer = next
		pos >>= 1
	}
	proof.Root = layer[0]
	return proof, nil
}

// VerifyMerkleProof natively checks a membership proof for a commitment.
func VerifyMerkleProof(commitment *big.Int, proof *MerkleProof) bool {
	cur := hashFields(commitment)
	for i, sibling := range proof.Siblings {
		if proof.PathBits[i] == 1 {
			cur = hashFields(sibling, cur)
		} else {
			cur = hashFields(cur, sibling)
		}
	}
	return cur.Cmp(proof.Root) == 0
}

// leafLayer hashes the commitments into the zero-padded bottom layer.
func leafLayer(commitments []*big.Int, levels int) ([]*big.Int, error) {
	capacity := 1 << levels
	if len(commitments) > capacity {
		return nil, fmt.Errorf("%d commitments exceed tree capacity %d", len(commitments), capacity)
	}
	layer := make([]*big.Int, capacity)
	for i, c := range commitments {
		layer[i] = hashFields(c)
	}
	zero := big.NewInt(0)
	for i := len(commitments); i < capacity; i++ {
		layer[i] = zero
	}
	return layer, nil
}
