package homomorphic

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/biovote/protocol/types"
)

// paillierScheme implements threshold Paillier. The dealer derives a
// decryption exponent d with d = 0 mod lambda and d = 1 mod n, splits it
// with Shamir over Z_{n*lambda}, and trustees raise ciphertexts to their
// share. Combination uses integer Lagrange coefficients scaled by
// delta = trustees! so no inverses are needed modulo the non-prime share
// modulus.
type paillierScheme struct{}

type paillierPublic struct {
	N         *big.Int `cbor:"1,keyasint"`
	Threshold int      `cbor:"2,keyasint"`
	Trustees  int      `cbor:"3,keyasint"`
}

type paillierShare struct {
	N        *big.Int `cbor:"1,keyasint"`
	S        *big.Int `cbor:"2,keyasint"`
	Trustees int      `cbor:"3,keyasint"`
}

func (s *paillierScheme) Name() string { return SchemePaillier }

func (s *paillierScheme) GenerateKeys(bits, threshold, trustees int, rng io.Reader) (*KeyPair, error) {
	if bits < types.TallyKeyMinBits {
		return nil, fmt.Errorf("%w: %d < %d", ErrKeyTooSmall, bits, types.TallyKeyMinBits)
	}
	if threshold < 1 || threshold > trustees {
		return nil, fmt.Errorf("invalid threshold %d for %d trustees", threshold, trustees)
	}
	if rng == nil {
		rng = rand.Reader
	}

	p, err := rand.Prime(rng, bits/2)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prime: %w", err)
	}
	var q *big.Int
	for {
		q, err = rand.Prime(rng, bits/2)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}
		if q.Cmp(p) != 0 {
			break
		}
	}

	n := new(big.Int).Mul(p, q)
	pm1 := new(big.Int).Sub(p, big.NewInt(1))
	qm1 := new(big.Int).Sub(q, big.NewInt(1))
	lambda := new(big.Int).Mul(pm1, qm1)
	lambda.Div(lambda, new(big.Int).GCD(nil, nil, pm1, qm1))

	// d = 0 mod lambda, d = 1 mod n
	lambdaInv := new(big.Int).ModInverse(lambda, n)
	if lambdaInv == nil {
		return nil, fmt.Errorf("degenerate key material, retry generation")
	}
	d := new(big.Int).Mul(lambda, lambdaInv)

	// Shamir split of d over Z_{n*lambda}
	shareMod := new(big.Int).Mul(n, lambda)
	coeffs := make([]*big.Int, threshold)
	coeffs[0] = new(big.Int).Mod(d, shareMod)
	for i := 1; i < threshold; i++ {
		c, err := rand.Int(rng, shareMod)
		if err != nil {
			return nil, fmt.Errorf("failed to sample polynomial coefficient: %w", err)
		}
		coeffs[i] = c
	}

	pubBlob, err := cbor.Marshal(&paillierPublic{N: n, Threshold: threshold, Trustees: trustees})
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	kp := &KeyPair{
		Public:    &PublicKey{Scheme: SchemePaillier, Data: pubBlob},
		Threshold: threshold,
	}
	for i := 1; i <= trustees; i++ {
		x := big.NewInt(int64(i))
		y := new(big.Int).Set(coeffs[threshold-1])
		for j := threshold - 2; j >= 0; j-- {
			y.Mul(y, x)
			y.Add(y, coeffs[j])
			y.Mod(y, shareMod)
		}
		blob, err := cbor.Marshal(&paillierShare{N: n, S: y, Trustees: trustees})
		if err != nil {
			return nil, fmt.Errorf("failed to encode secret share: %w", err)
		}
		kp.Shares = append(kp.Shares, &SecretShare{Scheme: SchemePaillier, Index: i, Data: blob})
	}
	return kp, nil
}

func (s *paillierScheme) Encrypt(pk *PublicKey, message *big.Int, rng io.Reader) (*Ciphertext, error) {
	pub, err := s.decodePublic(pk)
	if err != nil {
		return nil, err
	}
	if message.Sign() < 0 || message.Cmp(pub.N) >= 0 {
		return nil, fmt.Errorf("message out of plaintext space")
	}
	if rng == nil {
		rng = rand.Reader
	}
	n2 := new(big.Int).Mul(pub.N, pub.N)

	var r *big.Int
	for {
		r, err = rand.Int(rng, pub.N)
		if err != nil {
			return nil, fmt.Errorf("failed to generate encryption randomness: %w", err)
		}
		if r.Sign() != 0 && new(big.Int).GCD(nil, nil, r, pub.N).Cmp(big.NewInt(1)) == 0 {
			break
		}
	}

	// c = (1 + m*n) * r^n mod n^2
	c := new(big.Int).Mul(message, pub.N)
	c.Add(c, big.NewInt(1))
	rn := new(big.Int).Exp(r, pub.N, n2)
	c.Mul(c, rn)
	c.Mod(c, n2)

	return &Ciphertext{Scheme: SchemePaillier, Data: c.Bytes()}, nil
}

func (s *paillierScheme) Add(pk *PublicKey, a, b *Ciphertext) (*Ciphertext, error) {
	pub, err := s.decodePublic(pk)
	if err != nil {
		return nil, err
	}
	if err := checkScheme(SchemePaillier, a.Scheme); err != nil {
		return nil, err
	}
	if err := checkScheme(SchemePaillier, b.Scheme); err != nil {
		return nil, err
	}
	n2 := new(big.Int).Mul(pub.N, pub.N)
	sum := new(big.Int).Mul(new(big.Int).SetBytes(a.Data), new(big.Int).SetBytes(b.Data))
	sum.Mod(sum, n2)
	return &Ciphertext{Scheme: SchemePaillier, Data: sum.Bytes()}, nil
}

func (s *paillierScheme) PartialDecrypt(share *SecretShare, ct *Ciphertext) (*DecryptionShare, error) {
	if err := checkScheme(SchemePaillier, share.Scheme); err != nil {
		return nil, err
	}
	if err := checkScheme(SchemePaillier, ct.Scheme); err != nil {
		return nil, err
	}
	var sh paillierShare
	if err := cbor.Unmarshal(share.Data, &sh); err != nil {
		return nil, fmt.Errorf("failed to decode secret share: %w", err)
	}

	n2 := new(big.Int).Mul(sh.N, sh.N)
	// c_i = c^(2*delta*s_i) mod n^2
	exp := new(big.Int).Mul(big.NewInt(2), factorial(sh.Trustees))
	exp.Mul(exp, sh.S)
	ci := new(big.Int).Exp(new(big.Int).SetBytes(ct.Data), exp, n2)

	return &DecryptionShare{Scheme: SchemePaillier, Index: share.Index, Data: ci.Bytes()}, nil
}

func (s *paillierScheme) Combine(pk *PublicKey, ct *Ciphertext, shares []*DecryptionShare) (*big.Int, error) {
	pub, err := s.decodePublic(pk)
	if err != nil {
		return nil, err
	}
	if err := checkScheme(SchemePaillier, ct.Scheme); err != nil {
		return nil, err
	}
	for _, sh := range shares {
		if err := checkScheme(SchemePaillier, sh.Scheme); err != nil {
			return nil, err
		}
	}
	if err := dedupeShares(shares, pub.Threshold); err != nil {
		return nil, err
	}
	// a quorum of exactly threshold shares fixes the interpolation set
	quorum := shares[:pub.Threshold]

	n2 := new(big.Int).Mul(pub.N, pub.N)
	delta := factorial(pub.Trustees)

	// c' = prod c_i^(2*mu_i) mod n^2, with mu_i = delta * l_i(0) integer
	acc := big.NewInt(1)
	for _, sh := range quorum {
		mu := integerLagrange(sh.Index, quorum, delta)
		exp := new(big.Int).Mul(big.NewInt(2), mu)
		term := new(big.Int).Exp(new(big.Int).SetBytes(sh.Data), exp, n2)
		if term == nil {
			return nil, fmt.Errorf("decryption share %d is not invertible", sh.Index)
		}
		acc.Mul(acc, term)
		acc.Mod(acc, n2)
	}

	// c' = 1 + 4*delta^2*m*n mod n^2, so m = L(c') / (4*delta^2) mod n
	l := new(big.Int).Sub(acc, big.NewInt(1))
	l.Div(l, pub.N)
	scale := new(big.Int).Mul(delta, delta)
	scale.Mul(scale, big.NewInt(4))
	scaleInv := new(big.Int).ModInverse(scale, pub.N)
	if scaleInv == nil {
		return nil, fmt.Errorf("combination scale not invertible")
	}
	m := new(big.Int).Mul(l, scaleInv)
	m.Mod(m, pub.N)
	return m, nil
}

func (s *paillierScheme) decodePublic(pk *PublicKey) (*paillierPublic, error) {
	if err := checkScheme(SchemePaillier, pk.Scheme); err != nil {
		return nil, err
	}
	var pub paillierPublic
	if err := cbor.Unmarshal(pk.Data, &pub); err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	return &pub, nil
}

// integerLagrange computes mu_i = delta * l_i(0) over the quorum indexes.
// The factorial scaling clears all denominators, so the division is exact.
func integerLagrange(i int, quorum []*DecryptionShare, delta *big.Int) *big.Int {
	num := new(big.Int).Set(delta)
	den := big.NewInt(1)
	for _, sh := range quorum {
		j := sh.Index
		if j == i {
			continue
		}
		num.Mul(num, big.NewInt(int64(-j)))
		den.Mul(den, big.NewInt(int64(i-j)))
	}
	return num.Div(num, den)
}

func factorial(n int) *big.Int {
	f := big.NewInt(1)
	for i := 2; i <= n; i++ {
		f.Mul(f, big.NewInt(int64(i)))
	}
	return f
}
