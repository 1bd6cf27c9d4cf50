package elgamal

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/biovote/protocol/crypto/ecc"
)

// KeyShare is one trustee's share of a threshold decryption key, produced by
// a trusted dealer. Index is the Shamir evaluation point, starting at 1.
type KeyShare struct {
	Index        int
	PrivateShare *big.Int
}

// ShareSecret splits the private key into n Shamir shares with reconstruction
// threshold t. Any t shares recover the key, fewer reveal nothing.
func ShareSecret(privateKey *big.Int, t, n int, order *big.Int, rng io.Reader) ([]*KeyShare, error) {
	if t < 1 || t > n {
		return nil, fmt.Errorf("invalid threshold %d for %d shares", t, n)
	}
	if rng == nil {
		rng = rand.Reader
	}
	// random polynomial of degree t-1 with the secret as constant term
	coeffs := make([]*big.Int, t)
	coeffs[0] = new(big.Int).Mod(privateKey, order)
	for i := 1; i < t; i++ {
		c, err := rand.Int(rng, order)
		if err != nil {
			return nil, fmt.Errorf("failed to sample polynomial coefficient: %w", err)
		}
		coeffs[i] = c
	}

	shares := make([]*KeyShare, n)
	for i := 1; i <= n; i++ {
		x := big.NewInt(int64(i))
		// Horner evaluation mod order
		y := new(big.Int).Set(coeffs[t-1])
		for j := t - 2; j >= 0; j-- {
			y.Mul(y, x)
			y.Add(y, coeffs[j])
			y.Mod(y, order)
		}
		shares[i-1] = &KeyShare{Index: i, PrivateShare: y}
	}
	return shares, nil
}

// PartialDecrypt computes the trustee's partial decryption s_i = share * C1.
func (ks *KeyShare) PartialDecrypt(c1 ecc.Point) ecc.Point {
	si := c1.New()
	si.ScalarMult(c1, ks.PrivateShare)
	return si
}

// CombinePartialDecryptions combines partial decryptions from a quorum of
// trustees and recovers the message scalar by bounded discrete log search.
// The map key is the trustee index.
func CombinePartialDecryptions(c2 ecc.Point, partials map[int]ecc.Point, maxMessage uint64) (*big.Int, error) {
	indexes := make([]int, 0, len(partials))
	for id := range partials {
		indexes = append(indexes, id)
	}
	coeffs, err := lagrangeCoefficients(indexes, c2.Order())
	if err != nil {
		return nil, fmt.Errorf("failed to compute Lagrange coefficients: %w", err)
	}

	// s = sum lambda_i * s_i
	s := c2.New()
	for _, id := range indexes {
		term := s.New()
		term.ScalarMult(partials[id], coeffs[id])
		s.Add(s, term)
	}
	// M = C2 - s
	s.Neg(s)
	m := c2.New()
	m.Add(c2, s)

	g := c2.New()
	g.SetGenerator()
	message, err := BabyStepGiantStep(m, g, maxMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message: %w", err)
	}
	return message, nil
}

// lagrangeCoefficients computes the Lagrange basis at zero for the given
// evaluation points, mod the group order.
func lagrangeCoefficients(indexes []int, mod *big.Int) (map[int]*big.Int, error) {
	coeffs := make(map[int]*big.Int, len(indexes))
	for _, i := range indexes {
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)
		for _, j := range indexes {
			if i == j {
				continue
			}
			num := big.NewInt(int64(-j))
			num.Mod(num, mod)
			numerator.Mul(numerator, num)
			numerator.Mod(numerator, mod)

			den := big.NewInt(int64(i - j))
			den.Mod(den, mod)
			denominator.Mul(denominator, den)
			denominator.Mod(denominator, mod)
		}
		denominatorInv := new(big.Int).ModInverse(denominator, mod)
		if denominatorInv == nil {
			return nil, fmt.Errorf("no modular inverse for denominator %s", denominator)
		}
		coeff := new(big.Int).Mul(numerator, denominatorInv)
		coeff.Mod(coeff, mod)
		coeffs[i] = coeff
	}
	return coeffs, nil
}
