// Package elgamal implements additively homomorphic EC ElGamal encryption
// over the supported curve backends, together with the threshold decryption
// used by the tally trustees. Messages are encoded in the exponent, so
// ciphertext addition adds plaintexts and decryption ends with a small
// discrete log search.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/biovote/protocol/crypto/ecc"
)

// RandK generates a random encryption scalar below the group order,
// drawing from rng.
func RandK(rng io.Reader, order *big.Int) (*big.Int, error) {
	if rng == nil {
		rng = rand.Reader
	}
	k, err := rand.Int(rng, order)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random k: %w", err)
	}
	if k.Sign() == 0 {
		k.SetInt64(1)
	}
	return k, nil
}

// Encrypt encrypts a message under the public key. It generates a fresh
// random k from rng and returns the two ciphertext points along with the k
// used, so callers can prove correct encryption later.
func Encrypt(publicKey ecc.Point, msg *big.Int, rng io.Reader) (ecc.Point, ecc.Point, *big.Int, error) {
	k, err := RandK(rng, publicKey.Order())
	if err != nil {
		return nil, nil, nil, err
	}
	c1, c2, err := EncryptWithK(publicKey, msg, k)
	if err != nil {
		return nil, nil, nil, err
	}
	return c1, c2, k, nil
}

// EncryptWithK encrypts a message under the public key with the given
// randomness. It returns the two points that represent the ciphertext.
func EncryptWithK(pubKey ecc.Point, msg, k *big.Int) (ecc.Point, ecc.Point, error) {
	order := pubKey.Order()
	m := new(big.Int).Mod(msg, order)
	// C1 = k * G
	c1 := pubKey.New()
	c1.ScalarBaseMult(k)
	// s = k * pubKey
	s := pubKey.New()
	s.ScalarMult(pubKey, k)
	// C2 = m*G + s
	mG := pubKey.New()
	mG.ScalarBaseMult(m)
	c2 := pubKey.New()
	c2.Add(mG, s)
	return c1, c2, nil
}

// GenerateKey generates a new public/private encryption key pair on the
// curve of the given point.
func GenerateKey(curve ecc.Point, rng io.Reader) (publicKey ecc.Point, privateKey *big.Int, err error) {
	if rng == nil {
		rng = rand.Reader
	}
	d, err := rand.Int(rng, curve.Order())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key scalar: %w", err)
	}
	if d.Sign() == 0 {
		d = big.NewInt(1) // avoid zero private keys
	}
	publicKey = curve.New()
	publicKey.ScalarBaseMult(d)
	return publicKey, d, nil
}

// Decrypt decrypts the ciphertext (c1, c2) with the private key. It returns
// the point M = c2 - d*c1 and the message scalar recovered by discrete log
// search bounded by maxMessage.
func Decrypt(privateKey *big.Int, c1, c2 ecc.Point, maxMessage uint64) (ecc.Point, *big.Int, error) {
	dC1 := c1.New()
	dC1.ScalarMult(c1, privateKey)
	dC1.Neg(dC1)

	m := c2.New()
	m.Set(c2)
	m.Add(m, dC1)

	g := c2.New()
	g.SetGenerator()
	message, err := BabyStepGiantStep(m, g, maxMessage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find discrete log: %w", err)
	}
	return m, message, nil
}

// BabyStepGiantStep solves M = x*G for x in [0, maxMessage] using the
// baby-step giant-step algorithm.
func BabyStepGiantStep(m, g ecc.Point, maxMessage uint64) (*big.Int, error) {
	mSqrt := uint64(math.Sqrt(float64(maxMessage))) + 1

	babySteps := make(map[string]uint64, mSqrt)
	babyStep := m.New()
	babyStep.SetZero()
	for j := uint64(0); j < mSqrt; j++ {
		babySteps[babyStep.String()] = j
		babyStep.Add(babyStep, g)
	}

	// c = -mSqrt * G
	c := m.New()
	c.ScalarBaseMult(new(big.Int).SetUint64(mSqrt))
	c.Neg(c)

	giantStep := m.New()
	giantStep.Set(m)
	for i := uint64(0); i <= mSqrt; i++ {
		if j, found := babySteps[giantStep.String()]; found {
			return new(big.Int).SetUint64(i*mSqrt + j), nil
		}
		giantStep.Add(giantStep, c)
	}
	return nil, fmt.Errorf("message out of discrete log search range")
}

// CheckK reports whether k is the randomness used to produce c1, without
// decrypting anything.
func CheckK(c1 ecc.Point, k *big.Int) bool {
	check := c1.New()
	check.ScalarBaseMult(k)
	return check.Equal(c1)
}
