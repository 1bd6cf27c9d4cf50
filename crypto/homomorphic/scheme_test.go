package homomorphic

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
	qt "github.com/frankban/quicktest"

	"github.com/biovote/protocol/types"
)

// tallyVotes encrypts the given {0,1} plaintexts, folds them homomorphically
// and decrypts the sum with a quorum of exactly the threshold.
func tallyVotes(c *qt.C, s Scheme, kp *KeyPair, votes []int64) *big.Int {
	sum, err := s.Encrypt(kp.Public, big.NewInt(votes[0]), rand.Reader)
	c.Assert(err, qt.IsNil)
	for _, v := range votes[1:] {
		ct, err := s.Encrypt(kp.Public, big.NewInt(v), rand.Reader)
		c.Assert(err, qt.IsNil)
		sum, err = s.Add(kp.Public, sum, ct)
		c.Assert(err, qt.IsNil)
	}

	var decShares []*DecryptionShare
	for _, share := range kp.Shares[:kp.Threshold] {
		ds, err := s.PartialDecrypt(share, sum)
		c.Assert(err, qt.IsNil)
		decShares = append(decShares, ds)
	}
	total, err := s.Combine(kp.Public, sum, decShares)
	c.Assert(err, qt.IsNil)
	return total
}

func TestPaillierThresholdTally(t *testing.T) {
	c := qt.New(t)
	s, err := New(SchemePaillier)
	c.Assert(err, qt.IsNil)

	kp, err := s.GenerateKeys(types.TallyKeyMinBits, 3, 5, rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(kp.Shares, qt.HasLen, 5)

	total := tallyVotes(c, s, kp, []int64{1, 0, 1, 1, 0})
	c.Assert(total.Int64(), qt.Equals, int64(3))
}

func TestPaillierQuorumBoundary(t *testing.T) {
	c := qt.New(t)
	s, err := New(SchemePaillier)
	c.Assert(err, qt.IsNil)
	kp, err := s.GenerateKeys(types.TallyKeyMinBits, 3, 5, rand.Reader)
	c.Assert(err, qt.IsNil)

	ct, err := s.Encrypt(kp.Public, big.NewInt(7), rand.Reader)
	c.Assert(err, qt.IsNil)

	// a non-contiguous quorum of exactly the threshold decrypts
	var quorum []*DecryptionShare
	for _, idx := range []int{1, 2, 4} {
		ds, err := s.PartialDecrypt(kp.Shares[idx], ct)
		c.Assert(err, qt.IsNil)
		quorum = append(quorum, ds)
	}
	m, err := s.Combine(kp.Public, ct, quorum)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Int64(), qt.Equals, int64(7))

	// one short of the threshold is rejected
	_, err = s.Combine(kp.Public, ct, quorum[:2])
	c.Assert(errors.Is(err, ErrInsufficientShares), qt.IsTrue)

	// a repeated trustee does not count towards the quorum
	dup := []*DecryptionShare{quorum[0], quorum[1], quorum[1]}
	_, err = s.Combine(kp.Public, ct, dup)
	c.Assert(errors.Is(err, ErrDuplicateShareIndex), qt.IsTrue)
}

func TestPaillierRejectsSmallKey(t *testing.T) {
	c := qt.New(t)
	s, err := New(SchemePaillier)
	c.Assert(err, qt.IsNil)
	_, err = s.GenerateKeys(1024, 2, 3, rand.Reader)
	c.Assert(errors.Is(err, ErrKeyTooSmall), qt.IsTrue)
}

func TestElGamalThresholdTally(t *testing.T) {
	c := qt.New(t)
	s, err := New(SchemeElGamal)
	c.Assert(err, qt.IsNil)

	kp, err := s.GenerateKeys(0, 2, 3, rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(kp.Shares, qt.HasLen, 3)

	total := tallyVotes(c, s, kp, []int64{1, 1, 0, 1})
	c.Assert(total.Int64(), qt.Equals, int64(3))
}

func TestEncryptionIsProbabilistic(t *testing.T) {
	for _, tc := range []struct {
		name string
		bits int
	}{
		{SchemeElGamal, 0},
		{SchemePaillier, types.TallyKeyMinBits},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := qt.New(t)
			s, err := New(tc.name)
			c.Assert(err, qt.IsNil)
			kp, err := s.GenerateKeys(tc.bits, 2, 3, rand.Reader)
			c.Assert(err, qt.IsNil)

			// two encryptions of the same plaintext must not be
			// recognizable as such on the wire
			ct1, err := s.Encrypt(kp.Public, big.NewInt(1), rand.Reader)
			c.Assert(err, qt.IsNil)
			ct2, err := s.Encrypt(kp.Public, big.NewInt(1), rand.Reader)
			c.Assert(err, qt.IsNil)

			b1, err := cbor.Marshal(ct1)
			c.Assert(err, qt.IsNil)
			b2, err := cbor.Marshal(ct2)
			c.Assert(err, qt.IsNil)
			c.Assert(bytes.Equal(b1, b2), qt.IsFalse)
		})
	}
}

func TestSchemeMismatch(t *testing.T) {
	c := qt.New(t)
	eg, err := New(SchemeElGamal)
	c.Assert(err, qt.IsNil)
	pl, err := New(SchemePaillier)
	c.Assert(err, qt.IsNil)

	egKeys, err := eg.GenerateKeys(0, 2, 3, rand.Reader)
	c.Assert(err, qt.IsNil)

	_, err = pl.Encrypt(egKeys.Public, big.NewInt(1), rand.Reader)
	c.Assert(errors.Is(err, ErrSchemeMismatch), qt.IsTrue)
}

func TestUnknownScheme(t *testing.T) {
	c := qt.New(t)
	_, err := New("rsa")
	c.Assert(err, qt.IsNotNil)
}

func TestInvalidThreshold(t *testing.T) {
	c := qt.New(t)
	for _, name := range []string{SchemePaillier, SchemeElGamal} {
		s, err := New(name)
		c.Assert(err, qt.IsNil)
		_, err = s.GenerateKeys(types.TallyKeyMinBits, 4, 3, rand.Reader)
		c.Assert(err, qt.IsNotNil)
	}
}
