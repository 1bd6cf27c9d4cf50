package blindsig

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/biovote/protocol/crypto/ecc/curves"
)

func TestBlindSignRoundTrip(t *testing.T) {
	for _, curveType := range []string{curves.CurveTypeBN254, curves.CurveTypeBabyJubJub} {
		t.Run(curveType, func(t *testing.T) {
			c := qt.New(t)
			curve, err := curves.New(curveType)
			c.Assert(err, qt.IsNil)

			sk, err := GenerateKey(curve, rand.Reader)
			c.Assert(err, qt.IsNil)
			ss, err := NewSignerSession(sk, rand.Reader)
			c.Assert(err, qt.IsNil)

			msg := BallotDigest([]byte("encrypted ballot payload"))
			blinded, bf, err := Blind(msg, sk.Public(), ss.PublicNonce(), rand.Reader)
			c.Assert(err, qt.IsNil)

			blindS, err := ss.Sign(sk, blinded)
			c.Assert(err, qt.IsNil)
			sig := Unblind(blindS, bf)

			c.Assert(Verify(msg, sig, sk.Public()), qt.IsTrue)

			// a different message must not verify under the same signature
			other := BallotDigest([]byte("some other payload"))
			c.Assert(Verify(other, sig, sk.Public()), qt.IsFalse)

			// nor must the signature verify under another key
			sk2, err := GenerateKey(curve, rand.Reader)
			c.Assert(err, qt.IsNil)
			c.Assert(Verify(msg, sig, sk2.Public()), qt.IsFalse)
		})
	}
}

func TestBlindingHidesMessage(t *testing.T) {
	c := qt.New(t)
	curve, err := curves.New(curves.CurveTypeBN254)
	c.Assert(err, qt.IsNil)
	sk, err := GenerateKey(curve, rand.Reader)
	c.Assert(err, qt.IsNil)
	ss, err := NewSignerSession(sk, rand.Reader)
	c.Assert(err, qt.IsNil)

	msg := BallotDigest([]byte("encrypted ballot payload"))

	// the challenge the signer sees must not be the digest itself
	b1, _, err := Blind(msg, sk.Public(), ss.PublicNonce(), rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(b1.C.Cmp(msg) == 0, qt.IsFalse)

	// two blindings of the same digest under the same signer nonce are
	// unlinkable to each other
	b2, _, err := Blind(msg, sk.Public(), ss.PublicNonce(), rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(b1.C.Cmp(b2.C) == 0, qt.IsFalse)
}

func TestSignerNonceSingleUse(t *testing.T) {
	c := qt.New(t)
	curve, err := curves.New(curves.CurveTypeBN254)
	c.Assert(err, qt.IsNil)
	sk, err := GenerateKey(curve, rand.Reader)
	c.Assert(err, qt.IsNil)
	ss, err := NewSignerSession(sk, rand.Reader)
	c.Assert(err, qt.IsNil)

	msg := big.NewInt(12345)
	blinded, _, err := Blind(msg, sk.Public(), ss.PublicNonce(), rand.Reader)
	c.Assert(err, qt.IsNil)

	_, err = ss.Sign(sk, blinded)
	c.Assert(err, qt.IsNil)
	_, err = ss.Sign(sk, blinded)
	c.Assert(err, qt.Equals, ErrNonceConsumed)
}

func TestSignRejectsOutOfRangeChallenge(t *testing.T) {
	c := qt.New(t)
	curve, err := curves.New(curves.CurveTypeBN254)
	c.Assert(err, qt.IsNil)
	sk, err := GenerateKey(curve, rand.Reader)
	c.Assert(err, qt.IsNil)
	ss, err := NewSignerSession(sk, rand.Reader)
	c.Assert(err, qt.IsNil)

	over := new(big.Int).Add(curve.Order(), big.NewInt(1))
	_, err = ss.Sign(sk, &BlindedMessage{C: over})
	c.Assert(err, qt.Equals, ErrInvalidScalar)
}

func TestSignatureSerialization(t *testing.T) {
	for _, curveType := range []string{curves.CurveTypeBN254, curves.CurveTypeBabyJubJub} {
		t.Run(curveType, func(t *testing.T) {
			c := qt.New(t)
			curve, err := curves.New(curveType)
			c.Assert(err, qt.IsNil)
			sk, err := GenerateKey(curve, rand.Reader)
			c.Assert(err, qt.IsNil)
			ss, err := NewSignerSession(sk, rand.Reader)
			c.Assert(err, qt.IsNil)

			msg := big.NewInt(987654321)
			blinded, bf, err := Blind(msg, sk.Public(), ss.PublicNonce(), rand.Reader)
			c.Assert(err, qt.IsNil)
			blindS, err := ss.Sign(sk, blinded)
			c.Assert(err, qt.IsNil)
			sig := Unblind(blindS, bf)

			decoded, err := SignatureFromBytes(curve, sig.Bytes())
			c.Assert(err, qt.IsNil)
			c.Assert(Verify(msg, decoded, sk.Public()), qt.IsTrue)

			_, err = SignatureFromBytes(curve, sig.Bytes()[1:])
			c.Assert(err, qt.IsNotNil)
		})
	}
}

func TestNullifierDeterminism(t *testing.T) {
	c := qt.New(t)
	commitment := new(big.Int).SetBytes([]byte("voter commitment"))
	eventA := []byte("event-a")
	eventB := []byte("event-b")

	n1 := Nullifier(commitment, eventA)
	n2 := Nullifier(commitment, eventA)
	c.Assert(n1.Cmp(n2), qt.Equals, 0)

	// changing the event or the commitment changes the nullifier
	c.Assert(n1.Cmp(Nullifier(commitment, eventB)) == 0, qt.IsFalse)
	other := new(big.Int).Add(commitment, big.NewInt(1))
	c.Assert(n1.Cmp(Nullifier(other, eventA)) == 0, qt.IsFalse)
}

func TestNullifierBitDispersion(t *testing.T) {
	c := qt.New(t)
	commitment := new(big.Int).SetBytes([]byte("voter commitment"))

	const samples = 256
	seen := make(map[string]bool, samples)
	bits := make([]int, 200)
	for i := 0; i < samples; i++ {
		var eventID [8]byte
		binary.BigEndian.PutUint64(eventID[:], uint64(i))
		n := Nullifier(commitment, eventID[:])
		c.Assert(seen[n.String()], qt.IsFalse, qt.Commentf("event %d", i))
		seen[n.String()] = true
		for b := range bits {
			bits[b] += int(n.Bit(b))
		}
	}

	// each low bit flips for roughly half the events; a bit stuck far from
	// balance would correlate the same commitment across events
	for b, ones := range bits {
		c.Assert(ones > samples/4 && ones < 3*samples/4, qt.IsTrue,
			qt.Commentf("bit %d set in %d of %d nullifiers", b, ones, samples))
	}
}

func TestBallotDigest(t *testing.T) {
	c := qt.New(t)
	d1 := BallotDigest([]byte("ballot"))
	d2 := BallotDigest([]byte("ballot"))
	c.Assert(d1.Cmp(d2), qt.Equals, 0)
	c.Assert(d1.Cmp(BallotDigest([]byte("ballor"))) == 0, qt.IsFalse)
	c.Assert(BallotDigest(nil).Sign() >= 0, qt.IsTrue)
}
