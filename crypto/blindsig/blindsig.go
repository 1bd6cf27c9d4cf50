// Package blindsig implements a blind Schnorr signature over any of the
// supported curve backends. The signer authorizes a message digest without
// ever observing it: the requester blinds the challenge before the signing
// round-trip and unblinds the returned scalar afterwards.
//
// The same MiMC hash used for the signature challenge also derives the
// per-voter per-event nullifier, so both artifacts share one primitive set.
package blindsig

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"

	"github.com/biovote/protocol/crypto/ecc"
)

var (
	// ErrInvalidScalar is returned when a scalar is out of the group order.
	ErrInvalidScalar = fmt.Errorf("scalar out of range for curve order")
	// ErrNonceConsumed is returned when a signer session is reused.
	ErrNonceConsumed = fmt.Errorf("signer nonce already consumed")
)

// PublicKey is a blind-signature verification key.
type PublicKey struct {
	Point ecc.Point
}

// Bytes returns the serialized public key.
func (pk *PublicKey) Bytes() []byte {
	return pk.Point.Marshal()
}

// PrivateKey is a blind-signature signing key. It lives on the terminal and
// never crosses the transport.
type PrivateKey struct {
	D   *big.Int
	pub *PublicKey
}

// Public returns the verification key for the private key.
func (sk *PrivateKey) Public() *PublicKey {
	return sk.pub
}

// GenerateKey generates a signing key pair on the curve of the given point,
// drawing randomness from rng.
func GenerateKey(curve ecc.Point, rng io.Reader) (*PrivateKey, error) {
	d, err := randScalar(rng, curve.Order())
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing scalar: %w", err)
	}
	pub := curve.New()
	pub.ScalarBaseMult(d)
	return &PrivateKey{D: d, pub: &PublicKey{Point: pub}}, nil
}

// BlindedMessage is the value handed to the signer. It carries no
// recoverable information about the underlying message.
type BlindedMessage struct {
	C *big.Int
}

// Bytes returns the canonical encoding of the blinded challenge.
func (b *BlindedMessage) Bytes() []byte {
	return b.C.Bytes()
}

// BlindingFactor is the requester-side secret binding a blinded message to
// its final signature. Compromise of the signer after the fact cannot link a
// signature to its signing round without it.
type BlindingFactor struct {
	Alpha *big.Int
	Beta  *big.Int
	R     ecc.Point
}

// Signature is an unblinded Schnorr signature (R, S).
type Signature struct {
	R ecc.Point
	S *big.Int
}

// Bytes returns the serialized signature: R ‖ S with S padded to the
// point-encoding length.
func (sig *Signature) Bytes() []byte {
	rb := sig.R.Marshal()
	sb := make([]byte, len(rb))
	sig.S.FillBytes(sb)
	return append(rb, sb...)
}

// SignatureFromBytes deserializes a signature produced by Bytes on the curve
// of the given point.
func SignatureFromBytes(curve ecc.Point, buf []byte) (*Signature, error) {
	pointLen := len(curve.New().Marshal())
	if len(buf) != 2*pointLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", 2*pointLen, len(buf))
	}
	r := curve.New()
	if err := r.Unmarshal(buf[:pointLen]); err != nil {
		return nil, fmt.Errorf("invalid signature point: %w", err)
	}
	return &Signature{R: r, S: new(big.Int).SetBytes(buf[pointLen:])}, nil
}

// Blind blinds the message digest msg for the signer session whose public
// nonce is signerR. It returns the blinded challenge for the signer and the
// blinding factor the requester needs to unblind the response.
func Blind(msg *big.Int, pub *PublicKey, signerR ecc.Point, rng io.Reader) (*BlindedMessage, *BlindingFactor, error) {
	order := pub.Point.Order()
	alpha, err := randScalar(rng, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate blinding factor: %w", err)
	}
	beta, err := randScalar(rng, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate blinding factor: %w", err)
	}

	// R = R' + alpha*G + beta*P
	r := pub.Point.New()
	r.ScalarBaseMult(alpha)
	betaP := pub.Point.New()
	betaP.ScalarMult(pub.Point, beta)
	r.Add(r, betaP)
	r.Add(r, signerR)

	c := challenge(r, msg, order)
	// c' = c + beta
	cPrime := new(big.Int).Add(c, beta)
	cPrime.Mod(cPrime, order)

	return &BlindedMessage{C: cPrime}, &BlindingFactor{Alpha: alpha, Beta: beta, R: r}, nil
}

// Unblind converts the signer's blinded scalar response into a final
// signature using the requester's blinding factor.
func Unblind(blindS *big.Int, bf *BlindingFactor) *Signature {
	order := bf.R.Order()
	s := new(big.Int).Add(blindS, bf.Alpha)
	s.Mod(s, order)
	return &Signature{R: bf.R, S: s}
}

// Verify reports whether sig is a valid signature over msg under pub. The
// point comparison runs in constant time over fixed-length encodings.
func Verify(msg *big.Int, sig *Signature, pub *PublicKey) bool {
	order := pub.Point.Order()
	c := challenge(sig.R, msg, order)

	// sG == R + cP
	lhs := pub.Point.New()
	lhs.ScalarBaseMult(sig.S)
	rhs := pub.Point.New()
	rhs.ScalarMult(pub.Point, c)
	rhs.Add(rhs, sig.R)

	return subtle.ConstantTimeCompare(lhs.Marshal(), rhs.Marshal()) == 1
}

// challenge computes the Schnorr challenge c = H(R.x, R.y, msg) mod order.
func challenge(r ecc.Point, msg *big.Int, order *big.Int) *big.Int {
	x, y := r.Point()
	h := HashScalars(x, y, msg)
	return h.Mod(h, order)
}

// randScalar draws a uniform nonzero scalar below order from rng.
func randScalar(rng io.Reader, order *big.Int) (*big.Int, error) {
	if rng == nil {
		rng = rand.Reader
	}
	for {
		k, err := rand.Int(rng, order)
		if err != nil {
			return nil, err
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}
