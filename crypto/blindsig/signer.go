package blindsig

import (
	"fmt"
	"io"
	"math/big"

	"github.com/biovote/protocol/crypto/ecc"
)

// SignerSession is the signer-side state for one blind-signing round. Each
// session holds a single-use nonce; signing consumes it and zeroes the
// secret scalar, so a second Sign call fails.
type SignerSession struct {
	k *big.Int
	r ecc.Point
}

// NewSignerSession creates a signing session on the curve of the signing key,
// drawing the nonce from rng.
func NewSignerSession(sk *PrivateKey, rng io.Reader) (*SignerSession, error) {
	curve := sk.pub.Point
	k, err := randScalar(rng, curve.Order())
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing nonce: %w", err)
	}
	r := curve.New()
	r.ScalarBaseMult(k)
	return &SignerSession{k: k, r: r}, nil
}

// PublicNonce returns R', the public nonce the requester blinds against.
func (ss *SignerSession) PublicNonce() ecc.Point {
	return ss.r
}

// Sign produces the blinded scalar response s' = k + c'*d for a blinded
// challenge. It is a pure computation over the inputs and the session nonce;
// the nonce is consumed and zeroed before returning.
func (ss *SignerSession) Sign(sk *PrivateKey, blinded *BlindedMessage) (*big.Int, error) {
	if ss.k == nil {
		return nil, ErrNonceConsumed
	}
	order := sk.pub.Point.Order()
	if blinded.C.Sign() < 0 || blinded.C.Cmp(order) >= 0 {
		return nil, ErrInvalidScalar
	}
	s := new(big.Int).Mul(blinded.C, sk.D)
	s.Add(s, ss.k)
	s.Mod(s, order)

	ss.k.SetInt64(0)
	ss.k = nil
	return s, nil
}
