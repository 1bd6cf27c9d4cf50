// Package ecc abstracts the elliptic curve group operations used by the
// blind-signature and homomorphic-tally primitives, so that both can run on
// any of the supported curve backends.
package ecc

import "math/big"

// Point represents an affine elliptic curve group element together with the
// arithmetic, serialization and comparison operations the protocol needs.
// Implementations store the result of every operation in the receiver.
type Point interface {
	// New returns a fresh point on the same curve as the receiver.
	New() Point

	// Order returns the order of the prime-order group.
	Order() *big.Int

	// Add sets the receiver to a + b.
	Add(a, b Point)

	// SafeAdd sets the receiver to a + b with exclusive access to the
	// receiver, safe to call from concurrent aggregators.
	SafeAdd(a, b Point)

	// ScalarMult sets the receiver to scalar * a.
	ScalarMult(a Point, scalar *big.Int)

	// ScalarBaseMult sets the receiver to scalar * G.
	ScalarBaseMult(scalar *big.Int)

	// Marshal serializes the point into a fixed-length byte slice.
	Marshal() []byte

	// Unmarshal deserializes buf into the receiver.
	Unmarshal(buf []byte) error

	// Equal reports whether the receiver and a represent the same element.
	Equal(a Point) bool

	// Neg sets the receiver to -a.
	Neg(a Point)

	// SetZero sets the receiver to the identity element.
	SetZero()

	// Set copies a into the receiver.
	Set(a Point)

	// SetGenerator sets the receiver to the group generator.
	SetGenerator()

	// String returns a human-readable representation of the point.
	String() string

	// Point returns the affine X and Y coordinates.
	Point() (*big.Int, *big.Int)

	// SetPoint sets the affine coordinates and returns the receiver.
	SetPoint(x, y *big.Int) Point

	// Type returns the curve type identifier.
	Type() string
}

// BigToFF returns the finite field representation of iv under the given
// field modulus, reducing only when needed.
func BigToFF(field, iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(field); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, field)
}
