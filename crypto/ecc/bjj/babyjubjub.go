// Package bjj implements the ecc.Point interface over the BabyJubJub
// twisted Edwards curve, backed by go-iden3-crypto. The group operates on
// the prime-order subgroup generated by the base point B8.
package bjj

import (
	"fmt"
	"math/big"
	"sync"

	babyjubjub "github.com/iden3/go-iden3-crypto/babyjub"

	curve "github.com/biovote/protocol/crypto/ecc"
)

// CurveType identifies this backend in the curves registry.
const CurveType = "bjj"

// BJJ wraps an affine BabyJubJub subgroup element.
type BJJ struct {
	inner *babyjubjub.Point
	lock  sync.Mutex
}

// New returns a new BJJ point set to the identity.
func New() curve.Point {
	p := &BJJ{inner: babyjubjub.NewPoint()}
	p.SetZero()
	return p
}

func (g *BJJ) New() curve.Point {
	return New()
}

func (g *BJJ) Order() *big.Int {
	return babyjubjub.SubOrder
}

func (g *BJJ) Add(a, b curve.Point) {
	g.inner = g.inner.Projective().Add(
		a.(*BJJ).inner.Projective(),
		b.(*BJJ).inner.Projective()).Affine()
}

func (g *BJJ) SafeAdd(a, b curve.Point) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.Add(a, b)
}

func (g *BJJ) ScalarMult(a curve.Point, scalar *big.Int) {
	g.inner = g.inner.Mul(scalar, a.(*BJJ).inner)
}

func (g *BJJ) ScalarBaseMult(scalar *big.Int) {
	g.inner = g.inner.Mul(scalar, babyjubjub.B8)
}

func (g *BJJ) Marshal() []byte {
	b := g.inner.Compress()
	return b[:]
}

func (g *BJJ) Unmarshal(buf []byte) error {
	if len(buf) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(buf))
	}
	if g.inner == nil {
		g.inner = babyjubjub.NewPoint()
	}
	b32 := [32]byte{}
	copy(b32[:], buf)
	_, err := g.inner.Decompress(b32)
	return err
}

func (g *BJJ) Equal(a curve.Point) bool {
	return g.inner.X.Cmp(a.(*BJJ).inner.X) == 0 &&
		g.inner.Y.Cmp(a.(*BJJ).inner.Y) == 0
}

func (g *BJJ) Neg(a curve.Point) {
	proj := a.(*BJJ).inner.Projective()
	proj.X = proj.X.Neg(proj.X)
	aff := proj.Affine()
	g.inner.X = g.inner.X.Set(aff.X)
	g.inner.Y = g.inner.Y.Set(aff.Y)
}

func (g *BJJ) SetZero() {
	// the twisted Edwards identity is (0, 1)
	g.inner.X.SetInt64(0)
	g.inner.Y.SetInt64(1)
}

func (g *BJJ) Set(a curve.Point) {
	g.inner.X = g.inner.X.Set(a.(*BJJ).inner.X)
	g.inner.Y = g.inner.Y.Set(a.(*BJJ).inner.Y)
}

func (g *BJJ) SetGenerator() {
	gen := babyjubjub.B8
	g.inner.X = g.inner.X.Set(gen.X)
	g.inner.Y = g.inner.Y.Set(gen.Y)
}

func (g *BJJ) String() string {
	return fmt.Sprintf("%s,%s", g.inner.X.String(), g.inner.Y.String())
}

func (g *BJJ) Point() (*big.Int, *big.Int) {
	return new(big.Int).Set(g.inner.X), new(big.Int).Set(g.inner.Y)
}

func (g *BJJ) SetPoint(x, y *big.Int) curve.Point {
	g = &BJJ{inner: babyjubjub.NewPoint()}
	g.inner.X = g.inner.X.Set(x)
	g.inner.Y = g.inner.Y.Set(y)
	return g
}

func (g *BJJ) Type() string {
	return CurveType
}
