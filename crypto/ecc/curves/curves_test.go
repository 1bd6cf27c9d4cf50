package curves

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPointArithmetic(t *testing.T) {
	for _, curveType := range []string{CurveTypeBN254, CurveTypeBabyJubJub} {
		t.Run(curveType, func(t *testing.T) {
			c := qt.New(t)
			p, err := New(curveType)
			c.Assert(err, qt.IsNil)

			// 2G + 3G == 5G
			twoG := p.New()
			twoG.ScalarBaseMult(big.NewInt(2))
			threeG := p.New()
			threeG.ScalarBaseMult(big.NewInt(3))
			sum := p.New()
			sum.Add(twoG, threeG)

			fiveG := p.New()
			fiveG.ScalarBaseMult(big.NewInt(5))
			c.Assert(sum.Equal(fiveG), qt.IsTrue)

			// G + (-G) == identity
			g := p.New()
			g.SetGenerator()
			negG := p.New()
			negG.Neg(g)
			id := p.New()
			id.Add(g, negG)
			zero := p.New()
			zero.SetZero()
			c.Assert(id.Equal(zero), qt.IsTrue)
		})
	}
}

func TestPointMarshalRoundTrip(t *testing.T) {
	for _, curveType := range []string{CurveTypeBN254, CurveTypeBabyJubJub} {
		t.Run(curveType, func(t *testing.T) {
			c := qt.New(t)
			p, err := New(curveType)
			c.Assert(err, qt.IsNil)
			p.ScalarBaseMult(big.NewInt(42))

			buf := p.Marshal()
			q := p.New()
			c.Assert(q.Unmarshal(buf), qt.IsNil)
			c.Assert(q.Equal(p), qt.IsTrue)
		})
	}
}

func TestUnknownCurve(t *testing.T) {
	c := qt.New(t)
	_, err := New("p256")
	c.Assert(err, qt.IsNotNil)
}
