package biometric

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	qt "github.com/frankban/quicktest"
)

func TestCommitZeroizesTemplate(t *testing.T) {
	c := qt.New(t)
	template := []byte("minutiae vector of the right index finger")
	commitment, err := Commit(template, rand.Reader)
	c.Assert(err, qt.IsNil)
	c.Assert(commitment.Value.Sign() > 0, qt.IsTrue)
	c.Assert(commitment.Value.Cmp(fr.Modulus()) < 0, qt.IsTrue)

	// the template buffer must be wiped after derivation
	c.Assert(bytes.Equal(template, make([]byte, len(template))), qt.IsTrue)
}

func TestCommitUnlinkability(t *testing.T) {
	c := qt.New(t)
	c1, err := Commit([]byte("same template"), rand.Reader)
	c.Assert(err, qt.IsNil)
	c2, err := Commit([]byte("same template"), rand.Reader)
	c.Assert(err, qt.IsNil)
	// fresh salts make repeated enrollments unlinkable
	c.Assert(c1.Value.Cmp(c2.Value) == 0, qt.IsFalse)
}

func TestRecommitMatchesEnrollment(t *testing.T) {
	c := qt.New(t)
	enrolled, err := Commit([]byte("stable template"), rand.Reader)
	c.Assert(err, qt.IsNil)

	rescan, err := Recommit([]byte("stable template"), enrolled.Salt)
	c.Assert(err, qt.IsNil)
	c.Assert(rescan.Value.Cmp(enrolled.Value), qt.Equals, 0)

	other, err := Recommit([]byte("another finger"), enrolled.Salt)
	c.Assert(err, qt.IsNil)
	c.Assert(other.Value.Cmp(enrolled.Value) == 0, qt.IsFalse)
}

func TestEmptyTemplate(t *testing.T) {
	c := qt.New(t)
	_, err := Commit(nil, rand.Reader)
	c.Assert(err, qt.Equals, ErrEmptyTemplate)
	_, err = Recommit(nil, []byte("salt"))
	c.Assert(err, qt.Equals, ErrEmptyTemplate)
}

func TestPseudonym(t *testing.T) {
	c := qt.New(t)
	enrolled, err := Commit([]byte("template"), rand.Reader)
	c.Assert(err, qt.IsNil)

	p1, err := Pseudonym(enrolled.Value, []byte("event-a"))
	c.Assert(err, qt.IsNil)
	p2, err := Pseudonym(enrolled.Value, []byte("event-a"))
	c.Assert(err, qt.IsNil)
	c.Assert(p1.Cmp(p2), qt.Equals, 0)

	p3, err := Pseudonym(enrolled.Value, []byte("event-b"))
	c.Assert(err, qt.IsNil)
	c.Assert(p1.Cmp(p3) == 0, qt.IsFalse)
}
