package tally

import (
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/types"
)

var testEventID = types.HexBytes{0xbe, 0xef}

type fixture struct {
	store    *ledger.Store
	scheme   homomorphic.Scheme
	keys     *homomorphic.KeyPair
	ceremony *Ceremony
}

// newFixture creates a finalized two-option event with the given votes cast.
func newFixture(t *testing.T, votes []int) *fixture {
	t.Helper()
	c := qt.New(t)

	scheme, err := homomorphic.New(homomorphic.SchemeElGamal)
	c.Assert(err, qt.IsNil)
	keys, err := scheme.GenerateKeys(0, 2, 3, rand.Reader)
	c.Assert(err, qt.IsNil)

	store := ledger.NewStore(metadb.NewTest(t))
	def := &types.BallotDefinition{
		VoteEventID: testEventID,
		Options:     []string{"approve", "reject"},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(time.Hour),
	}
	c.Assert(store.CreateVoteEvent(def, scheme.Name(), keys.Public, nil), qt.IsNil)

	keyBlob, err := cbor.Marshal(keys.Public)
	c.Assert(err, qt.IsNil)
	for n, option := range votes {
		ciphertexts := make([]types.HexBytes, len(def.Options))
		for i := range ciphertexts {
			m := big.NewInt(0)
			if i == option {
				m = big.NewInt(1)
			}
			ct, err := scheme.Encrypt(keys.Public, m, rand.Reader)
			c.Assert(err, qt.IsNil)
			blob, err := cbor.Marshal(ct)
			c.Assert(err, qt.IsNil)
			ciphertexts[i] = blob
		}
		bundle := &types.SubmissionBundle{
			VoteEventID:  testEventID,
			Ciphertexts:  ciphertexts,
			Scheme:       scheme.Name(),
			TallyKey:     keyBlob,
			BallotDigest: (*types.BigInt)(big.NewInt(int64(n + 1))),
			Signature:    types.HexBytes{0x01},
			Nullifier:    (*types.BigInt)(big.NewInt(int64(1000 + n))),
			Proof:        types.HexBytes{0x02},
			Root:         (*types.BigInt)(big.NewInt(3)),
			Anonymous:    true,
			Timestamp:    time.Now().Unix(),
		}
		c.Assert(store.SubmitVote(bundle), qt.IsNil)
	}
	c.Assert(store.Finalize(testEventID), qt.IsNil)

	return &fixture{
		store:    store,
		scheme:   scheme,
		keys:     keys,
		ceremony: NewCeremony(store),
	}
}

func (f *fixture) submitTrustee(t *testing.T, index int) {
	t.Helper()
	c := qt.New(t)
	aggregates, err := f.store.Aggregate(testEventID)
	c.Assert(err, qt.IsNil)
	trustee := &Trustee{Secret: f.keys.Shares[index-1]}
	shares, err := trustee.ComputeShares(f.scheme, aggregates)
	c.Assert(err, qt.IsNil)
	c.Assert(f.ceremony.SubmitShares(testEventID, index, shares), qt.IsNil)
}

func TestCeremony(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t, []int{0, 1, 0, 0})

	// below quorum there is no result
	f.submitTrustee(t, 1)
	_, err := f.ceremony.Result(testEventID)
	c.Assert(err, qt.Equals, ErrQuorumNotReached)

	// the quorum unlocks the totals
	f.submitTrustee(t, 3)
	result, err := f.ceremony.Result(testEventID)
	c.Assert(err, qt.IsNil)
	c.Assert(result.Totals, qt.DeepEquals, []uint64{3, 1})
	c.Assert(result.VoteCount, qt.Equals, uint64(4))
	c.Assert(result.Options, qt.DeepEquals, []string{"approve", "reject"})

	// the result is persisted and stable
	again, err := f.ceremony.Result(testEventID)
	c.Assert(err, qt.IsNil)
	c.Assert(again.Totals, qt.DeepEquals, result.Totals)
}

func TestDuplicateTrustee(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t, []int{0})
	f.submitTrustee(t, 2)

	aggregates, err := f.store.Aggregate(testEventID)
	c.Assert(err, qt.IsNil)
	trustee := &Trustee{Secret: f.keys.Shares[1]}
	shares, err := trustee.ComputeShares(f.scheme, aggregates)
	c.Assert(err, qt.IsNil)
	err = f.ceremony.SubmitShares(testEventID, 2, shares)
	c.Assert(err, qt.Equals, ErrShareExists)
}

func TestSharesBeforeFinalize(t *testing.T) {
	c := qt.New(t)

	scheme, err := homomorphic.New(homomorphic.SchemeElGamal)
	c.Assert(err, qt.IsNil)
	keys, err := scheme.GenerateKeys(0, 2, 3, rand.Reader)
	c.Assert(err, qt.IsNil)
	store := ledger.NewStore(metadb.NewTest(t))
	def := &types.BallotDefinition{
		VoteEventID: testEventID,
		Options:     []string{"a", "b"},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(time.Hour),
	}
	c.Assert(store.CreateVoteEvent(def, scheme.Name(), keys.Public, nil), qt.IsNil)

	ceremony := NewCeremony(store)
	err = ceremony.SubmitShares(testEventID, 1, make([]*homomorphic.DecryptionShare, 2))
	c.Assert(err, qt.Equals, ErrNotFinalized)
	_, err = ceremony.Result(testEventID)
	c.Assert(err, qt.Equals, ErrNotFinalized)
}

func TestShareShape(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t, []int{0})
	err := f.ceremony.SubmitShares(testEventID, 1, make([]*homomorphic.DecryptionShare, 5))
	c.Assert(err, qt.ErrorIs, ErrShareShape)
}

func TestShareEventOnBus(t *testing.T) {
	c := qt.New(t)
	f := newFixture(t, []int{0})

	ch, cancel := f.store.Bus().Subscribe()
	defer cancel()
	f.submitTrustee(t, 1)

	ev := <-ch
	c.Assert(ev.Type, qt.Equals, ledger.EventDecryptionShareSubmitted)
	c.Assert(ev.Payload["trustee"], qt.Equals, 1)
}
