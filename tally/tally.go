// Package tally runs the trustee decryption ceremony that turns a finalized
// vote event's encrypted aggregates into plaintext per-option totals. No
// single trustee can decrypt: shares accumulate until the scheme threshold
// is reached, then the combination recovers only the sums.
package tally

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"

	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/types"
)

var (
	// ErrNotFinalized is returned when the ceremony is opened before the
	// vote event stopped accepting submissions.
	ErrNotFinalized = fmt.Errorf("vote event is not finalized")
	// ErrQuorumNotReached is returned by Result before enough trustees
	// contributed their shares.
	ErrQuorumNotReached = fmt.Errorf("decryption quorum not reached")
	// ErrShareExists is returned when a trustee submits shares twice.
	ErrShareExists = fmt.Errorf("trustee already submitted decryption shares")
	// ErrShareShape is returned when a trustee submits the wrong number of
	// per-option shares.
	ErrShareShape = fmt.Errorf("share count does not match ballot options")
)

const (
	sharePrefix  = "sh_"
	resultPrefix = "rs_"
)

// Result is the decrypted outcome of one vote event.
type Result struct {
	VoteEventID types.HexBytes `cbor:"1,keyasint" json:"voteEventId"`
	Options     []string       `cbor:"2,keyasint" json:"options"`
	Totals      []uint64       `cbor:"3,keyasint" json:"totals"`
	VoteCount   uint64         `cbor:"4,keyasint" json:"voteCount"`
}

// Trustee is the client-side helper a tally trustee runs over its secret
// share.
type Trustee struct {
	Secret *homomorphic.SecretShare
}

// ComputeShares produces the trustee's decryption share for every option
// aggregate. Options nobody voted for have a nil aggregate and get a nil
// share.
func (t *Trustee) ComputeShares(scheme homomorphic.Scheme, aggregates []*homomorphic.Ciphertext) ([]*homomorphic.DecryptionShare, error) {
	shares := make([]*homomorphic.DecryptionShare, len(aggregates))
	for i, ct := range aggregates {
		if ct == nil {
			continue
		}
		ds, err := scheme.PartialDecrypt(t.Secret, ct)
		if err != nil {
			return nil, fmt.Errorf("failed to compute share for option %d: %w", i, err)
		}
		shares[i] = ds
	}
	return shares, nil
}

// Ceremony collects trustee shares for finalized vote events and combines
// them once the quorum is reached.
type Ceremony struct {
	mu    sync.Mutex
	store *ledger.Store
	db    db.Database
}

// NewCeremony creates a ceremony bound to the ledger store.
func NewCeremony(store *ledger.Store) *Ceremony {
	return &Ceremony{store: store, db: store.DB("tally_")}
}

// SubmitShares records one trustee's per-option decryption shares for a
// finalized event. Each trustee may contribute once.
func (c *Ceremony) SubmitShares(voteEventID types.HexBytes, trusteeIndex int, shares []*homomorphic.DecryptionShare) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	event, err := c.store.VoteEvent(voteEventID)
	if err != nil {
		return err
	}
	if !event.Finalized {
		return ErrNotFinalized
	}
	if len(shares) != len(event.Definition.Options) {
		return fmt.Errorf("%w: got %d, ballot has %d options",
			ErrShareShape, len(shares), len(event.Definition.Options))
	}

	key := shareKey(voteEventID, trusteeIndex)
	if _, err := c.db.Get(key); err == nil {
		return ErrShareExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	blob, err := cbor.Marshal(shares)
	if err != nil {
		return fmt.Errorf("failed to encode shares: %w", err)
	}
	wtx := c.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(key, blob); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}

	c.store.PublishShareSubmitted(voteEventID, trusteeIndex)
	return nil
}

// Result combines the collected shares into plaintext totals. Before the
// quorum is reached it returns ErrQuorumNotReached. The first successful
// combination is persisted and later calls return the stored result.
func (c *Ceremony) Result(voteEventID types.HexBytes) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blob, err := c.db.Get(resultKey(voteEventID)); err == nil {
		var result Result
		if err := cbor.Unmarshal(blob, &result); err != nil {
			return nil, err
		}
		return &result, nil
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}

	event, err := c.store.VoteEvent(voteEventID)
	if err != nil {
		return nil, err
	}
	if !event.Finalized {
		return nil, ErrNotFinalized
	}
	scheme, err := homomorphic.New(event.Scheme)
	if err != nil {
		return nil, err
	}
	tallyKey, err := event.DecodeTallyKey()
	if err != nil {
		return nil, err
	}
	aggregates, err := c.store.Aggregate(voteEventID)
	if err != nil {
		return nil, err
	}
	collected, err := c.collectedShares(voteEventID, len(event.Definition.Options))
	if err != nil {
		return nil, err
	}

	result := &Result{
		VoteEventID: voteEventID,
		Options:     event.Definition.Options,
		Totals:      make([]uint64, len(aggregates)),
		VoteCount:   event.VoteCount,
	}
	for i, ct := range aggregates {
		if ct == nil {
			continue // no votes for this option
		}
		total, err := scheme.Combine(tallyKey, ct, collected[i])
		if errors.Is(err, homomorphic.ErrInsufficientShares) {
			return nil, ErrQuorumNotReached
		} else if err != nil {
			return nil, fmt.Errorf("failed to combine shares for option %d: %w", i, err)
		}
		result.Totals[i] = total.Uint64()
	}

	blob, err := cbor.Marshal(result)
	if err != nil {
		return nil, err
	}
	wtx := c.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(resultKey(voteEventID), blob); err != nil {
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// collectedShares loads every trustee submission, grouped per option.
func (c *Ceremony) collectedShares(voteEventID types.HexBytes, options int) ([][]*homomorphic.DecryptionShare, error) {
	out := make([][]*homomorphic.DecryptionShare, options)
	prefix := append([]byte(sharePrefix), voteEventID...)
	if err := c.db.Iterate(prefix, func(_, value []byte) bool {
		var shares []*homomorphic.DecryptionShare
		if err := cbor.Unmarshal(value, &shares); err != nil {
			return true
		}
		for i, ds := range shares {
			if i < options && ds != nil {
				out[i] = append(out[i], ds)
			}
		}
		return true
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func shareKey(voteEventID types.HexBytes, trusteeIndex int) []byte {
	key := append([]byte(sharePrefix), voteEventID...)
	return append(key, byte(trusteeIndex))
}

func resultKey(voteEventID types.HexBytes) []byte {
	return append([]byte(resultPrefix), voteEventID...)
}
