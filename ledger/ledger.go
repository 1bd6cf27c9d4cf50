// Package ledger is the append-only vote store. It owns the only durable
// record of a vote event: the ballot definition, the tally public key, the
// set of spent nullifiers and the running homomorphic aggregate per option.
// A vote is accepted exactly once per nullifier, first writer wins.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/types"
)

var (
	// ErrEventNotFound is returned for submissions to unknown vote events.
	ErrEventNotFound = fmt.Errorf("vote event not found")
	// ErrEventExists is returned when creating a duplicate vote event.
	ErrEventExists = fmt.Errorf("vote event already exists")
	// ErrNullifierSpent is returned when a nullifier was already recorded.
	ErrNullifierSpent = fmt.Errorf("nullifier already spent")
	// ErrOutsideWindow is returned for submissions outside the ballot
	// submission window.
	ErrOutsideWindow = fmt.Errorf("submission outside the ballot window")
	// ErrBallotShape is returned when the ciphertext vector does not match
	// the ballot option count.
	ErrBallotShape = fmt.Errorf("ciphertext count does not match ballot options")
	// ErrEventFinalized is returned for submissions after finalization.
	ErrEventFinalized = fmt.Errorf("vote event already finalized")
	// ErrSchemeMismatch is returned when a bundle was encrypted under a
	// different scheme than the event's.
	ErrSchemeMismatch = fmt.Errorf("submission scheme does not match vote event")
)

const (
	eventPrefix     = "ev_"
	nullifierPrefix = "nf_"
	votePrefix      = "vt_"
	aggregatePrefix = "ag_"
)

// StoredEvent is the durable record of one vote event.
type StoredEvent struct {
	Definition *types.BallotDefinition `cbor:"1,keyasint"`
	Scheme     string                  `cbor:"2,keyasint"`
	TallyKey   []byte                  `cbor:"3,keyasint"`
	CensusRoot types.HexBytes          `cbor:"4,keyasint"`
	Finalized  bool                    `cbor:"5,keyasint"`
	VoteCount  uint64                  `cbor:"6,keyasint"`
}

// Verifier validates a submission bundle before it is recorded. The store
// itself only enforces storage-level invariants; proof and signature checks
// are plugged in by the caller.
type Verifier func(event *StoredEvent, bundle *types.SubmissionBundle) error

// Store is the persistent ledger.
type Store struct {
	mu       sync.Mutex
	db       db.Database
	bus      *Bus
	verifier Verifier
}

// NewStore opens a ledger on the given database.
func NewStore(database db.Database) *Store {
	return &Store{db: database, bus: NewBus()}
}

// Bus returns the status event bus of the store.
func (s *Store) Bus() *Bus {
	return s.bus
}

// SetVerifier installs the submission verifier.
func (s *Store) SetVerifier(v Verifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = v
}

// CreateVoteEvent registers a new vote event with its tally key and census
// root.
func (s *Store) CreateVoteEvent(def *types.BallotDefinition, scheme string, tallyKey *homomorphic.PublicKey, censusRoot types.HexBytes) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid ballot definition: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey(def.VoteEventID)
	if _, err := s.db.Get(key); err == nil {
		return ErrEventExists
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	keyBlob, err := cbor.Marshal(tallyKey)
	if err != nil {
		return fmt.Errorf("failed to encode tally key: %w", err)
	}
	event := &StoredEvent{
		Definition: def,
		Scheme:     scheme,
		TallyKey:   keyBlob,
		CensusRoot: censusRoot,
	}
	return s.writeEvent(event)
}

// VoteEvent loads a stored vote event.
func (s *Store) VoteEvent(voteEventID types.HexBytes) (*StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readEvent(voteEventID)
}

// TallyKey decodes the tally public key of a vote event.
func (e *StoredEvent) DecodeTallyKey() (*homomorphic.PublicKey, error) {
	var pk homomorphic.PublicKey
	if err := cbor.Unmarshal(e.TallyKey, &pk); err != nil {
		return nil, fmt.Errorf("failed to decode tally key: %w", err)
	}
	return &pk, nil
}

// SubmitVote validates and records a submission bundle. On success the vote
// is folded into the running aggregate and voteCast plus tallyUpdate events
// are published. The nullifier check is first-writer-wins: a second bundle
// with the same nullifier returns ErrNullifierSpent no matter its content.
func (s *Store) SubmitVote(bundle *types.SubmissionBundle) error {
	if err := bundle.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.readEvent(bundle.VoteEventID)
	if err != nil {
		return err
	}
	if event.Finalized {
		return ErrEventFinalized
	}
	// the server clock is the authoritative window gate; the bundle
	// timestamp is bound by the proof and must fall in the window too, so
	// a back-dated bundle cannot slip in after the window closed
	if !event.Definition.InWindow(time.Now()) {
		return ErrOutsideWindow
	}
	if !event.Definition.InWindow(time.Unix(bundle.Timestamp, 0)) {
		return ErrOutsideWindow
	}
	if len(bundle.Ciphertexts) != len(event.Definition.Options) {
		return fmt.Errorf("%w: got %d, ballot has %d options",
			ErrBallotShape, len(bundle.Ciphertexts), len(event.Definition.Options))
	}
	if bundle.Scheme != event.Scheme {
		return fmt.Errorf("%w: got %q, event uses %q", ErrSchemeMismatch, bundle.Scheme, event.Scheme)
	}

	nfKey := nullifierKey(bundle.VoteEventID, bundle.Nullifier)
	if _, err := s.db.Get(nfKey); err == nil {
		return ErrNullifierSpent
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	if s.verifier != nil {
		if err := s.verifier(event, bundle); err != nil {
			return fmt.Errorf("submission rejected: %w", err)
		}
	}

	scheme, err := homomorphic.New(event.Scheme)
	if err != nil {
		return err
	}
	tallyKey, err := event.DecodeTallyKey()
	if err != nil {
		return err
	}

	// fold each option ciphertext into the aggregate
	aggregates := make([][]byte, len(bundle.Ciphertexts))
	for i, raw := range bundle.Ciphertexts {
		var ct homomorphic.Ciphertext
		if err := cbor.Unmarshal(raw, &ct); err != nil {
			return fmt.Errorf("failed to decode ciphertext %d: %w", i, err)
		}
		current, err := s.readAggregate(bundle.VoteEventID, i)
		if err != nil {
			return err
		}
		if current == nil {
			current = &ct
		} else {
			current, err = scheme.Add(tallyKey, current, &ct)
			if err != nil {
				return fmt.Errorf("failed to aggregate ciphertext %d: %w", i, err)
			}
		}
		blob, err := cbor.Marshal(current)
		if err != nil {
			return err
		}
		aggregates[i] = blob
	}

	voteBlob, err := cbor.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(nfKey, []byte{0x01}); err != nil {
		return err
	}
	if err := wtx.Set(voteKey(bundle.VoteEventID, bundle.Nullifier), voteBlob); err != nil {
		return err
	}
	for i, blob := range aggregates {
		if err := wtx.Set(aggregateKey(bundle.VoteEventID, i), blob); err != nil {
			return err
		}
	}
	event.VoteCount++
	eventBlob, err := cbor.Marshal(event)
	if err != nil {
		return err
	}
	if err := wtx.Set(eventKey(bundle.VoteEventID), eventBlob); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return err
	}

	s.bus.Publish(Event{
		Type:        EventVoteCast,
		VoteEventID: bundle.VoteEventID.String(),
		Payload:     map[string]any{"nullifier": bundle.Nullifier.String()},
	})
	s.bus.Publish(Event{
		Type:        EventTallyUpdate,
		VoteEventID: bundle.VoteEventID.String(),
		Payload:     map[string]any{"voteCount": event.VoteCount},
	})
	return nil
}

// HasNullifier reports whether a nullifier is already spent for the event.
func (s *Store) HasNullifier(voteEventID types.HexBytes, nullifier *types.BigInt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Get(nullifierKey(voteEventID, nullifier))
	return err == nil
}

// Vote returns the stored bundle for a spent nullifier.
func (s *Store) Vote(voteEventID types.HexBytes, nullifier *types.BigInt) (*types.SubmissionBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, err := s.db.Get(voteKey(voteEventID, nullifier))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("no vote recorded for nullifier")
	} else if err != nil {
		return nil, err
	}
	var bundle types.SubmissionBundle
	if err := cbor.Unmarshal(blob, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Aggregate returns the per-option encrypted running totals. Options with no
// votes yet are nil.
func (s *Store) Aggregate(voteEventID types.HexBytes) ([]*homomorphic.Ciphertext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.readEvent(voteEventID)
	if err != nil {
		return nil, err
	}
	out := make([]*homomorphic.Ciphertext, len(event.Definition.Options))
	for i := range out {
		out[i], err = s.readAggregate(voteEventID, i)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Finalize marks the event closed for submissions and publishes the
// voteFinalized event.
func (s *Store) Finalize(voteEventID types.HexBytes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.readEvent(voteEventID)
	if err != nil {
		return err
	}
	if event.Finalized {
		return ErrEventFinalized
	}
	event.Finalized = true
	if err := s.writeEvent(event); err != nil {
		return err
	}
	s.bus.Publish(Event{
		Type:        EventVoteFinalized,
		VoteEventID: voteEventID.String(),
		Payload:     map[string]any{"voteCount": event.VoteCount},
	})
	return nil
}

// PublishShareSubmitted announces a trustee decryption share on the bus.
func (s *Store) PublishShareSubmitted(voteEventID types.HexBytes, trusteeIndex int) {
	s.bus.Publish(Event{
		Type:        EventDecryptionShareSubmitted,
		VoteEventID: voteEventID.String(),
		Payload:     map[string]any{"trustee": trusteeIndex},
	})
}

func (s *Store) readEvent(voteEventID types.HexBytes) (*StoredEvent, error) {
	blob, err := s.db.Get(eventKey(voteEventID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrEventNotFound
	} else if err != nil {
		return nil, err
	}
	var event StoredEvent
	if err := cbor.Unmarshal(blob, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) writeEvent(event *StoredEvent) error {
	blob, err := cbor.Marshal(event)
	if err != nil {
		return err
	}
	wtx := s.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(eventKey(event.Definition.VoteEventID), blob); err != nil {
		return err
	}
	return wtx.Commit()
}

func (s *Store) readAggregate(voteEventID types.HexBytes, option int) (*homomorphic.Ciphertext, error) {
	blob, err := s.db.Get(aggregateKey(voteEventID, option))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var ct homomorphic.Ciphertext
	if err := cbor.Unmarshal(blob, &ct); err != nil {
		return nil, err
	}
	return &ct, nil
}

// DB exposes a prefixed view of the underlying database for sibling
// components such as the tally ceremony.
func (s *Store) DB(prefix string) db.Database {
	return prefixeddb.NewPrefixedDatabase(s.db, []byte(prefix))
}

func eventKey(voteEventID types.HexBytes) []byte {
	return append([]byte(eventPrefix), voteEventID...)
}

func nullifierKey(voteEventID types.HexBytes, nullifier *types.BigInt) []byte {
	key := append([]byte(nullifierPrefix), voteEventID...)
	return append(key, nullifier.MathBigInt().Bytes()...)
}

func voteKey(voteEventID types.HexBytes, nullifier *types.BigInt) []byte {
	key := append([]byte(votePrefix), voteEventID...)
	return append(key, nullifier.MathBigInt().Bytes()...)
}

func aggregateKey(voteEventID types.HexBytes, option int) []byte {
	key := append([]byte(aggregatePrefix), voteEventID...)
	return append(key, byte(option))
}
