package types

import (
	"fmt"
	"time"
)

// BallotDefinition describes one vote event as published to the terminals:
// the set of selectable options and the time window during which the ledger
// accepts submissions.
type BallotDefinition struct {
	VoteEventID HexBytes  `json:"voteEventId"`
	Title       string    `json:"title,omitempty"`
	Options     []string  `json:"options"`
	NotBefore   time.Time `json:"notBefore"`
	NotAfter    time.Time `json:"notAfter"`
}

// Validate checks the structural invariants of the definition.
func (d *BallotDefinition) Validate() error {
	if len(d.VoteEventID) == 0 {
		return fmt.Errorf("missing vote event id")
	}
	if len(d.Options) == 0 || len(d.Options) > MaxBallotOptions {
		return fmt.Errorf("ballot must define between 1 and %d options, got %d", MaxBallotOptions, len(d.Options))
	}
	if !d.NotAfter.After(d.NotBefore) {
		return fmt.Errorf("ballot window is empty")
	}
	return nil
}

// InWindow reports whether ts falls inside the submission window.
func (d *BallotDefinition) InWindow(ts time.Time) bool {
	return !ts.Before(d.NotBefore) && !ts.After(d.NotAfter)
}

// BallotEnvelope is the transient vote payload the orchestrator assembles at
// selection time and carries through encryption and signing. It never leaves
// process memory in cleartext; only the derived bundle does.
type BallotEnvelope struct {
	VoteEventID HexBytes `json:"voteEventId"`
	OptionIndex int      `json:"optionIndex"`
	SessionID   HexBytes `json:"sessionId"`
	Timestamp   int64    `json:"timestamp"`
}

// SubmissionBundle is the immutable result of a completed voting session,
// handed to the external ledger. All cryptographic artifacts are carried in
// wire form so the bundle can cross process boundaries.
type SubmissionBundle struct {
	VoteEventID HexBytes `json:"voteEventId"`
	// Ciphertexts holds one homomorphic ciphertext per ballot option; the
	// chosen option encrypts one, every other option encrypts zero.
	Ciphertexts []HexBytes `json:"ciphertexts"`
	// Scheme names the homomorphic backend that produced the ciphertexts.
	Scheme string `json:"scheme"`
	// TallyKey is the public key the ciphertexts were encrypted under.
	TallyKey HexBytes `json:"tallyKey"`
	// BallotDigest is the field-element digest of the ciphertext vector,
	// the value authorized by the blind signature and bound by the proof.
	BallotDigest *BigInt `json:"ballotDigest"`
	// Signature is the unblinded terminal authorization over BallotDigest.
	Signature HexBytes `json:"signature"`
	Nullifier *BigInt  `json:"nullifier"`
	// Proof is the serialized zero-knowledge eligibility proof with its
	// public inputs.
	Proof     HexBytes `json:"proof"`
	Root      *BigInt  `json:"root"`
	Anonymous bool     `json:"anonymous"`
	Timestamp int64    `json:"timestamp"`
}

// Validate checks that all mandatory artifacts are present.
func (b *SubmissionBundle) Validate() error {
	switch {
	case len(b.VoteEventID) == 0:
		return fmt.Errorf("missing vote event id")
	case len(b.Ciphertexts) == 0:
		return fmt.Errorf("missing ciphertexts")
	case b.Scheme == "":
		return fmt.Errorf("missing scheme name")
	case len(b.TallyKey) == 0:
		return fmt.Errorf("missing tally key")
	case b.BallotDigest == nil:
		return fmt.Errorf("missing ballot digest")
	case len(b.Signature) == 0:
		return fmt.Errorf("missing signature")
	case b.Nullifier == nil:
		return fmt.Errorf("missing nullifier")
	case len(b.Proof) == 0:
		return fmt.Errorf("missing eligibility proof")
	case b.Root == nil:
		return fmt.Errorf("missing eligibility root")
	}
	return nil
}
