package api

import (
	"github.com/biovote/protocol/types"
)

// NewVoteEvent is the request to create a vote event. The vote event ID
// inside the definition may be left empty, in which case the server assigns
// a fresh one. TallyKey is the CBOR-encoded threshold public key produced by
// the trustee key generation ceremony.
type NewVoteEvent struct {
	Definition *types.BallotDefinition `json:"definition"`
	Scheme     string                  `json:"scheme"`
	TallyKey   types.HexBytes          `json:"tallyKey"`
}

// NewVoteEventResponse is the response to a vote event creation request.
type NewVoteEventResponse struct {
	VoteEventID types.HexBytes `json:"voteEventId"`
	CensusRoot  types.HexBytes `json:"censusRoot,omitempty"`
}

// VoteEventInfo is the public view of a stored vote event.
type VoteEventInfo struct {
	Definition *types.BallotDefinition `json:"definition"`
	Scheme     string                  `json:"scheme"`
	CensusRoot types.HexBytes          `json:"censusRoot,omitempty"`
	Finalized  bool                    `json:"finalized"`
	VoteCount  uint64                  `json:"voteCount"`
}

// NullifierStatus reports whether a nullifier has been spent.
type NullifierStatus struct {
	Nullifier *types.BigInt `json:"nullifier"`
	Spent     bool          `json:"spent"`
}

// Aggregates carries the CBOR-encoded encrypted running total per ballot
// option. Options nobody voted for yet are empty.
type Aggregates struct {
	VoteEventID types.HexBytes   `json:"voteEventId"`
	Options     []string         `json:"options"`
	Ciphertexts []types.HexBytes `json:"ciphertexts"`
}

// TrusteeShares is one trustee's per-option decryption shares, CBOR-encoded
// as produced by tally.Trustee.ComputeShares.
type TrusteeShares struct {
	Trustee int            `json:"trustee"`
	Shares  types.HexBytes `json:"shares"`
}

// NewCensus is the request to create the census of a vote event.
type NewCensus struct {
	VoteEventID types.HexBytes `json:"voteEventId"`
}

// CensusParticipants is a batch of biometric commitments to enroll.
type CensusParticipants struct {
	Commitments []*types.BigInt `json:"commitments"`
}

// CensusRoot is the response to a census root request.
type CensusRoot struct {
	Root types.HexBytes `json:"root"`
	Size uint64         `json:"size"`
}
