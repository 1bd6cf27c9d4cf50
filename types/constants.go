package types

const (
	// TallyKeyMinBits is the minimum accepted size for homomorphic tally keys.
	TallyKeyMinBits = 2048
	// MaxBallotOptions is the maximum number of options in a ballot definition.
	MaxBallotOptions = 16
	// SessionNonceSize is the size in bytes of per-session nonces.
	SessionNonceSize = 32
	// CensusTreeMaxLevels is the maximum number of levels in the census
	// registry merkle tree.
	CensusTreeMaxLevels = 160
	// MaxTallyMessage bounds the discrete-log recovery of curve-based tally
	// backends, i.e. the maximum number of aggregated unit-weight ballots.
	MaxTallyMessage = 1 << 20
)
