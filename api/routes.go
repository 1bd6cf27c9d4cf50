package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// VoteEventsEndpoint is the endpoint for creating a new vote event
	VoteEventsEndpoint = "/vote-events"
	// VoteEventEndpoint is the endpoint to get the vote event info
	VoteEventURLParam = "voteEventId"
	VoteEventEndpoint = "/vote-events/{" + VoteEventURLParam + "}"
	// FinalizeEndpoint closes the submission window of a vote event
	FinalizeEndpoint = VoteEventEndpoint + "/finalize"
	// AggregatesEndpoint returns the encrypted per-option running totals
	AggregatesEndpoint = VoteEventEndpoint + "/aggregates"
	// NullifierEndpoint reports whether a nullifier has been spent
	NullifierURLParam = "nullifier"
	NullifierEndpoint = VoteEventEndpoint + "/nullifiers/{" + NullifierURLParam + "}"
	// SharesEndpoint is the endpoint for trustee decryption share submission
	SharesEndpoint = VoteEventEndpoint + "/shares"
	// ResultEndpoint returns the decrypted totals once the quorum is reached
	ResultEndpoint = VoteEventEndpoint + "/result"
	// VotesEndpoint is the endpoint for submitting a vote
	VotesEndpoint = "/votes"
	// CensusesEndpoint is the endpoint for creating a census
	CensusesEndpoint = "/censuses"
	// CensusEndpoints operate on the census of one vote event
	CensusParticipantsEndpoint = "/censuses/{" + VoteEventURLParam + "}/participants"
	CensusRootEndpoint         = "/censuses/{" + VoteEventURLParam + "}/root"
)
