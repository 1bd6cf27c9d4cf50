package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/census"
)

// newCensus creates the census of a vote event
// POST /censuses
func (a *API) newCensus(w http.ResponseWriter, r *http.Request) {
	req := &NewCensus{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if len(req.VoteEventID) == 0 {
		ErrMalformedBody.With("missing vote event id").Write(w)
		return
	}
	if _, err := a.registry.New(req.VoteEventID); err != nil {
		if errors.Is(err, census.ErrCensusAlreadyExists) {
			ErrCensusExists.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	log.Infow("new census", "voteEventId", req.VoteEventID.String())
	httpWriteOK(w)
}

// addCensusParticipants enrolls a batch of biometric commitments
// POST /censuses/{voteEventId}/participants
func (a *API) addCensusParticipants(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	var participants CensusParticipants
	if err := json.NewDecoder(r.Body).Decode(&participants); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(participants.Commitments) == 0 {
		ErrMalformedBody.WithErr(fmt.Errorf("no commitments provided")).Write(w)
		return
	}
	cens, err := a.registry.Load(voteEventID)
	if err != nil {
		ErrCensusNotFound.WithErr(err).Write(w)
		return
	}
	for i, commitment := range participants.Commitments {
		if commitment == nil {
			ErrMalformedBody.Withf("commitment %d is empty", i).Write(w)
			return
		}
		if err := cens.AddCommitment(commitment.MathBigInt()); err != nil {
			if errors.Is(err, census.ErrAlreadyEnrolled) {
				// enrollment is idempotent per commitment
				continue
			}
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	}
	httpWriteOK(w)
}

// censusRoot returns the census Merkle root and size
// GET /censuses/{voteEventId}/root
func (a *API) censusRoot(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	cens, err := a.registry.Load(voteEventID)
	if err != nil {
		ErrCensusNotFound.WithErr(err).Write(w)
		return
	}
	root, err := cens.Root()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	size, err := cens.Size()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &CensusRoot{Root: root, Size: size})
}
