package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/census"
	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/types"
)

// newVoteEvent creates a new vote event
// POST /vote-events
func (a *API) newVoteEvent(w http.ResponseWriter, r *http.Request) {
	req := &NewVoteEvent{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Definition == nil {
		ErrMalformedBody.With("missing ballot definition").Write(w)
		return
	}
	var tallyKey homomorphic.PublicKey
	if err := cbor.Unmarshal(req.TallyKey, &tallyKey); err != nil {
		ErrMalformedBody.Withf("could not decode tally key: %v", err).Write(w)
		return
	}

	// an omitted vote event ID gets a server-assigned one
	if len(req.Definition.VoteEventID) == 0 {
		id := uuid.New()
		req.Definition.VoteEventID = id[:]
	}

	// snapshot the census root if a census exists for this event
	var censusRoot types.HexBytes
	cens, err := a.registry.Load(req.Definition.VoteEventID)
	switch {
	case err == nil:
		if censusRoot, err = cens.Root(); err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
	case !errors.Is(err, census.ErrCensusNotFound):
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	if err := a.store.CreateVoteEvent(req.Definition, req.Scheme, &tallyKey, censusRoot); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEventExists):
			ErrVoteEventExists.Write(w)
		default:
			ErrMalformedBody.WithErr(err).Write(w)
		}
		return
	}

	log.Infow("new vote event",
		"voteEventId", req.Definition.VoteEventID.String(),
		"scheme", req.Scheme,
		"options", len(req.Definition.Options))
	httpWriteJSON(w, &NewVoteEventResponse{
		VoteEventID: req.Definition.VoteEventID,
		CensusRoot:  censusRoot,
	})
}

// voteEvent returns the stored vote event info
// GET /vote-events/{voteEventId}
func (a *API) voteEvent(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	event, err := a.store.VoteEvent(voteEventID)
	if err != nil {
		if errors.Is(err, ledger.ErrEventNotFound) {
			ErrVoteEventNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteEventInfo{
		Definition: event.Definition,
		Scheme:     event.Scheme,
		CensusRoot: event.CensusRoot,
		Finalized:  event.Finalized,
		VoteCount:  event.VoteCount,
	})
}

// finalizeVoteEvent closes the submission window
// POST /vote-events/{voteEventId}/finalize
func (a *API) finalizeVoteEvent(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	if err := a.store.Finalize(voteEventID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEventNotFound):
			ErrVoteEventNotFound.Write(w)
		case errors.Is(err, ledger.ErrEventFinalized):
			ErrVoteEventFinalized.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("vote event finalized", "voteEventId", voteEventID.String())
	httpWriteOK(w)
}

// aggregates returns the encrypted per-option running totals
// GET /vote-events/{voteEventId}/aggregates
func (a *API) aggregates(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	event, err := a.store.VoteEvent(voteEventID)
	if err != nil {
		if errors.Is(err, ledger.ErrEventNotFound) {
			ErrVoteEventNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	aggregates, err := a.store.Aggregate(voteEventID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	ciphertexts := make([]types.HexBytes, len(aggregates))
	for i, ct := range aggregates {
		if ct == nil {
			continue
		}
		blob, err := cbor.Marshal(ct)
		if err != nil {
			ErrGenericInternalServerError.WithErr(err).Write(w)
			return
		}
		ciphertexts[i] = blob
	}
	httpWriteJSON(w, &Aggregates{
		VoteEventID: voteEventID,
		Options:     event.Definition.Options,
		Ciphertexts: ciphertexts,
	})
}
