package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/crypto/homomorphic"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/tally"
)

// submitShares records one trustee's decryption shares
// POST /vote-events/{voteEventId}/shares
func (a *API) submitShares(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	req := &TrusteeShares{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	var shares []*homomorphic.DecryptionShare
	if err := cbor.Unmarshal(req.Shares, &shares); err != nil {
		ErrMalformedBody.Withf("could not decode decryption shares: %v", err).Write(w)
		return
	}
	if err := a.ceremony.SubmitShares(voteEventID, req.Trustee, shares); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEventNotFound):
			ErrVoteEventNotFound.Write(w)
		case errors.Is(err, tally.ErrNotFinalized):
			ErrVoteEventNotClosed.Write(w)
		case errors.Is(err, tally.ErrShareExists):
			ErrDuplicateTrustee.Write(w)
		default:
			ErrMalformedBody.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("decryption shares recorded",
		"voteEventId", voteEventID.String(), "trustee", req.Trustee)
	httpWriteOK(w)
}

// result returns the decrypted totals once the quorum is reached
// GET /vote-events/{voteEventId}/result
func (a *API) result(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	result, err := a.ceremony.Result(voteEventID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrEventNotFound):
			ErrVoteEventNotFound.Write(w)
		case errors.Is(err, tally.ErrNotFinalized):
			ErrVoteEventNotClosed.Write(w)
		case errors.Is(err, tally.ErrQuorumNotReached):
			ErrQuorumNotReached.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteJSON(w, result)
}
